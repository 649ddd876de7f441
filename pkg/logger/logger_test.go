package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithoutContext(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "Info",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Debug",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "Warn",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "Error",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		observerLogger, logs := observer.New(zap.DebugLevel)
		dut := ZapLogger{Logger: zap.New(observerLogger)}
		const testMessage = "ABC"
		switch tc.name {
		case "Info":
			dut.Info(testMessage)
		case "Debug":
			dut.Debug(testMessage)
		case "Warn":
			dut.Warn(testMessage)
		case "Error":
			dut.Error(testMessage)
		default:
			t.Errorf("%s: Unknown name", tc.name)
		}
		require.Equal(t, 1, logs.Len())

		actualMessage := logs.All()[0]
		require.Equal(t, testMessage, actualMessage.Message)
		require.Equal(t, tc.expectedLevel, actualMessage.Level)
	}
}

func TestWithContext(t *testing.T) {
	observerLogger, logs := observer.New(zap.DebugLevel)
	dut := ZapLogger{Logger: zap.New(observerLogger)}
	ctx := context.Background()

	dut.DebugWithContext(ctx, "debug")
	dut.InfoWithContext(ctx, "info", zap.String("key", "value"))
	dut.WarnWithContext(ctx, "warn")
	dut.ErrorWithContext(ctx, "error")

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Equal(t, map[string]interface{}{"key": "value"}, entries[1].ContextMap())
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestLogIsLazy(t *testing.T) {
	l, logs := NewObserverLogger("info")

	var evaluated int
	msg := func() string {
		evaluated++
		return "expensive"
	}

	l.Log(CategoryQueries, SeverityTrace, msg)
	require.Zero(t, evaluated)
	require.Zero(t, logs.Len())

	l.Log(CategoryQueries, SeverityWarning, msg, zap.Int("rows", 3))
	require.Equal(t, 1, evaluated)
	require.Equal(t, 1, logs.Len())

	entry := logs.All()[0]
	require.Equal(t, "expensive", entry.Message)
	require.Equal(t, CategoryQueries, entry.LoggerName)
	require.Equal(t, zapcore.WarnLevel, entry.Level)
}

func TestCategoryLevels(t *testing.T) {
	l, logs := NewObserverLogger("debug",
		WithCategoryLevel(CategoryRoot, SeverityWarning),
		WithCategoryLevel(CategoryPerformance, SeverityTrace),
	)

	require.False(t, l.Enabled(CategoryProvider, SeverityInfo))
	require.True(t, l.Enabled(CategoryProvider, SeverityError))
	require.True(t, l.Enabled(CategoryPerformance, SeverityTrace))
	require.True(t, l.Enabled("Unrelated", SeverityTrace))

	l.Log(CategoryProvider, SeverityInfo, func() string { return "hidden" })
	l.Log(CategoryPerformance, SeverityTrace, func() string { return "shown" })
	require.Equal(t, 1, logs.Len())
	require.Equal(t, 1, logs.Filter(func(e observer.LoggedEntry) bool {
		return e.LoggerName == CategoryPerformance
	}).Len())
}

func TestParseSeverity(t *testing.T) {
	for input, expected := range map[string]Severity{
		"trace":   SeverityTrace,
		"debug":   SeverityTrace,
		"info":    SeverityInfo,
		"warning": SeverityWarning,
		"WARN":    SeverityWarning,
		"error":   SeverityError,
	} {
		actual, err := ParseSeverity(input)
		require.NoError(t, err)
		require.Equal(t, expected, actual, input)
	}

	_, err := ParseSeverity("fatal")
	require.Error(t, err)
	require.Less(t, SeverityTrace, SeverityInfo)
	require.Less(t, SeverityWarning, SeverityError)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("json", "none")
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = NewLogger("text", "verbose")
	require.Error(t, err)

	require.Panics(t, func() {
		MustNewLogger("text", "verbose")
	})
}
