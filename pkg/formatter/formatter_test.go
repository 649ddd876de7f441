package formatter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultFormatter(t *testing.T) {
	ctx := context.Background()
	f := Default()

	for name, tc := range map[string]struct {
		value    TypedPrimitiveValue
		expected string
	}{
		"string":   {TypedPrimitiveValue{Type: TypeString, Value: "abc"}, "abc"},
		"id":       {TypedPrimitiveValue{Type: TypeID, Value: "0x1"}, "0x1"},
		"integer":  {TypedPrimitiveValue{Type: TypeInteger, Value: int64(42)}, "42"},
		"double":   {TypedPrimitiveValue{Type: TypeDouble, Value: 1.005}, "1.00"},
		"boolean":  {TypedPrimitiveValue{Type: TypeBoolean, Value: true}, "true"},
		"datetime": {TypedPrimitiveValue{Type: TypeDateTime, Value: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}, "2024-01-02T03:04:05Z"},
		"point2d":  {TypedPrimitiveValue{Type: TypePoint2d, Value: Point2d{X: 1, Y: 2.5}}, "(1.00, 2.50)"},
		"point3d":  {TypedPrimitiveValue{Type: TypePoint3d, Value: Point3d{X: 1, Y: 2, Z: 3}}, "(1.00, 2.00, 3.00)"},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := f(ctx, tc.value)
			require.NoError(t, err)
			require.Equal(t, tc.expected, s)
		})
	}

	_, err := f(ctx, TypedPrimitiveValue{Type: TypeBoolean, Value: "yes"})
	require.Error(t, err)
	_, err = f(ctx, TypedPrimitiveValue{Type: "Binary", Value: []byte{1}})
	require.Error(t, err)
}

func TestFormatConcatenatedValue(t *testing.T) {
	ctx := context.Background()
	v := ConcatenatedValue{
		{Text: "Element "},
		{Value: &TypedPrimitiveValue{Type: TypeInteger, Value: int64(7)}},
		{Nested: ConcatenatedValue{{Text: " ["}, {Value: &TypedPrimitiveValue{Type: TypeString, Value: "x"}}, {Text: "]"}}},
	}

	s, err := Format(ctx, Default(), v)
	require.NoError(t, err)
	require.Equal(t, "Element 7 [x]", s)

	upper := func(_ context.Context, v TypedPrimitiveValue) (string, error) {
		return "<" + string(v.Type) + ">", nil
	}
	s, err = Format(ctx, upper, v)
	require.NoError(t, err)
	require.Equal(t, "Element <Integer> [<String>]", s)

	boom := errors.New("boom")
	_, err = Format(ctx, func(context.Context, TypedPrimitiveValue) (string, error) { return "", boom }, v)
	require.ErrorIs(t, err, boom)
}

func TestParseConcatenatedValue(t *testing.T) {
	t.Run("plain_text", func(t *testing.T) {
		for _, raw := range []string{"b", "", "123", `{"not":"array"}`} {
			v, err := ParseConcatenatedValue(raw)
			require.NoError(t, err)
			require.Equal(t, Text(raw), v)
		}
	})

	t.Run("parts", func(t *testing.T) {
		v, err := ParseConcatenatedValue(`["Model ", {"type":"Integer","value":3}, [" (", {"type":"Point2d","value":{"x":1,"y":2}}, ")"]]`)
		require.NoError(t, err)
		require.Len(t, v, 3)
		require.Equal(t, "Model ", v[0].Text)
		require.Equal(t, TypedPrimitiveValue{Type: TypeInteger, Value: int64(3)}, *v[1].Value)
		require.Len(t, v[2].Nested, 3)
		require.Equal(t, Point2d{X: 1, Y: 2}, v[2].Nested[1].Value.Value)

		s, err := Format(context.Background(), Default(), v)
		require.NoError(t, err)
		require.Equal(t, "Model 3 (1.00, 2.00)", s)
	})

	t.Run("invalid_parts", func(t *testing.T) {
		_, err := ParseConcatenatedValue(`[1]`)
		require.Error(t, err)
		_, err = ParseConcatenatedValue(`[{"type":"Integer"}]`)
		require.Error(t, err)
		_, err = ParseConcatenatedValue(`[{"type":"Blob","value":1}]`)
		require.Error(t, err)
	})
}
