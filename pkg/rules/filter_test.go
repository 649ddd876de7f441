package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iTwin/presentation-hierarchies/pkg/definition"
	"github.com/iTwin/presentation-hierarchies/pkg/query"
)

func TestRowFilterMatch(t *testing.T) {
	f, err := compileRowFilter(`row.Label != "hidden"`)
	require.NoError(t, err)

	ok, err := f.Match(context.Background(), query.Row{"Label": "shown"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.Match(context.Background(), query.Row{"Label": "hidden"})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = compileRowFilter(`row.Label`)
	require.ErrorIs(t, err, definition.ErrInvalidExpression)
}

func TestRowFilterHonoursCancellation(t *testing.T) {
	items := make([]any, 5*interruptCheckFrequency)
	for i := range items {
		items[i] = i
	}
	f, err := compileRowFilter(`row.Items.map(i, i * 2).size() > 0`)
	require.NoError(t, err)

	ok, err := f.Match(context.Background(), query.Row{"Items": items})
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err = f.Match(ctx, query.Row{"Items": items})
	require.ErrorContains(t, err, "operation interrupted")
	require.False(t, ok)
}
