package tabular

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPayload_RejectsMismatchedRowCounts(t *testing.T) {
	t.Parallel()
	_, err := NewPayload(
		Column{Name: "a", Type: Integer, Values: []any{1, 2}},
		Column{Name: "b", Type: Integer, Values: []any{1}},
	)
	require.Error(t, err)
}

func TestPayload_RowAndFromRowsRoundTrip(t *testing.T) {
	t.Parallel()
	p, err := NewPayload(
		Column{Name: "id", Type: Integer, Values: []any{1, 2}},
		Column{Name: "name", Type: String, Values: []any{"a", "b"}},
	)
	require.NoError(t, err)

	rows := make([]map[string]any, p.RowCount())
	for i := 0; i < p.RowCount(); i++ {
		rows[i] = p.Row(i)
	}

	rebuilt := FromRows(p.ColumnNames(), rows)
	require.Equal(t, p.RowCount(), rebuilt.RowCount())
	col, ok := rebuilt.Column("name")
	require.True(t, ok)
	require.Equal(t, []any{"a", "b"}, col.Values)
}

func TestPayload_CloneIsIndependent(t *testing.T) {
	t.Parallel()
	p, err := NewPayload(Column{Name: "id", Type: Integer, Values: []any{1}})
	require.NoError(t, err)

	clone := p.Clone()
	clone.Columns[0].Values[0] = 2
	require.Equal(t, 1, p.Columns[0].Values[0])
}
