package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestEncodeDecodeRows_RoundTrip(t *testing.T) {
	t.Parallel()
	rows := [][]*string{
		{strp("abc"), strp("with\x1funit-sep"), nil},
		{strp("with\nnewline"), strp(`back\slash`), strp("")},
	}

	encoded := EncodeRows(rows)
	decoded := DecodeRows(encoded)

	require.Len(t, decoded, len(rows))
	for i, row := range rows {
		for j, cell := range row {
			if cell == nil {
				require.Nil(t, decoded[i][j])
				continue
			}
			require.NotNil(t, decoded[i][j])
			require.Equal(t, *cell, *decoded[i][j])
		}
	}
}

func TestDecodeRows_EmptyInput(t *testing.T) {
	t.Parallel()
	require.Nil(t, DecodeRows(""))
}

func TestEncodeRows_DistinguishesNullFromEmptyString(t *testing.T) {
	t.Parallel()
	encoded := EncodeRows([][]*string{{nil, strp("")}})
	decoded := DecodeRows(encoded)
	require.Nil(t, decoded[0][0])
	require.NotNil(t, decoded[0][1])
	require.Equal(t, "", *decoded[0][1])
}
