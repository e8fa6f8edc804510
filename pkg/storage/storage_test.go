package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWords(t *testing.T) {
	require.Empty(t, Words(nil))
	require.Equal(t, []string{"hill", "eater"}, Words([]Follower{
		{Word: "hill", Count: 5},
		{Word: "eater", Count: 3},
	}))
}

func TestValidateRow(t *testing.T) {
	require.NoError(t, ValidateRow(Row{Word: "ant", Follower: "hill", Count: 0}))
	require.ErrorIs(t, ValidateRow(Row{Word: "", Follower: "hill", Count: 1}), ErrInvalidWord)
	require.ErrorIs(t, ValidateRow(Row{Word: "ant", Follower: "\t", Count: 1}), ErrInvalidWord)
	require.ErrorIs(t, ValidateRow(Row{Word: "ant", Follower: "hill", Count: -2}), ErrInvalidCount)
}
