package indexer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/indexer"
)

func TestCursorStore_StartBlock(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name       string
		Transfers  []uint
		Checkpoint *uint
		StartBlock uint
		Expected   uint
	}{
		{
			Name:       "empty store starts at creation block",
			StartBlock: 100,
			Expected:   100,
		},
		{
			Name:       "resumes after the highest transfer",
			Transfers:  []uint{120, 500, 300},
			StartBlock: 100,
			Expected:   501,
		},
		{
			Name:       "checkpoint behind the highest transfer wins",
			Transfers:  []uint{600},
			Checkpoint: uintRef(499),
			Expected:   500,
		},
		{
			Name:       "checkpoint ahead of the highest transfer is ignored",
			Transfers:  []uint{600},
			Checkpoint: uintRef(900),
			Expected:   601,
		},
		{
			Name:       "checkpoint without transfers",
			Checkpoint: uintRef(900),
			StartBlock: 100,
			Expected:   901,
		},
		{
			Name:       "never goes below creation block",
			Transfers:  []uint{10},
			StartBlock: 100,
			Expected:   100,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			cursors := newFakeLogsCursorsRepo()
			if test.Checkpoint != nil {
				cursors.set(*test.Checkpoint)
			}
			store := indexer.NewCursorStore(testLogger(), newFakeTransfersRepo(test.Transfers...), cursors,
				testChainID, tokenAddr, test.StartBlock)

			from, err := store.StartBlock(context.Background())
			require.NoError(t, err)
			require.Equal(t, test.Expected, from)
		})
	}
}

func TestCursorStore_Checkpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cursors := newFakeLogsCursorsRepo()
	store := indexer.NewCursorStore(testLogger(), newFakeTransfersRepo(), cursors, testChainID, tokenAddr, 0)

	require.NoError(t, store.Checkpoint(ctx, 300))
	require.NoError(t, store.Checkpoint(ctx, 200))

	block, ok := cursors.get()
	require.True(t, ok)
	require.Equal(t, uint(300), block)
}

func uintRef(v uint) *uint {
	return &v
}
