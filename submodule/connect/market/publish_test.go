package market

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/memoio/go-voicemint/lib/backend/kv"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/service/publish"
	"github.com/memoio/go-voicemint/submodule/connect/chain"
	"github.com/memoio/go-voicemint/submodule/metastore"
)

func newTestWorkflow(t *testing.T) (*publish.Workflow, *fakeChain) {
	g, fc, _ := newTestGateway(t)

	ds, err := kv.NewMemStore()
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	return publish.New(metastore.NewLocalStore(ds), g, ds), fc
}

func recording(i int) publish.Recording {
	return publish.Recording{
		Title:           "Narration " + strconv.Itoa(i),
		Description:     "Studio voice recording",
		DurationSeconds: 60,
		Language:        "en",
		AudioReference:  "ipfs://bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku",
	}
}

func TestWorkflowConcurrentPublish(t *testing.T) {
	w, fc := newTestWorkflow(t)
	const n = 6

	results := make([]*types.PublicationResult, n)
	eg, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			res, err := w.Publish(ctx, recording(i), publish.Terms{RoyaltyPercent: 5, Price: "1"})
			results[i] = res
			return err
		})
	}
	require.NoError(t, eg.Wait())

	tokens := make(map[string]struct{})
	for _, res := range results {
		require.Equal(t, types.StateListed, res.State)
		require.Len(t, res.Transactions, 3)
		tokens[res.TokenID.String()] = struct{}{}
	}
	require.Len(t, tokens, n)

	// one account, strictly consecutive nonces across all publications
	require.Empty(t, fc.violations)
	require.Len(t, fc.sent, 3*n)
	for i, tx := range fc.sent {
		require.Equal(t, uint64(i), tx.Nonce())
	}
	require.Equal(t, n, fc.count(methodMint))
}

func TestWorkflowMintTimeout(t *testing.T) {
	w, fc := newTestWorkflow(t)
	fc.timeoutMethod = methodMint
	terms := publish.Terms{RoyaltyPercent: 5, Price: "1"}

	_, err := w.Publish(context.Background(), recording(0), terms)
	require.ErrorIs(t, err, chain.ErrNetwork)
	var perr *publish.PublicationError
	require.ErrorAs(t, err, &perr)
	require.NotNil(t, perr.Result.Pending)
	id := perr.Result.ID

	_, err = w.Resume(context.Background(), id)
	require.ErrorIs(t, err, publish.ErrTxPending)
	require.Equal(t, 1, fc.count(methodMint))

	fc.reveal()
	res, err := w.Resume(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, types.StateListed, res.State)
	require.Equal(t, "1", res.TokenID.String())
	require.Equal(t, 1, fc.count(methodMint))
	require.Empty(t, fc.violations)
}
