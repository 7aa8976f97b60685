package publish

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/lib/backend/kv"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/submodule/metastore"
)

type countingStore struct {
	metastore.Store
	uploads int
	fail    error
}

func (s *countingStore) Upload(ctx context.Context, m types.AssetMetadata) (types.MetadataReference, error) {
	s.uploads++
	if s.fail != nil {
		return "", s.fail
	}
	return s.Store.Upload(ctx, m)
}

type fakeGateway struct {
	lk sync.Mutex

	mints, royalties, lists int
	nextHash                int64

	failMint, failRoyalty, failList error
	// the next mint is sent but its receipt is not seen
	mintTimeout bool
	// called inside the next SetRoyalty
	onRoyalty func()
	// called inside every Mint, outside the lock
	onMint func()

	outcomes map[common.Hash]types.TxOutcome

	lastListing types.Listing
	lastTerms   types.RoyaltyTerms
}

func (g *fakeGateway) hash() common.Hash {
	g.nextHash++
	return common.BigToHash(big.NewInt(g.nextHash))
}

func (g *fakeGateway) settled(h common.Hash, out types.TxOutcome) {
	if g.outcomes == nil {
		g.outcomes = make(map[common.Hash]types.TxOutcome)
	}
	g.outcomes[h] = out
}

func (g *fakeGateway) Mint(ctx context.Context, ref types.MetadataReference) (types.TokenID, types.TxRecord, error) {
	if g.onMint != nil {
		g.onMint()
	}

	g.lk.Lock()
	defer g.lk.Unlock()
	g.mints++
	if g.failMint != nil {
		return types.TokenID{}, types.TxRecord{}, g.failMint
	}

	id := types.NewTokenID(big.NewInt(int64(g.mints)))
	rec := types.TxRecord{Step: types.StepMint, Hash: g.hash()}
	if g.mintTimeout {
		g.mintTimeout = false
		g.settled(rec.Hash, types.TxOutcome{Status: types.TxPending})
		return types.TokenID{}, rec, xerrors.Errorf("tx %s not packaged after 2m0s", rec.Hash)
	}
	g.settled(rec.Hash, types.TxOutcome{Status: types.TxConfirmed, TokenID: id})
	return id, rec, nil
}

func (g *fakeGateway) SetRoyalty(ctx context.Context, terms types.RoyaltyTerms) (types.TxRecord, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.royalties++
	g.lastTerms = terms
	if g.onRoyalty != nil {
		g.onRoyalty()
		g.onRoyalty = nil
	}
	if g.failRoyalty != nil {
		return types.TxRecord{}, g.failRoyalty
	}
	rec := types.TxRecord{Step: types.StepSetRoyalty, Hash: g.hash()}
	g.settled(rec.Hash, types.TxOutcome{Status: types.TxConfirmed})
	return rec, nil
}

func (g *fakeGateway) List(ctx context.Context, l types.Listing) (*big.Int, types.TxRecord, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	g.lists++
	g.lastListing = l
	if g.failList != nil {
		return nil, types.TxRecord{}, g.failList
	}
	rec := types.TxRecord{Step: types.StepList, Hash: g.hash()}
	g.settled(rec.Hash, types.TxOutcome{Status: types.TxConfirmed, ListingID: big.NewInt(100)})
	return big.NewInt(100), rec, nil
}

func (g *fakeGateway) Outcome(ctx context.Context, rec types.TxRecord) (types.TxOutcome, error) {
	g.lk.Lock()
	defer g.lk.Unlock()
	out, ok := g.outcomes[rec.Hash]
	if !ok {
		return types.TxOutcome{Status: types.TxDropped}, nil
	}
	return out, nil
}

func (g *fakeGateway) calls() int {
	return g.mints + g.royalties + g.lists
}

func morningNarration() Recording {
	return Recording{
		Title:           "Morning Narration",
		Description:     "Professional morning voice recording",
		DurationSeconds: 120,
		Language:        "en",
		CulturalTags:    []string{"Professional", "American"},
		Characteristics: map[string]string{"tone": "warm"},
		AudioReference:  "ipfs://bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku",
	}
}

var defaultTerms = Terms{RoyaltyPercent: 2.5, Price: "0.1"}

func newTestWorkflow(t *testing.T, opts ...Option) (*Workflow, *countingStore, *fakeGateway) {
	ds, err := kv.NewMemStore()
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })

	store := &countingStore{Store: metastore.NewLocalStore(ds)}
	gw := &fakeGateway{}
	return New(store, gw, ds, opts...), store, gw
}

func TestPublishEndToEnd(t *testing.T) {
	var states []types.State
	w, store, gw := newTestWorkflow(t, WithObserver(func(r types.PublicationResult) {
		if len(states) == 0 || states[len(states)-1] != r.State {
			states = append(states, r.State)
		}
	}))

	res, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.NoError(t, err)

	require.Equal(t, []types.State{
		types.StateNotStarted,
		types.StateMetadataUploaded,
		types.StateMinted,
		types.StateRoyaltySet,
		types.StateListed,
	}, states)

	require.Equal(t, types.StateListed, res.State)
	require.True(t, res.Done())
	require.Len(t, res.Transactions, 3)
	require.Equal(t, types.StepMint, res.Transactions[0].Step)
	require.Equal(t, types.StepSetRoyalty, res.Transactions[1].Step)
	require.Equal(t, types.StepList, res.Transactions[2].Step)
	require.Equal(t, "1", res.TokenID.String())
	require.Equal(t, int64(100), res.ListingID.Int64())
	require.False(t, res.MetadataRef.Empty())

	assert.Equal(t, uint16(250), gw.lastTerms.BasisPoints)
	assert.Equal(t, "100000000000000000", gw.lastListing.PriceInSmallestUnit.String())
	assert.Equal(t, common.Address{}, gw.lastListing.Currency)
	assert.Equal(t, 1, store.uploads)

	// done publications are not touched again
	again, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.NoError(t, err)
	require.Equal(t, res.ID, again.ID)
	require.Equal(t, 3, gw.calls())
	require.Equal(t, 1, store.uploads)

	st, err := w.Status(res.ID)
	require.NoError(t, err)
	require.Equal(t, types.StateListed, st.State)
	require.Len(t, st.Transactions, 3)

	all, err := w.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPublishValidation(t *testing.T) {
	w, store, gw := newTestWorkflow(t)

	for _, pct := range []float64{-0.01, 100.01, 1000} {
		_, err := w.Publish(context.Background(), morningNarration(), Terms{RoyaltyPercent: pct, Price: "1"})
		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
		require.ErrorIs(t, err, types.ErrOutOfRange)
	}

	_, err := w.Publish(context.Background(), morningNarration(), Terms{RoyaltyPercent: 1, Price: "-1"})
	require.ErrorIs(t, err, types.ErrOutOfRange)
	_, err = w.Publish(context.Background(), morningNarration(), Terms{RoyaltyPercent: 1, Price: "abc"})
	require.ErrorIs(t, err, types.ErrMalformed)

	rec := morningNarration()
	rec.Title = ""
	_, err = w.Publish(context.Background(), rec, defaultTerms)
	require.ErrorIs(t, err, types.ErrRequired)

	require.Equal(t, 0, store.uploads)
	require.Equal(t, 0, gw.calls())

	all, err := w.List()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestRoyaltyFailureResumes(t *testing.T) {
	w, _, gw := newTestWorkflow(t)
	gw.failRoyalty = xerrors.New("reverted")

	res, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, types.StepSetRoyalty, perr.Step)
	require.NotNil(t, res)
	require.True(t, res.TokenID.Defined())
	require.Equal(t, types.StateFailed, res.State)
	require.Equal(t, types.StateMinted, res.Completed)
	require.Equal(t, types.StepSetRoyalty, res.FailedStep)
	require.Len(t, res.Transactions, 1)
	require.Equal(t, res, perr.Result)

	gw.failRoyalty = nil

	// publishing again picks up after the mint
	res2, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.NoError(t, err)
	require.Equal(t, 1, gw.mints)
	require.Equal(t, res.ID, res2.ID)
	require.Equal(t, res.TokenID.String(), res2.TokenID.String())
	require.Equal(t, types.StateListed, res2.State)
	require.Len(t, res2.Transactions, 3)
}

func TestListFailureResume(t *testing.T) {
	w, store, gw := newTestWorkflow(t)
	gw.failList = xerrors.New("network")

	res, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, types.StepList, perr.Step)
	require.Equal(t, types.StateRoyaltySet, res.Completed)

	gw.failList = nil
	res2, err := w.Resume(context.Background(), res.ID)
	require.NoError(t, err)
	require.Equal(t, types.StateListed, res2.State)
	require.Equal(t, 1, gw.mints)
	require.Equal(t, 1, gw.royalties)
	require.Equal(t, 2, gw.lists)
	require.Equal(t, 1, store.uploads)

	_, err = w.Resume(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUnknownPublication)
	_, err = w.Status("missing")
	require.ErrorIs(t, err, ErrUnknownPublication)
}

func TestEarlyFailures(t *testing.T) {
	w, store, gw := newTestWorkflow(t)
	store.fail = xerrors.Errorf("down: %w", metastore.ErrUploadFailed)

	res, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.Nil(t, res)
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, types.StepUpload, perr.Step)
	require.ErrorIs(t, err, metastore.ErrUploadFailed)
	require.Equal(t, 0, gw.calls())

	store.fail = nil
	gw.failMint = xerrors.New("rejected")
	res, err = w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.Nil(t, res)
	require.ErrorAs(t, err, &perr)
	require.Equal(t, types.StepMint, perr.Step)
	require.False(t, perr.Result.TokenID.Defined())
	require.Equal(t, types.StateMetadataUploaded, perr.Result.Completed)

	gw.failMint = nil
	res, err = w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.NoError(t, err)
	require.Equal(t, types.StateListed, res.State)
	require.Equal(t, 2, store.uploads)
}

func TestCancelledCallNotApplied(t *testing.T) {
	w, _, gw := newTestWorkflow(t)

	ctx, cancel := context.WithCancel(context.Background())
	gw.onRoyalty = cancel

	res, err := w.Publish(ctx, morningNarration(), defaultTerms)
	require.Nil(t, res)
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, types.StepSetRoyalty, perr.Step)

	// the royalty outcome was not applied; its tx is kept as pending
	st, err := w.Status(perr.Result.ID)
	require.NoError(t, err)
	require.Equal(t, types.StateMinted, st.Completed)
	require.Equal(t, types.StateMinted, st.State)
	require.Len(t, st.Transactions, 1)
	require.NotNil(t, st.Pending)
	require.Equal(t, types.StepSetRoyalty, st.Pending.Step)

	// the royalty tx confirmed in the meantime and is not sent again
	res, err = w.Resume(context.Background(), st.ID)
	require.NoError(t, err)
	require.Equal(t, 1, gw.mints)
	require.Equal(t, 1, gw.royalties)
	require.Nil(t, res.Pending)
	require.Len(t, res.Transactions, 3)
}

func TestMintTimeoutNotMintedTwice(t *testing.T) {
	w, _, gw := newTestWorkflow(t)
	gw.mintTimeout = true

	res, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.Nil(t, res)
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, types.StepMint, perr.Step)
	require.NotNil(t, perr.Result.Pending)
	sent := perr.Result.Pending.Hash
	require.Equal(t, types.StepMint, perr.Result.Pending.Step)

	st, err := w.Status(perr.Result.ID)
	require.NoError(t, err)
	require.Equal(t, types.StateMetadataUploaded, st.Completed)
	require.Equal(t, sent, st.Pending.Hash)

	// still in the pool: stop instead of minting again
	_, err = w.Resume(context.Background(), st.ID)
	require.ErrorIs(t, err, ErrTxPending)
	require.Equal(t, 1, gw.mints)

	gw.lk.Lock()
	gw.settled(sent, types.TxOutcome{Status: types.TxConfirmed, TokenID: types.NewTokenID(big.NewInt(42))})
	gw.lk.Unlock()

	res, err = w.Resume(context.Background(), st.ID)
	require.NoError(t, err)
	require.Equal(t, 1, gw.mints)
	require.Equal(t, types.StateListed, res.State)
	require.Equal(t, "42", res.TokenID.String())
	require.Equal(t, "42", gw.lastTerms.TokenID.String())
	require.Nil(t, res.Pending)
	h, ok := res.Hash(types.StepMint)
	require.True(t, ok)
	require.Equal(t, sent, h)
}

func TestRevertedMintSentAgain(t *testing.T) {
	w, _, gw := newTestWorkflow(t)
	gw.mintTimeout = true

	_, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	var perr *PublicationError
	require.ErrorAs(t, err, &perr)
	sent := perr.Result.Pending.Hash

	gw.lk.Lock()
	gw.settled(sent, types.TxOutcome{Status: types.TxReverted})
	gw.lk.Unlock()

	res, err := w.Resume(context.Background(), perr.Result.ID)
	require.NoError(t, err)
	require.Equal(t, 2, gw.mints)
	require.Equal(t, types.StateListed, res.State)
	require.Len(t, res.Transactions, 4)
	require.Equal(t, types.TxRecord{Step: types.StepMint, Hash: sent, Status: types.TxReverted}, res.Transactions[0])

	h, ok := res.Hash(types.StepMint)
	require.True(t, ok)
	require.NotEqual(t, sent, h)
}

func TestConcurrentPublishSameRecording(t *testing.T) {
	w, _, gw := newTestWorkflow(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.onMint = func() {
		close(entered)
		<-release
	}

	errc := make(chan error, 1)
	go func() {
		_, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
		errc <- err
	}()

	<-entered
	_, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.ErrorIs(t, err, ErrInProgress)

	close(release)
	require.NoError(t, <-errc)
	require.Equal(t, 1, gw.mints)
}

func TestPublicationID(t *testing.T) {
	ref := types.MetadataReference("ipfs://x")
	a := PublicationID(ref, 250, big.NewInt(1), common.Address{})
	require.Equal(t, a, PublicationID(ref, 250, big.NewInt(1), common.Address{}))
	require.NotEqual(t, a, PublicationID(ref, 251, big.NewInt(1), common.Address{}))
	require.NotEqual(t, a, PublicationID(ref, 250, big.NewInt(2), common.Address{}))
	require.Len(t, a, 64)
}
