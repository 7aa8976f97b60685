package publish

import (
	"context"
	"encoding/hex"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/lib/backend/kv"
	logging "github.com/memoio/go-voicemint/lib/log"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/submodule/metastore"
	"github.com/memoio/go-voicemint/submodule/metrics"
)

var logger = logging.Logger("publish")

const (
	recordPrefix   = "publish/record/"
	metadataPrefix = "publish/metadata/"
)

// Recording describes the voice recording being published.
type Recording = types.MetadataParams

// Terms are the commercial terms of a publication. Price is a decimal
// amount in major units; digits below the smallest unit are truncated.
type Terms struct {
	RoyaltyPercent float64
	Price          string
	Currency       common.Address
}

// Gateway is the on-chain half of a publication.
type Gateway interface {
	Mint(ctx context.Context, ref types.MetadataReference) (types.TokenID, types.TxRecord, error)
	SetRoyalty(ctx context.Context, terms types.RoyaltyTerms) (types.TxRecord, error)
	List(ctx context.Context, l types.Listing) (*big.Int, types.TxRecord, error)
	// Outcome settles a transaction sent by an earlier attempt.
	Outcome(ctx context.Context, rec types.TxRecord) (types.TxOutcome, error)
}

// Workflow drives recordings through upload, mint, royalty and listing.
// Every completed step is persisted before the next one starts, so a failed
// or abandoned publication continues where it stopped.
type Workflow struct {
	store metastore.Store
	gw    Gateway
	ds    kv.Store

	decimals uint8
	observe  func(types.PublicationResult)

	lk      sync.Mutex
	running map[string]struct{}
}

type Option func(*Workflow)

// WithDecimals sets the scale of listing prices.
func WithDecimals(d uint8) Option {
	return func(w *Workflow) {
		w.decimals = d
	}
}

// WithObserver is called with a copy of the record after each persisted
// change.
func WithObserver(fn func(types.PublicationResult)) Option {
	return func(w *Workflow) {
		w.observe = fn
	}
}

func New(store metastore.Store, gw Gateway, ds kv.Store, opts ...Option) *Workflow {
	w := &Workflow{
		store:    store,
		gw:       gw,
		ds:       ds,
		decimals: build.NativeDecimals,
		running:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PublicationID derives the id of publishing ref under the given terms.
func PublicationID(ref types.MetadataReference, bps uint16, price *big.Int, currency common.Address) string {
	h := blake3.New()
	h.Write([]byte(ref))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(uint64(bps), 10)))
	h.Write([]byte{0})
	h.Write([]byte(price.String()))
	h.Write([]byte{0})
	h.Write(currency.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

// Publish validates its input, then runs the publication. Publishing the
// same recording under the same terms again continues the earlier attempt.
// A royalty or listing failure returns the partial result together with a
// *PublicationError.
func (w *Workflow) Publish(ctx context.Context, rec Recording, terms Terms) (*types.PublicationResult, error) {
	meta, err := types.NewAssetMetadata(rec)
	if err != nil {
		return nil, err
	}
	bps, err := types.PercentToBasisPoints(terms.RoyaltyPercent)
	if err != nil {
		return nil, err
	}
	price, err := types.MajorToSmallest(terms.Price, w.decimals)
	if err != nil {
		return nil, err
	}

	doc, err := meta.Serialize()
	if err != nil {
		return nil, err
	}
	c, err := metastore.ComputeCID(doc)
	if err != nil {
		return nil, err
	}
	id := PublicationID(types.NewMetadataReference(c), bps, price, terms.Currency)

	if err := w.acquire(id); err != nil {
		return nil, err
	}
	defer w.release(id)

	res, err := w.load(id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		now := time.Now()
		res = &types.PublicationResult{
			ID:          id,
			Title:       meta.Title(),
			State:       types.StateNotStarted,
			Completed:   types.StateNotStarted,
			BasisPoints: bps,
			Price:       price,
			Currency:    terms.Currency,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := w.ds.Put([]byte(metadataPrefix+id), doc); err != nil {
			return nil, err
		}
		if err := w.save(res); err != nil {
			return nil, err
		}
		logger.Infof("new publication %s: %q", id, meta.Title())
	} else {
		logger.Infof("publication %s exists at %s, resuming", id, res.Completed)
	}

	return w.run(ctx, res, meta)
}

// Resume continues a persisted publication from its last completed state.
// It never mints twice.
func (w *Workflow) Resume(ctx context.Context, id string) (*types.PublicationResult, error) {
	if err := w.acquire(id); err != nil {
		return nil, err
	}
	defer w.release(id)

	res, err := w.load(id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownPublication)
	}

	doc, err := w.ds.Get([]byte(metadataPrefix + id))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, xerrors.Errorf("%s: metadata missing: %w", id, ErrUnknownPublication)
	}
	meta, err := types.DecodeAssetMetadata(doc)
	if err != nil {
		return nil, err
	}

	return w.run(ctx, res, meta)
}

// Status returns the persisted record of id.
func (w *Workflow) Status(id string) (*types.PublicationResult, error) {
	res, err := w.load(id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, xerrors.Errorf("%s: %w", id, ErrUnknownPublication)
	}
	return res, nil
}

// List returns all persisted publications, oldest first.
func (w *Workflow) List() ([]*types.PublicationResult, error) {
	var (
		out  []*types.PublicationResult
		ferr error
	)
	w.ds.Iter([]byte(recordPrefix), func(k, v []byte) error {
		res := new(types.PublicationResult)
		if err := res.Deserialize(v); err != nil {
			ferr = xerrors.Errorf("decode %s: %w", k, err)
			return err
		}
		out = append(out, res)
		return nil
	})
	if ferr != nil {
		return nil, ferr
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (w *Workflow) run(ctx context.Context, res *types.PublicationResult, meta types.AssetMetadata) (*types.PublicationResult, error) {
	if res.Done() {
		return res, nil
	}

	metrics.Count(ctx, metrics.PublishStarted)

	for _, step := range []types.Step{types.StepUpload, types.StepMint, types.StepSetRoyalty, types.StepList} {
		if res.Completed >= step.Reached() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, w.abandon(res, step, err)
		}

		sctx := metrics.Tagged(ctx, metrics.Step, step.String())

		if res.Pending != nil {
			settled, err := w.settle(ctx, step, res)
			if err != nil {
				if ctx.Err() != nil {
					return nil, w.abandon(res, step, err)
				}
				metrics.Count(sctx, metrics.StepFailure)
				return w.fail(res, step, err)
			}
			if settled {
				if err := w.complete(sctx, res, step); err != nil {
					return nil, err
				}
				continue
			}
		}

		done := metrics.Timer(sctx, metrics.StepDuration)
		apply, tx, err := w.exec(ctx, step, res, meta)
		done()

		if err == nil && ctx.Err() != nil {
			// the caller gave up while the call was in flight
			err = ctx.Err()
		}
		if err != nil {
			if tx.Hash != (common.Hash{}) {
				tx.Status = types.TxPending
				res.Pending = &tx
			}
			if ctx.Err() != nil {
				return nil, w.abandon(res, step, err)
			}
			metrics.Count(sctx, metrics.StepFailure)
			return w.fail(res, step, err)
		}

		apply()
		if err := w.complete(sctx, res, step); err != nil {
			return nil, err
		}
	}

	metrics.Count(ctx, metrics.PublishFinished)
	return res, nil
}

func (w *Workflow) complete(ctx context.Context, res *types.PublicationResult, step types.Step) error {
	res.Completed = step.Reached()
	res.State = res.Completed
	res.FailedStep = types.StepNone
	res.Failure = ""
	if err := w.save(res); err != nil {
		return &PublicationError{Step: step, Cause: err, Result: res}
	}
	metrics.Count(ctx, metrics.StepSuccess)
	logger.Infof("publication %s reached %s", res.ID, res.State)
	return nil
}

// exec performs one step and returns how to apply its outcome to res. The
// returned record names the transaction sent, also when err is set.
func (w *Workflow) exec(ctx context.Context, step types.Step, res *types.PublicationResult, meta types.AssetMetadata) (func(), types.TxRecord, error) {
	switch step {
	case types.StepUpload:
		ref, err := w.store.Upload(ctx, meta)
		if err != nil {
			return nil, types.TxRecord{}, err
		}
		return func() { res.MetadataRef = ref }, types.TxRecord{}, nil

	case types.StepMint:
		id, tx, err := w.gw.Mint(ctx, res.MetadataRef)
		if err != nil {
			return nil, tx, err
		}
		return func() {
			res.TokenID = id
			res.Transactions = append(res.Transactions, tx)
		}, tx, nil

	case types.StepSetRoyalty:
		terms, err := types.NewRoyaltyTerms(res.TokenID, res.BasisPoints)
		if err != nil {
			return nil, types.TxRecord{}, err
		}
		tx, err := w.gw.SetRoyalty(ctx, terms)
		if err != nil {
			return nil, tx, err
		}
		return func() { res.Transactions = append(res.Transactions, tx) }, tx, nil

	case types.StepList:
		l, err := types.NewListing(res.TokenID, res.Price, res.Currency)
		if err != nil {
			return nil, types.TxRecord{}, err
		}
		lid, tx, err := w.gw.List(ctx, l)
		if err != nil {
			return nil, tx, err
		}
		return func() {
			res.ListingID = lid
			res.Transactions = append(res.Transactions, tx)
		}, tx, nil
	}

	return nil, types.TxRecord{}, xerrors.Errorf("unexpected step %s", step)
}

// settle resolves the transaction an earlier attempt of step left pending.
// It reports true when that transaction completed step. A reverted or
// dropped transaction is kept in the trail and step runs again; a pending
// one stops the publication so nothing is sent twice.
func (w *Workflow) settle(ctx context.Context, step types.Step, res *types.PublicationResult) (bool, error) {
	p := *res.Pending
	if p.Step != step {
		return false, xerrors.Errorf("pending %s tx %s while at %s", p.Step, p.Hash, step)
	}

	out, err := w.gw.Outcome(ctx, p)
	if err != nil {
		return false, err
	}

	switch out.Status {
	case types.TxPending:
		return false, xerrors.Errorf("%s tx %s: %w", step, p.Hash, ErrTxPending)
	case types.TxConfirmed:
		switch step {
		case types.StepMint:
			res.TokenID = out.TokenID
		case types.StepList:
			res.ListingID = out.ListingID
		}
	default:
		logger.Infof("publication %s: %s tx %s %s, sending again", res.ID, step, p.Hash, out.Status)
	}

	p.Status = out.Status
	res.Transactions = append(res.Transactions, p)
	res.Pending = nil
	return out.Status == types.TxConfirmed, nil
}

// fail marks res failed at step. Upload and mint failures leave nothing to
// act on and return no result.
func (w *Workflow) fail(res *types.PublicationResult, step types.Step, cause error) (*types.PublicationResult, error) {
	res.State = types.StateFailed
	res.FailedStep = step
	res.Failure = cause.Error()
	if err := w.save(res); err != nil {
		logger.Errorf("persist failed publication %s: %s", res.ID, err)
	}

	logger.Warnf("publication %s failed at %s: %s", res.ID, step, cause)

	perr := &PublicationError{Step: step, Cause: cause, Result: res}
	switch step {
	case types.StepUpload, types.StepMint:
		return nil, perr
	default:
		return res, perr
	}
}

// abandon stops on a cancelled context. The state stays where it was; a
// transaction already sent for step is kept as pending.
func (w *Workflow) abandon(res *types.PublicationResult, step types.Step, cause error) error {
	logger.Infof("publication %s abandoned before completing %s", res.ID, step)
	if res.Pending != nil {
		if err := w.save(res); err != nil {
			logger.Errorf("persist pending tx of %s: %s", res.ID, err)
		}
	}
	return &PublicationError{Step: step, Cause: cause, Result: res}
}

func (w *Workflow) load(id string) (*types.PublicationResult, error) {
	b, err := w.ds.Get([]byte(recordPrefix + id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}

	res := new(types.PublicationResult)
	if err := res.Deserialize(b); err != nil {
		return nil, xerrors.Errorf("decode publication %s: %w", id, err)
	}
	return res, nil
}

func (w *Workflow) save(res *types.PublicationResult) error {
	res.UpdatedAt = time.Now()
	b, err := res.Serialize()
	if err != nil {
		return err
	}
	if err := w.ds.Put([]byte(recordPrefix+res.ID), b); err != nil {
		return xerrors.Errorf("persist publication %s: %w", res.ID, err)
	}

	if w.observe != nil {
		cp := *res
		cp.Transactions = append([]types.TxRecord(nil), res.Transactions...)
		if res.Pending != nil {
			p := *res.Pending
			cp.Pending = &p
		}
		w.observe(cp)
	}
	return nil
}

func (w *Workflow) acquire(id string) error {
	w.lk.Lock()
	defer w.lk.Unlock()

	if _, ok := w.running[id]; ok {
		return xerrors.Errorf("%s: %w", id, ErrInProgress)
	}
	w.running[id] = struct{}{}
	return nil
}

func (w *Workflow) release(id string) {
	w.lk.Lock()
	delete(w.running, id)
	w.lk.Unlock()
}
