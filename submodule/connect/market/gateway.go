package market

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/config"
	logging "github.com/memoio/go-voicemint/lib/log"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/submodule/connect/chain"
	"github.com/memoio/go-voicemint/submodule/wallet"
)

var logger = logging.Logger("market")

// Signer is the part of the wallet the gateway drives.
type Signer interface {
	Exclusive(ctx context.Context, fn func(wallet.Account) error) error
	Sign(req wallet.TxRequest) (*etypes.Transaction, error)
}

// Gateway turns typed market operations into signed contract calls.
type Gateway struct {
	client chain.Client
	signer Signer

	nft    *chain.Contract
	market *chain.Contract

	gasLimit uint64

	lk sync.Mutex
	// next nonce per account; dropped after any failed send
	nonces map[common.Address]uint64
}

// NewGateway loads both contracts; it fails when either address is
// malformed or has no code.
func NewGateway(ctx context.Context, client chain.Client, signer Signer, cfg config.ContractsConfig, gasLimit uint64) (*Gateway, error) {
	nft, err := client.GetContract(ctx, cfg.NFT, NFTABI)
	if err != nil {
		return nil, xerrors.Errorf("load nft contract: %w", err)
	}
	mkt, err := client.GetContract(ctx, cfg.Market, MarketABI)
	if err != nil {
		return nil, xerrors.Errorf("load market contract: %w", err)
	}

	if gasLimit == 0 {
		gasLimit = build.DefaultGasLimit
	}

	logger.Debugf("gateway nft %s market %s", nft.Address, mkt.Address)

	return &Gateway{
		client:   client,
		signer:   signer,
		nft:      nft,
		market:   mkt,
		gasLimit: gasLimit,
		nonces:   make(map[common.Address]uint64),
	}, nil
}

// Mint creates a token whose URI is ref. The id is read from the Transfer
// event of the confirmed receipt.
func (g *Gateway) Mint(ctx context.Context, ref types.MetadataReference) (types.TokenID, types.TxRecord, error) {
	if ref.Empty() {
		return types.TokenID{}, types.TxRecord{}, callErr(types.StepMint, xerrors.New("empty metadata reference"))
	}

	data, err := g.nft.Pack(methodMint, ref.String())
	if err != nil {
		return types.TokenID{}, types.TxRecord{}, callErr(types.StepMint, err)
	}

	rcpt, rec, err := g.send(ctx, types.StepMint, g.nft, nil, data)
	if err != nil {
		return types.TokenID{}, rec, callErr(types.StepMint, err)
	}

	id, err := g.mintedToken(rcpt, rec)
	if err != nil {
		return types.TokenID{}, rec, err
	}

	logger.Infof("minted token %s in tx %s", id, rec.Hash)
	return id, rec, nil
}

// mintedToken reads the id from the Transfer event of a mint receipt.
func (g *Gateway) mintedToken(rcpt *etypes.Receipt, rec types.TxRecord) (types.TokenID, error) {
	l, ok := g.nft.FindEvent(rcpt, eventTransfer)
	if !ok || len(l.Topics) < 4 {
		return types.TokenID{}, callErr(types.StepMint, xerrors.Errorf("%s in tx %s: %w", eventTransfer, rec.Hash, ErrMissingEvent))
	}
	return types.NewTokenID(l.Topics[3].Big()), nil
}

func (g *Gateway) SetRoyalty(ctx context.Context, terms types.RoyaltyTerms) (types.TxRecord, error) {
	if err := types.ValidateBasisPoints(terms.BasisPoints); err != nil {
		return types.TxRecord{}, callErr(types.StepSetRoyalty, err)
	}
	if !terms.TokenID.Defined() {
		return types.TxRecord{}, callErr(types.StepSetRoyalty, xerrors.New("token id undefined"))
	}

	data, err := g.nft.Pack(methodRoyalty, terms.TokenID.Big(), new(big.Int).SetUint64(uint64(terms.BasisPoints)))
	if err != nil {
		return types.TxRecord{}, callErr(types.StepSetRoyalty, err)
	}

	_, rec, err := g.send(ctx, types.StepSetRoyalty, g.nft, nil, data)
	if err != nil {
		return rec, callErr(types.StepSetRoyalty, err)
	}

	logger.Infof("royalty of token %s set to %d bps in tx %s", terms.TokenID, terms.BasisPoints, rec.Hash)
	return rec, nil
}

// List offers l on the market. The listing id is nil when the contract does
// not emit ItemListed.
func (g *Gateway) List(ctx context.Context, l types.Listing) (*big.Int, types.TxRecord, error) {
	if !l.TokenID.Defined() || l.PriceInSmallestUnit == nil || l.PriceInSmallestUnit.Sign() < 0 {
		return nil, types.TxRecord{}, callErr(types.StepList, xerrors.New("invalid listing"))
	}

	data, err := g.market.Pack(methodList, l.TokenID.Big(), l.PriceInSmallestUnit, l.Currency)
	if err != nil {
		return nil, types.TxRecord{}, callErr(types.StepList, err)
	}

	rcpt, rec, err := g.send(ctx, types.StepList, g.market, nil, data)
	if err != nil {
		return nil, rec, callErr(types.StepList, err)
	}

	var listingID *big.Int
	if ev, ok := g.market.FindEvent(rcpt, eventListed); ok && len(ev.Topics) > 1 {
		listingID = ev.Topics[1].Big()
	}

	logger.Infof("listed token %s at %s in tx %s", l.TokenID, l.PriceInSmallestUnit, rec.Hash)
	return listingID, rec, nil
}

// Outcome settles a transaction sent earlier for rec.Step. A confirmed mint
// carries the token id of its Transfer event, a confirmed listing the id of
// its ItemListed event when the contract emits one.
func (g *Gateway) Outcome(ctx context.Context, rec types.TxRecord) (types.TxOutcome, error) {
	rcpt, err := g.client.Lookup(ctx, rec.Hash)
	switch {
	case errors.Is(err, chain.ErrTxUnknown):
		return types.TxOutcome{Status: types.TxDropped}, nil
	case err != nil:
		return types.TxOutcome{}, err
	case rcpt == nil:
		return types.TxOutcome{Status: types.TxPending}, nil
	case rcpt.Status == etypes.ReceiptStatusFailed:
		return types.TxOutcome{Status: types.TxReverted}, nil
	}

	out := types.TxOutcome{Status: types.TxConfirmed}
	switch rec.Step {
	case types.StepMint:
		out.TokenID, err = g.mintedToken(rcpt, rec)
		if err != nil {
			return types.TxOutcome{}, err
		}
	case types.StepList:
		if ev, ok := g.market.FindEvent(rcpt, eventListed); ok && len(ev.Topics) > 1 {
			out.ListingID = ev.Topics[1].Big()
		}
	}

	logger.Infof("%s tx %s settled as %s", rec.Step, rec.Hash, out.Status)
	return out, nil
}

// Buy purchases a listing, paying value in the native coin.
func (g *Gateway) Buy(ctx context.Context, listingID *big.Int, value *big.Int) (types.TxRecord, error) {
	if listingID == nil || listingID.Sign() < 0 {
		return types.TxRecord{}, callErr(types.StepBuy, xerrors.New("invalid listing id"))
	}
	if value != nil && value.Sign() < 0 {
		return types.TxRecord{}, callErr(types.StepBuy, xerrors.New("negative value"))
	}

	data, err := g.market.Pack(methodBuy, listingID)
	if err != nil {
		return types.TxRecord{}, callErr(types.StepBuy, err)
	}

	_, rec, err := g.send(ctx, types.StepBuy, g.market, value, data)
	if err != nil {
		return rec, callErr(types.StepBuy, err)
	}
	return rec, nil
}

// RoyaltyInfo asks the nft contract who receives what on a sale at
// salePrice.
func (g *Gateway) RoyaltyInfo(ctx context.Context, id types.TokenID, salePrice *big.Int) (common.Address, *big.Int, error) {
	if !id.Defined() || salePrice == nil {
		return common.Address{}, nil, xerrors.New("token id and sale price required")
	}

	out, err := g.call(ctx, g.nft, methodRoyaltyOf, id.Big(), salePrice)
	if err != nil {
		return common.Address{}, nil, err
	}
	if len(out) != 2 {
		return common.Address{}, nil, xerrors.Errorf("%s: unexpected %d outputs", methodRoyaltyOf, len(out))
	}

	receiver, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, nil, xerrors.Errorf("%s: bad receiver %T", methodRoyaltyOf, out[0])
	}
	amount, ok := out[1].(*big.Int)
	if !ok {
		return common.Address{}, nil, xerrors.Errorf("%s: bad amount %T", methodRoyaltyOf, out[1])
	}
	return receiver, amount, nil
}

// OwnerOf returns the current holder of id.
func (g *Gateway) OwnerOf(ctx context.Context, id types.TokenID) (common.Address, error) {
	if !id.Defined() {
		return common.Address{}, xerrors.New("token id undefined")
	}

	out, err := g.call(ctx, g.nft, methodOwnerOf, id.Big())
	if err != nil {
		return common.Address{}, err
	}
	if len(out) != 1 {
		return common.Address{}, xerrors.Errorf("%s: unexpected %d outputs", methodOwnerOf, len(out))
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, xerrors.Errorf("%s: bad owner %T", methodOwnerOf, out[0])
	}
	return owner, nil
}

// Balance is the native coin balance of addr, i.e. the earnings collected
// from sales and royalties.
func (g *Gateway) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return g.client.Balance(ctx, addr)
}

func (g *Gateway) call(ctx context.Context, c *chain.Contract, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	to := c.Address
	res, err := g.client.Call(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, xerrors.Errorf("call %s: %w", method, err)
	}
	return c.Unpack(method, res)
}

// send signs and submits one call from the active account. Nonce lookup,
// signing and submission run under the wallet's exclusive slot.
func (g *Gateway) send(ctx context.Context, step types.Step, c *chain.Contract, value *big.Int, data []byte) (*etypes.Receipt, types.TxRecord, error) {
	var (
		rcpt *etypes.Receipt
		rec  types.TxRecord
	)

	chainID, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, rec, err
	}

	err = g.signer.Exclusive(ctx, func(acct wallet.Account) error {
		nonce, err := g.nonce(ctx, acct.Address)
		if err != nil {
			return err
		}

		gasPrice, err := g.client.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}

		to := c.Address
		tx, err := g.signer.Sign(wallet.TxRequest{
			ChainID:  chainID,
			Nonce:    nonce,
			To:       &to,
			Value:    value,
			GasLimit: g.gasLimit,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			return err
		}
		rec = types.TxRecord{Step: step, Hash: tx.Hash()}

		logger.Debugf("%s from %s nonce %d tx %s", step, acct.Address, nonce, tx.Hash())

		rcpt, err = g.client.Submit(ctx, tx)
		if err != nil {
			g.resetNonce(acct.Address)
			return err
		}

		g.lk.Lock()
		g.nonces[acct.Address] = nonce + 1
		g.lk.Unlock()
		return nil
	})
	if err != nil {
		return nil, rec, err
	}
	return rcpt, rec, nil
}

func (g *Gateway) nonce(ctx context.Context, addr common.Address) (uint64, error) {
	g.lk.Lock()
	n, ok := g.nonces[addr]
	g.lk.Unlock()
	if ok {
		return n, nil
	}

	n, err := g.client.PendingNonce(ctx, addr)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (g *Gateway) resetNonce(addr common.Address) {
	g.lk.Lock()
	delete(g.nonces, addr)
	g.lk.Unlock()
}
