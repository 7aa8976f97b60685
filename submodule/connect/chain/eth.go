package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/address"
	logging "github.com/memoio/go-voicemint/lib/log"
	"github.com/memoio/go-voicemint/submodule/metrics"
)

var logger = logging.Logger("chain")

// Backend is the subset of ethclient.Client used here.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Client = (*EthClient)(nil)

type EthClient struct {
	b Backend

	lk sync.Mutex
	// fixed by config, else asked once
	chainID *big.Int

	pollInterval   time.Duration
	receiptTimeout time.Duration
}

type Option func(*EthClient)

func WithChainID(id uint64) Option {
	return func(c *EthClient) {
		if id > 0 {
			c.chainID = new(big.Int).SetUint64(id)
		}
	}
}

func WithReceiptPolling(interval, timeout time.Duration) Option {
	return func(c *EthClient) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if timeout > 0 {
			c.receiptTimeout = timeout
		}
	}
}

func New(b Backend, opts ...Option) *EthClient {
	c := &EthClient{
		b:              b,
		pollInterval:   build.ReceiptPollInterval,
		receiptTimeout: build.ReceiptTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to cfg.Endpoint.
func Dial(ctx context.Context, cfg config.ChainConfig) (*EthClient, error) {
	logger.Debug("dial chain: ", cfg.Endpoint)

	client, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, xerrors.Errorf("get client from %s fail: %s: %w", cfg.Endpoint, err, ErrNetwork)
	}

	return New(client,
		WithChainID(cfg.ChainID),
		WithReceiptPolling(cfg.PollInterval.Std(), cfg.ReceiptTimeout.Std()),
	), nil
}

func (c *EthClient) ChainID(ctx context.Context) (*big.Int, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}

	id, err := c.b.ChainID(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if id == nil || id.Sign() == 0 {
		id = big.NewInt(build.DefaultChainID)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

func (c *EthClient) GetContract(ctx context.Context, addr string, abiJSON string) (*Contract, error) {
	caddr, err := address.Parse(addr)
	if err != nil {
		return nil, xerrors.Errorf("%q: %s: %w", addr, err, ErrInvalidAddress)
	}

	contract, err := NewContract(caddr, abiJSON)
	if err != nil {
		return nil, err
	}

	code, err := c.b.CodeAt(ctx, caddr, nil)
	if err != nil {
		return nil, classify(err)
	}
	if len(code) == 0 {
		return nil, xerrors.Errorf("%s: %w", caddr, ErrContractNotFound)
	}

	return contract, nil
}

func (c *EthClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.b.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (c *EthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	p, err := c.b.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return p, nil
}

func (c *EthClient) Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	defer metrics.Timer(ctx, metrics.TxSubmitDuration)()

	err := c.b.SendTransaction(ctx, tx)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrTransactionRejected) {
			metrics.Count(ctx, metrics.TxRejected)
		}
		return nil, xerrors.Errorf("send tx %s: %w", tx.Hash(), err)
	}
	metrics.Count(ctx, metrics.TxSubmitted)
	logger.Debugf("sent tx %s nonce %d", tx.Hash(), tx.Nonce())

	rcpt, err := c.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}

	// 0 means fail
	if rcpt.Status == types.ReceiptStatusFailed {
		metrics.Count(ctx, metrics.TxRejected)
		if rcpt.GasUsed >= tx.Gas() {
			return rcpt, xerrors.Errorf("tx %s exceed gas limit: %w", tx.Hash(), ErrTransactionRejected)
		}
		return rcpt, xerrors.Errorf("tx %s mined but execution failed: %w", tx.Hash(), ErrTransactionRejected)
	}

	return rcpt, nil
}

// waitReceipt polls until the receipt shows up, ctx is done or the receipt
// timeout expires.
func (c *EthClient) waitReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	pctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		rcpt, err := c.b.TransactionReceipt(pctx, h)
		if err == nil && rcpt != nil {
			return rcpt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			if ctx.Err() != nil {
				return nil, xerrors.Errorf("wait receipt %s: %w", h, ctx.Err())
			}
			if pctx.Err() == nil {
				return nil, xerrors.Errorf("get receipt %s: %w", h, classify(err))
			}
		}

		select {
		case <-pctx.Done():
			if ctx.Err() != nil {
				return nil, xerrors.Errorf("wait receipt %s: %w", h, ctx.Err())
			}
			return nil, xerrors.Errorf("tx %s not packaged after %s: %w", h, c.receiptTimeout, ErrNetwork)
		case <-tick.C:
		}
	}
}

func (c *EthClient) Lookup(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	rcpt, err := c.b.TransactionReceipt(ctx, h)
	if err == nil && rcpt != nil {
		return rcpt, nil
	}
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return nil, xerrors.Errorf("get receipt %s: %w", h, classify(err))
	}

	_, pending, err := c.b.TransactionByHash(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return nil, xerrors.Errorf("tx %s: %w", h, ErrTxUnknown)
	}
	if err != nil {
		return nil, xerrors.Errorf("get tx %s: %w", h, classify(err))
	}
	if !pending {
		// mined between the two queries
		return c.b.TransactionReceipt(ctx, h)
	}
	return nil, nil
}

func (c *EthClient) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer metrics.Timer(ctx, metrics.CallDuration)()

	out, err := c.b.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (c *EthClient) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	val, err := c.b.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, classify(err)
	}
	return val, nil
}

// classify maps a node error onto ErrTransactionRejected when the node
// answered with a JSON-RPC error, ErrNetwork otherwise. Context errors pass
// through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rerr rpc.Error
	if errors.As(err, &rerr) {
		return xerrors.Errorf("%s (code %d): %w", rerr.Error(), rerr.ErrorCode(), ErrTransactionRejected)
	}
	return xerrors.Errorf("%s: %w", err, ErrNetwork)
}
