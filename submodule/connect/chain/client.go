package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/xerrors"
)

// Client is everything the market gateway needs from a node.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	// GetContract validates addr, parses abiJSON and checks that code is
	// deployed at addr.
	GetContract(ctx context.Context, addr string, abiJSON string) (*Contract, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Submit broadcasts tx and waits for its receipt. It does not retry.
	Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	// Lookup returns the receipt of a transaction sent earlier, nil while
	// it waits in the pool, ErrTxUnknown when the node never saw it.
	Lookup(ctx context.Context, h common.Hash) (*types.Receipt, error)
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// Contract is a deployed contract with its parsed ABI.
type Contract struct {
	Address common.Address
	ABI     abi.ABI
}

func NewContract(addr common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Errorf("parse abi: %w", err)
	}
	return &Contract{Address: addr, ABI: parsed}, nil
}

// Pack encodes a call of method with args.
func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	return c.ABI.Pack(method, args...)
}

// Unpack decodes the return values of method.
func (c *Contract) Unpack(method string, data []byte) ([]interface{}, error) {
	return c.ABI.Unpack(method, data)
}

// FindEvent returns the first log in rcpt emitted by this contract with the
// signature of event.
func (c *Contract) FindEvent(rcpt *types.Receipt, event string) (*types.Log, bool) {
	ev, ok := c.ABI.Events[event]
	if !ok || rcpt == nil {
		return nil, false
	}
	for _, l := range rcpt.Logs {
		if l.Address != c.Address || len(l.Topics) == 0 {
			continue
		}
		if l.Topics[0] == ev.ID {
			return l, true
		}
	}
	return nil, false
}
