package market

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/lib/address"
	"github.com/memoio/go-voicemint/submodule/connect/chain"
)

var (
	nftAddr    = common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	marketAddr = common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
)

// fakeChain mines every transaction immediately and emits the events the
// real contracts would.
type fakeChain struct {
	lk sync.Mutex

	chainID *big.Int
	nonces  map[common.Address]uint64
	// nonce gaps or reuse seen on submit
	violations []string

	nextToken   int64
	nextListing int64
	noListEvent bool

	// fail the next submit of this method
	failMethod string
	reverted   bool
	// the next submit of this method is mined, but Submit times out and
	// Lookup sees it pending until revealed
	timeoutMethod string

	receipts map[common.Hash]*etypes.Receipt
	hidden   map[common.Hash]bool

	sent    []*etypes.Transaction
	methods []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:     big.NewInt(1337),
		nonces:      make(map[common.Address]uint64),
		nextToken:   1,
		nextListing: 100,
		receipts:    make(map[common.Hash]*etypes.Receipt),
		hidden:      make(map[common.Hash]bool),
	}
}

var _ chain.Client = (*fakeChain)(nil)

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeChain) GetContract(ctx context.Context, addr string, abiJSON string) (*chain.Contract, error) {
	a, err := address.Parse(addr)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err, chain.ErrInvalidAddress)
	}
	if a != nftAddr && a != marketAddr {
		return nil, chain.ErrContractNotFound
	}
	return chain.NewContract(a, abiJSON)
}

func (f *fakeChain) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	return f.nonces[account], nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeChain) Submit(ctx context.Context, tx *etypes.Transaction) (*etypes.Receipt, error) {
	f.lk.Lock()
	defer f.lk.Unlock()

	from, err := etypes.Sender(etypes.NewEIP155Signer(f.chainID), tx)
	if err != nil {
		return nil, err
	}
	if tx.Nonce() != f.nonces[from] {
		f.violations = append(f.violations, from.Hex())
		return nil, xerrors.Errorf("nonce %d, want %d: %w", tx.Nonce(), f.nonces[from], chain.ErrTransactionRejected)
	}

	method, err := f.method(tx)
	if err != nil {
		return nil, err
	}

	if method == f.failMethod {
		f.failMethod = ""
		if !f.reverted {
			// never reached the pool
			return nil, xerrors.Errorf("dial: %w", chain.ErrNetwork)
		}
		f.nonces[from]++
		rcpt := &etypes.Receipt{Status: etypes.ReceiptStatusFailed, TxHash: tx.Hash()}
		f.receipts[tx.Hash()] = rcpt
		return rcpt, xerrors.Errorf("reverted: %w", chain.ErrTransactionRejected)
	}

	f.nonces[from]++
	f.sent = append(f.sent, tx)
	f.methods = append(f.methods, method)

	rcpt := &etypes.Receipt{Status: etypes.ReceiptStatusSuccessful, TxHash: tx.Hash()}
	switch method {
	case methodMint:
		id := f.nextToken
		f.nextToken++
		rcpt.Logs = append(rcpt.Logs, &etypes.Log{
			Address: nftAddr,
			Topics: []common.Hash{
				common.HexToHash("0x1234"),
			},
		}, &etypes.Log{
			Address: nftAddr,
			Topics: []common.Hash{
				transferID(),
				{},
				common.BytesToHash(from.Bytes()),
				common.BigToHash(big.NewInt(id)),
			},
		})
	case methodList:
		if !f.noListEvent {
			id := f.nextListing
			f.nextListing++
			rcpt.Logs = append(rcpt.Logs, &etypes.Log{
				Address: marketAddr,
				Topics: []common.Hash{
					listedID(),
					common.BigToHash(big.NewInt(id)),
				},
			})
		}
	}
	f.receipts[tx.Hash()] = rcpt

	if method == f.timeoutMethod {
		f.timeoutMethod = ""
		f.hidden[tx.Hash()] = true
		return nil, xerrors.Errorf("tx %s not packaged after 2m0s: %w", tx.Hash(), chain.ErrNetwork)
	}
	return rcpt, nil
}

func (f *fakeChain) Lookup(ctx context.Context, h common.Hash) (*etypes.Receipt, error) {
	f.lk.Lock()
	defer f.lk.Unlock()

	if f.hidden[h] {
		return nil, nil
	}
	rcpt, ok := f.receipts[h]
	if !ok {
		return nil, xerrors.Errorf("tx %s: %w", h, chain.ErrTxUnknown)
	}
	return rcpt, nil
}

// reveal lets Lookup see every mined receipt.
func (f *fakeChain) reveal() {
	f.lk.Lock()
	f.hidden = make(map[common.Hash]bool)
	f.lk.Unlock()
}

func (f *fakeChain) count(method string) int {
	f.lk.Lock()
	defer f.lk.Unlock()

	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeChain) method(tx *etypes.Transaction) (string, error) {
	c := nftContract()
	if *tx.To() == marketAddr {
		c = marketContract()
	}
	m, err := c.ABI.MethodById(tx.Data()[:4])
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

func (f *fakeChain) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c := nftContract()
	m, err := c.ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch m.Name {
	case methodRoyaltyOf:
		args, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		price := args[1].(*big.Int)
		amount := new(big.Int).Div(new(big.Int).Mul(price, big.NewInt(250)), big.NewInt(10000))
		return m.Outputs.Pack(marketAddr, amount)
	case methodOwnerOf:
		return m.Outputs.Pack(nftAddr)
	}
	return nil, xerrors.Errorf("unexpected call %s", m.Name)
}

func (f *fakeChain) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(7), nil
}

func nftContract() *chain.Contract {
	c, err := chain.NewContract(nftAddr, NFTABI)
	if err != nil {
		panic(err)
	}
	return c
}

func marketContract() *chain.Contract {
	c, err := chain.NewContract(marketAddr, MarketABI)
	if err != nil {
		panic(err)
	}
	return c
}

func transferID() common.Hash {
	return nftContract().ABI.Events[eventTransfer].ID
}

func listedID() common.Hash {
	return marketContract().ABI.Events[eventListed].ID
}
