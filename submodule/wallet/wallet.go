package wallet

import (
	"context"
	"encoding/hex"
	"io/ioutil"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/lib/address"
	logging "github.com/memoio/go-voicemint/lib/log"
)

var logger = logging.Logger("wallet")

// Account is the public half of the active key.
type Account struct {
	Address common.Address
}

// TxRequest is an unsigned contract call or transfer.
type TxRequest struct {
	ChainID  *big.Int
	Nonce    uint64
	To       *common.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Data     []byte
}

// Wallet holds at most one unlocked account at a time. Key material never
// leaves this package and is wiped when replaced or locked.
type Wallet struct {
	p           string
	defaultAddr string

	scryptN int
	scryptP int

	lk     sync.RWMutex
	active *Key

	// serializes nonce+sign+submit sequences
	sem chan struct{}
}

type Option func(*Wallet)

// WithDefaultAddress picks the keyfile Unlock opens.
func WithDefaultAddress(addr string) Option {
	return func(w *Wallet) {
		w.defaultAddr = addr
	}
}

// WithLightScrypt lowers the keyfile KDF cost.
func WithLightScrypt() Option {
	return func(w *Wallet) {
		w.scryptN = LightScryptN
		w.scryptP = LightScryptP
	}
}

func New(p string, opts ...Option) (*Wallet, error) {
	err := os.MkdirAll(p, 0700)
	if err != nil {
		return nil, err
	}

	w := &Wallet{
		p:       p,
		scryptN: StandardScryptN,
		scryptP: StandardScryptP,
		sem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.defaultAddr != "" {
		if _, err := address.Parse(w.defaultAddr); err != nil {
			return nil, xerrors.Errorf("default address %q: %w", w.defaultAddr, err)
		}
	}

	return w, nil
}

// List returns the addresses of all keyfiles.
func (w *Wallet) List() ([]common.Address, error) {
	var addrs []common.Address
	files, err := ioutil.ReadDir(w.p)
	if err != nil {
		return nil, err
	}
	for _, fi := range files {
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		b, err := hex.DecodeString(fi.Name())
		if err != nil || len(b) != common.AddressLength {
			continue
		}
		addrs = append(addrs, common.BytesToAddress(b))
	}
	return addrs, nil
}

// Create generates a fresh account, stores it encrypted with passphrase and
// makes it the active account.
func (w *Wallet) Create(passphrase string) (Account, error) {
	if passphrase == "" {
		return Account{}, xerrors.Errorf("empty passphrase: %w", ErrWalletCreationFailed)
	}

	sk, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, xerrors.Errorf("%s: %w", err, ErrWalletCreationFailed)
	}

	key, err := newKey(sk)
	if err != nil {
		zeroKey(sk)
		return Account{}, xerrors.Errorf("%s: %w", err, ErrWalletCreationFailed)
	}

	err = storeKey(w.p, key, passphrase, w.scryptN, w.scryptP)
	if err != nil {
		zeroKey(sk)
		return Account{}, xerrors.Errorf("store key: %s: %w", err, ErrWalletCreationFailed)
	}

	w.activate(key)
	logger.Infof("created account %s", key.Address)

	return Account{Address: key.Address}, nil
}

// Unlock opens the default account: the configured default address, or
// the only keyfile present.
func (w *Wallet) Unlock(passphrase string) (Account, error) {
	addr, err := w.defaultAccount()
	if err != nil {
		return Account{}, err
	}
	return w.UnlockAddress(addr, passphrase)
}

func (w *Wallet) UnlockAddress(addr common.Address, passphrase string) (Account, error) {
	key, err := loadKey(w.p, addr, passphrase)
	if err != nil {
		if xerrors.Is(err, ErrDecrypt) {
			return Account{}, ErrInvalidPassphrase
		}
		return Account{}, err
	}

	w.activate(key)
	logger.Infof("unlocked account %s", key.Address)

	return Account{Address: key.Address}, nil
}

func (w *Wallet) defaultAccount() (common.Address, error) {
	if w.defaultAddr != "" {
		return address.Parse(w.defaultAddr)
	}

	addrs, err := w.List()
	if err != nil {
		return common.Address{}, err
	}
	switch len(addrs) {
	case 0:
		return common.Address{}, ErrAccountNotFound
	case 1:
		return addrs[0], nil
	default:
		return common.Address{}, xerrors.Errorf("%d accounts in keystore, set wallet.defaultAddress: %w", len(addrs), ErrAccountNotFound)
	}
}

// activate replaces the active key and wipes the previous one.
func (w *Wallet) activate(key *Key) {
	w.lk.Lock()
	defer w.lk.Unlock()

	if w.active != nil && w.active.PrivateKey != key.PrivateKey {
		zeroKey(w.active.PrivateKey)
	}
	w.active = key
}

// Lock wipes the active key.
func (w *Wallet) Lock() {
	w.lk.Lock()
	defer w.lk.Unlock()

	if w.active != nil {
		zeroKey(w.active.PrivateKey)
		w.active = nil
	}
}

func (w *Wallet) Active() (Account, bool) {
	w.lk.RLock()
	defer w.lk.RUnlock()

	if w.active == nil {
		return Account{}, false
	}
	return Account{Address: w.active.Address}, true
}

// Sign signs req with the active account using EIP-155 replay protection.
func (w *Wallet) Sign(req TxRequest) (*types.Transaction, error) {
	w.lk.RLock()
	defer w.lk.RUnlock()

	if w.active == nil {
		return nil, ErrNotInitialized
	}
	if req.ChainID == nil || req.ChainID.Sign() <= 0 {
		return nil, xerrors.Errorf("missing chain id: %w", ErrSigningUnavailable)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    req.Nonce,
		To:       req.To,
		Value:    value,
		Gas:      req.GasLimit,
		GasPrice: req.GasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(req.ChainID), w.active.PrivateKey)
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", err, ErrSigningUnavailable)
	}
	return signed, nil
}

// Exclusive runs fn while holding the account's signing slot, so nonce
// lookup, signing and submission of one transaction never interleave with
// another. It gives up when ctx is done before the slot frees up.
func (w *Wallet) Exclusive(ctx context.Context, fn func(Account) error) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	acct, ok := w.Active()
	if !ok {
		return ErrNotInitialized
	}
	return fn(acct)
}
