package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(t *testing.T, opts ...Option) *Wallet {
	w, err := New(t.TempDir(), append([]Option{WithLightScrypt()}, opts...)...)
	require.NoError(t, err)
	return w
}

func TestWallet(t *testing.T) {
	w := newTestWallet(t)

	acct, err := w.Create("12345")
	require.NoError(t, err)

	addrs, err := w.List()
	require.NoError(t, err)
	require.Equal(t, []common.Address{acct.Address}, addrs)

	w.Lock()
	_, ok := w.Active()
	require.False(t, ok)

	_, err = w.Unlock("wrong")
	require.ErrorIs(t, err, ErrInvalidPassphrase)

	got, err := w.Unlock("12345")
	require.NoError(t, err)
	require.Equal(t, acct, got)

	active, ok := w.Active()
	require.True(t, ok)
	require.Equal(t, acct, active)
}

func TestCreateReplacesActive(t *testing.T) {
	w := newTestWallet(t)

	first, err := w.Create("one")
	require.NoError(t, err)
	old := w.active.PrivateKey

	second, err := w.Create("two")
	require.NoError(t, err)
	require.NotEqual(t, first.Address, second.Address)

	// previous key material is wiped
	require.Equal(t, 0, old.D.Sign())

	active, _ := w.Active()
	require.Equal(t, second.Address, active.Address)

	// two keyfiles and no default: ambiguous
	_, err = w.Unlock("one")
	require.ErrorIs(t, err, ErrAccountNotFound)

	got, err := w.UnlockAddress(first.Address, "one")
	require.NoError(t, err)
	require.Equal(t, first, got)
}

func TestCreateFailure(t *testing.T) {
	w := newTestWallet(t)
	_, err := w.Create("")
	require.ErrorIs(t, err, ErrWalletCreationFailed)
}

func TestUnlockDefaultAddress(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, WithLightScrypt())
	require.NoError(t, err)

	_, err = w.Unlock("x")
	require.ErrorIs(t, err, ErrAccountNotFound)

	a, err := w.Create("pw")
	require.NoError(t, err)
	_, err = w.Create("pw")
	require.NoError(t, err)

	w2, err := New(dir, WithLightScrypt(), WithDefaultAddress(a.Address.Hex()))
	require.NoError(t, err)
	got, err := w2.Unlock("pw")
	require.NoError(t, err)
	require.Equal(t, a, got)

	_, err = New(dir, WithDefaultAddress("0x1234"))
	require.Error(t, err)
}

func TestSign(t *testing.T) {
	w := newTestWallet(t)
	to := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	req := TxRequest{
		ChainID:  big.NewInt(1337),
		Nonce:    7,
		To:       &to,
		GasLimit: 21000,
		GasPrice: big.NewInt(1),
		Data:     []byte{0xde, 0xad},
	}

	_, err := w.Sign(req)
	require.ErrorIs(t, err, ErrNotInitialized)

	acct, err := w.Create("pw")
	require.NoError(t, err)

	tx, err := w.Sign(req)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, &to, tx.To())

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(1337)), tx)
	require.NoError(t, err)
	assert.Equal(t, acct.Address, from)

	req.ChainID = nil
	_, err = w.Sign(req)
	require.ErrorIs(t, err, ErrSigningUnavailable)

	w.Lock()
	req.ChainID = big.NewInt(1337)
	_, err = w.Sign(req)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestExclusive(t *testing.T) {
	w := newTestWallet(t)

	err := w.Exclusive(context.Background(), func(Account) error { return nil })
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = w.Create("pw")
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Exclusive(context.Background(), func(Account) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)

	// a held slot makes a cancelled caller give up
	hold := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = w.Exclusive(context.Background(), func(Account) error {
			close(hold)
			<-done
			return nil
		})
	}()
	<-hold

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = w.Exclusive(ctx, func(Account) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(done)
}
