package wallet

import "errors"

var (
	ErrNotInitialized       = errors.New("wallet: no active account")
	ErrInvalidPassphrase    = errors.New("wallet: invalid passphrase")
	ErrWalletCreationFailed = errors.New("wallet: account creation failed")
	ErrSigningUnavailable   = errors.New("wallet: signing unavailable")
	ErrAccountNotFound      = errors.New("wallet: account not found")

	// ErrDecrypt before decrypt privatekey, we compare mac, if not equal, use ErrDecrypt
	ErrDecrypt = errors.New("could not decrypt key with given passphrase")
)
