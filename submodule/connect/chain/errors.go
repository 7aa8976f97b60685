package chain

import "errors"

var (
	ErrInvalidAddress      = errors.New("chain: invalid address")
	ErrContractNotFound    = errors.New("chain: no contract code at address")
	ErrNetwork             = errors.New("chain: network failure")
	ErrTransactionRejected = errors.New("chain: transaction rejected")
	ErrTxUnknown           = errors.New("chain: transaction unknown to node")
)
