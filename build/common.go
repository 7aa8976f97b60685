package build

import "time"

const (
	// NativeDecimals scales the native coin: 1 major unit = 10^18 smallest units.
	NativeDecimals = 18

	DefaultGasLimit = uint64(500000) // per contract call

	DefaultRepoPath = "~/.voicemint"
	RepoPathEnv     = "VOICEMINT_PATH"

	// chain id used when the node does not report one
	DefaultChainID = 1337

	ReceiptPollInterval = 2 * time.Second
	ReceiptTimeout      = 2 * time.Minute
)
