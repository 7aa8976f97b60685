package repo

import (
	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/backend/kv"
)

// Repo is a representation of all persistent data of a voicemint client.
type Repo interface {
	Config() *config.Config

	// ReplaceConfig replaces the current config, with the newly passed in one.
	ReplaceConfig(cfg *config.Config) error

	// MetaStore holds local metadata documents and publication records.
	MetaStore() kv.Store

	// KeystorePath is the directory of encrypted keyfiles.
	KeystorePath() string

	// SetAPIAddr records the address of the running status server.
	SetAPIAddr(addr string) error

	// APIAddr returns the address of the running status server.
	APIAddr() (string, error)

	// Path returns the repo path.
	Path() (string, error)

	// Close shuts down the repo.
	Close() error
}
