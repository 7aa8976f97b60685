package repo

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/backend/kv"
)

// MemRepo is an in-memory implementation of the repo interface. Keyfiles
// still live on disk under keyDir.
type MemRepo struct {
	// lk guards the config
	lk sync.RWMutex
	C  *config.Config

	Meta   kv.Store
	keyDir string

	apiAddress string
}

var _ Repo = (*MemRepo)(nil)

// NewInMemoryRepo makes a new instance of MemRepo
func NewInMemoryRepo(keyDir string) (*MemRepo, error) {
	ds, err := kv.NewMemStore()
	if err != nil {
		return nil, err
	}
	return &MemRepo{
		C:      config.NewDefaultConfig(),
		Meta:   ds,
		keyDir: keyDir,
	}, nil
}

// Config returns the configuration object.
func (mr *MemRepo) Config() *config.Config {
	mr.lk.RLock()
	defer mr.lk.RUnlock()

	return mr.C
}

// ReplaceConfig replaces the current config with the newly passed in one.
func (mr *MemRepo) ReplaceConfig(cfg *config.Config) error {
	mr.lk.Lock()
	defer mr.lk.Unlock()

	mr.C = cfg
	return nil
}

func (mr *MemRepo) MetaStore() kv.Store {
	return mr.Meta
}

func (mr *MemRepo) KeystorePath() string {
	return mr.keyDir
}

func (mr *MemRepo) SetAPIAddr(addr string) error {
	mr.lk.Lock()
	defer mr.lk.Unlock()

	mr.apiAddress = addr
	return nil
}

func (mr *MemRepo) APIAddr() (string, error) {
	mr.lk.RLock()
	defer mr.lk.RUnlock()

	if mr.apiAddress == "" {
		return "", xerrors.New("no api address set")
	}
	return mr.apiAddress, nil
}

// Path returns the default path for an in memory repo.
func (mr *MemRepo) Path() (string, error) {
	return "<in-memory>", nil
}

func (mr *MemRepo) Close() error {
	return mr.Meta.Close()
}
