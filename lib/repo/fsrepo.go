package repo

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	lockfile "github.com/ipfs/go-fs-lock"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/backend/kv"
	logging "github.com/memoio/go-voicemint/lib/log"
)

// Version of the on-disk layout.
const Version = 1

const (
	apiFile        = "api"
	configFilename = "config.json"
	versionFile    = "version"
	lockFile       = "repo.lock"

	keyStoreDir = "keystore" // $VOICEMINT_PATH/keystore
	metaDir     = "meta"     // $VOICEMINT_PATH/meta
)

var (
	ErrNoRepo      = xerrors.New("no voicemint repo")
	ErrRepoLocked  = xerrors.New("repo is in use by another voicemint process")
	ErrRepoVersion = xerrors.New("unsupported repo version")
)

var logger = logging.Logger("repo")

// FSRepo keeps the config, the keystore and the meta store of one
// voicemint home directory. Only one process may hold it at a time.
type FSRepo struct {
	path string

	lk  sync.RWMutex
	cfg *config.Config

	metaDs *kv.BadgerStore

	lock io.Closer
}

var _ Repo = (*FSRepo)(nil)

// NewFSRepo opens the repo at dir. A missing repo is created from cfg when
// cfg is non-nil, otherwise ErrNoRepo is returned.
func NewFSRepo(dir string, cfg *config.Config) (*FSRepo, error) {
	p, err := resolve(dir)
	if err != nil {
		return nil, err
	}

	ok, err := Exists(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		if cfg == nil {
			return nil, xerrors.Errorf("%s (run 'voicemint init --repo=%s'): %w", p, dir, ErrNoRepo)
		}
		logger.Info("initializing voicemint repo at: ", p)
		if err := initRepo(p, cfg); err != nil {
			return nil, err
		}
	}

	r := &FSRepo{path: p}
	r.lock, err = lockfile.Lock(p, lockFile)
	if err != nil {
		return nil, xerrors.Errorf("%s: %s: %w", p, err, ErrRepoLocked)
	}

	if err := r.open(); err != nil {
		r.lock.Close()
		return nil, err
	}

	logger.Debug("open repo at: ", p)
	return r, nil
}

// resolve expands ~, follows symlinks and makes sure a writable directory
// exists at dir.
func resolve(dir string) (string, error) {
	p, err := homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	if p == "" {
		p = "."
	}

	if err := os.MkdirAll(p, 0775); err != nil {
		return "", xerrors.Errorf("create repo dir %s: %w", p, err)
	}
	p, err = filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}

	st, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", xerrors.Errorf("%s is not a directory", p)
	}
	if st.Mode()&0600 != 0600 {
		return "", xerrors.Errorf("insufficient permissions for %s, got %04o need %04o", p, st.Mode().Perm(), 0600)
	}
	return filepath.Abs(p)
}

func initRepo(p string, cfg *config.Config) error {
	if err := cfg.WriteFile(filepath.Join(p, configFilename)); err != nil {
		return xerrors.Errorf("write config: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(p, versionFile), []byte(strconv.Itoa(Version))); err != nil {
		return xerrors.Errorf("write version: %w", err)
	}
	return os.MkdirAll(filepath.Join(p, keyStoreDir), 0700)
}

func (r *FSRepo) open() error {
	if err := r.checkVersion(); err != nil {
		return err
	}

	cfg, err := config.ReadFile(filepath.Join(r.path, configFilename))
	if err != nil {
		return xerrors.Errorf("read config: %w", err)
	}
	r.cfg = cfg

	if err := os.MkdirAll(r.KeystorePath(), 0700); err != nil {
		return xerrors.Errorf("open keystore: %w", err)
	}

	mpath := cfg.Data.MetaPath
	if mpath == "" {
		mpath = filepath.Join(r.path, metaDir)
	}
	r.metaDs, err = kv.NewBadgerStore(mpath, nil)
	if err != nil {
		return xerrors.Errorf("open meta store %s: %w", mpath, err)
	}
	return nil
}

// checkVersion accepts repos without a version file and stamps them.
func (r *FSRepo) checkVersion() error {
	vf := filepath.Join(r.path, versionFile)
	b, err := ioutil.ReadFile(vf)
	if os.IsNotExist(err) {
		return writeFileAtomic(vf, []byte(strconv.Itoa(Version)))
	}
	if err != nil {
		return err
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return xerrors.Errorf("version file %q: %w", b, ErrRepoVersion)
	}
	if v > Version {
		return xerrors.Errorf("repo version %d, this build supports %d: %w", v, Version, ErrRepoVersion)
	}
	return nil
}

func (r *FSRepo) Config() *config.Config {
	r.lk.RLock()
	defer r.lk.RUnlock()

	return r.cfg
}

// ReplaceConfig persists cfg and makes it current.
func (r *FSRepo) ReplaceConfig(cfg *config.Config) error {
	r.lk.Lock()
	defer r.lk.Unlock()

	tmp := filepath.Join(r.path, "."+configFilename+".temp")
	if err := cfg.WriteFile(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(r.path, configFilename)); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

func (r *FSRepo) KeystorePath() string {
	return filepath.Join(r.path, keyStoreDir)
}

func (r *FSRepo) MetaStore() kv.Store {
	return r.metaDs
}

// Path returns the resolved repo directory.
func (r *FSRepo) Path() (string, error) {
	return r.path, nil
}

// SetAPIAddr publishes the listen multiaddr of a running status server.
func (r *FSRepo) SetAPIAddr(maddr string) error {
	if err := writeFileAtomic(filepath.Join(r.path, apiFile), []byte(maddr)); err != nil {
		return xerrors.Errorf("write api file: %w", err)
	}
	return nil
}

// APIAddr returns the address written by SetAPIAddr.
func (r *FSRepo) APIAddr() (string, error) {
	b, err := ioutil.ReadFile(filepath.Join(r.path, apiFile))
	if err != nil {
		return "", xerrors.Errorf("read api file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Close releases the meta store, the api file and the lock.
func (r *FSRepo) Close() error {
	if err := r.metaDs.Close(); err != nil {
		return xerrors.Errorf("close meta store: %w", err)
	}

	err := os.Remove(filepath.Join(r.path, apiFile))
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("remove api file: %w", err)
	}

	return r.lock.Close()
}

// Exists reports whether repoPath holds an initialized repo.
func Exists(repoPath string) (bool, error) {
	p, err := homedir.Expand(repoPath)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(p, configFilename))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func writeFileAtomic(name string, data []byte) error {
	tmp := name + ".temp"
	if err := ioutil.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, name)
}
