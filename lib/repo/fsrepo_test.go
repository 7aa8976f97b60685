package repo

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-voicemint/config"
)

func TestFSRepo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")

	_, err := NewFSRepo(dir, nil)
	require.ErrorIs(t, err, ErrNoRepo)

	ok, err := Exists(dir)
	require.NoError(t, err)
	require.False(t, ok)

	cfg := config.NewDefaultConfig()
	cfg.Contracts.NFT = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	r, err := NewFSRepo(dir, cfg)
	require.NoError(t, err)

	ok, err = Exists(dir)
	require.NoError(t, err)
	require.True(t, ok)

	// locked while open
	_, err = NewFSRepo(dir, nil)
	require.ErrorIs(t, err, ErrRepoLocked)

	require.NoError(t, r.MetaStore().Put([]byte("k"), []byte("v")))
	require.DirExists(t, r.KeystorePath())

	require.NoError(t, r.SetAPIAddr("127.0.0.1:8080"))
	addr, err := r.APIAddr()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", addr)

	cfg2 := r.Config()
	cfg2.Log.Level = "debug"
	require.NoError(t, r.ReplaceConfig(cfg2))
	require.NoError(t, r.Close())

	r, err = NewFSRepo(dir, nil)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, "debug", r.Config().Log.Level)
	require.Equal(t, cfg.Contracts.NFT, r.Config().Contracts.NFT)

	v, err := r.MetaStore().Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	_, err = r.APIAddr()
	require.Error(t, err)
}

func TestFSRepoVersion(t *testing.T) {
	dir := t.TempDir()

	r, err := NewFSRepo(dir, config.NewDefaultConfig())
	require.NoError(t, err)
	require.NoError(t, r.Close())

	b, err := ioutil.ReadFile(filepath.Join(dir, versionFile))
	require.NoError(t, err)
	require.Equal(t, "1", string(b))

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, versionFile), []byte("7\n"), 0644))
	_, err = NewFSRepo(dir, nil)
	require.ErrorIs(t, err, ErrRepoVersion)

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, versionFile), []byte("1\n"), 0644))
	r, err = NewFSRepo(dir, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestMemRepo(t *testing.T) {
	r, err := NewInMemoryRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, "info", r.Config().Log.Level)
	_, err = r.APIAddr()
	require.Error(t, err)
	require.NoError(t, r.SetAPIAddr(":1"))
}
