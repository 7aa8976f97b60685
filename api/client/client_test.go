package client

import (
	"context"
	"io/ioutil"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/memoio/go-voicemint/api"
	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/lib/backend/kv"
	"github.com/memoio/go-voicemint/service/publish"
)

var _ api.StatusNode = (*publish.StatusService)(nil)

func TestGetClientInfo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "api"), []byte("/ip4/127.0.0.1/tcp/8090\n"), 0644))

	addr, _, err := GetClientInfo(dir)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:8090/rpc/v0", addr)

	_, _, err = GetClientInfo(t.TempDir())
	require.Error(t, err)
}

func TestStatusNode(t *testing.T) {
	ds, err := kv.NewMemStore()
	require.NoError(t, err)
	defer ds.Close()

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register(Namespace, publish.NewStatusService(publish.New(nil, nil, ds)))

	srv := httptest.NewServer(rpcServer)
	defer srv.Close()

	ctx := context.Background()
	node, closer, err := NewStatusNode(ctx, "ws://"+strings.TrimPrefix(srv.URL, "http://"), nil)
	require.NoError(t, err)
	defer closer()

	v, err := node.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, build.UserVersion(), v)

	all, err := node.PublicationList(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	_, err = node.PublicationStatus(ctx, "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown publication")
}
