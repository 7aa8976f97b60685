package client

import (
	"context"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/mitchellh/go-homedir"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/memoio/go-voicemint/api"
)

const Namespace = "Voicemint"

// GetClientInfo reads the api file of a running server in repoDir and
// returns its rpc url.
func GetClientInfo(repoDir string) (string, http.Header, error) {
	repoPath, err := homedir.Expand(repoDir)
	if err != nil {
		return "", nil, err
	}

	rpcBytes, err := ioutil.ReadFile(filepath.Join(repoPath, "api"))
	if err != nil {
		return "", nil, err
	}

	apima, err := multiaddr.NewMultiaddr(strings.TrimSpace(string(rpcBytes)))
	if err != nil {
		return "", nil, err
	}

	_, addr, err := manet.DialArgs(apima)
	if err != nil {
		return "", nil, err
	}

	return "ws://" + addr + "/rpc/v0", http.Header{}, nil
}

func NewStatusNode(ctx context.Context, addr string, requestHeader http.Header) (api.StatusNode, jsonrpc.ClientCloser, error) {
	var res api.StatusNodeStruct
	closer, err := jsonrpc.NewMergeClient(ctx, addr, Namespace,
		[]interface{}{&res.Internal}, requestHeader)

	return &res, closer, err
}
