package metastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-cid"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/submodule/metrics"
)

const (
	blockPutPath = "/api/v0/block/put"
	blockGetPath = "/api/v0/block/get"

	// metadata documents are small
	maxDocumentSize = 1 << 20
)

var _ Store = (*IPFSStore)(nil)

// IPFSStore talks to the HTTP RPC API of a Kubo node. Blocks are stored raw
// so the node computes the same cid as ComputeCID.
type IPFSStore struct {
	endpoint string
	client   *http.Client

	cache *lru.ARCCache
}

func NewIPFSStore(endpoint string) (*IPFSStore, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, xerrors.Errorf("invalid ipfs endpoint %q", endpoint)
	}

	cache, err := lru.NewARC(256)
	if err != nil {
		return nil, err
	}

	return &IPFSStore{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: time.Minute},
		cache:    cache,
	}, nil
}

type blockStat struct {
	Key  string
	Size int
}

func (s *IPFSStore) Upload(ctx context.Context, m types.AssetMetadata) (types.MetadataReference, error) {
	data, err := m.Serialize()
	if err != nil {
		return "", xerrors.Errorf("serialize: %s: %w", err, ErrUploadFailed)
	}

	want, err := ComputeCID(data)
	if err != nil {
		return "", xerrors.Errorf("cid: %s: %w", err, ErrUploadFailed)
	}

	if _, ok := s.cache.Get(want.String()); ok {
		return types.NewMetadataReference(want), nil
	}

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", want.String())
	if err != nil {
		return "", xerrors.Errorf("%s: %w", err, ErrUploadFailed)
	}
	if _, err := fw.Write(data); err != nil {
		return "", xerrors.Errorf("%s: %w", err, ErrUploadFailed)
	}
	if err := mw.Close(); err != nil {
		return "", xerrors.Errorf("%s: %w", err, ErrUploadFailed)
	}

	q := url.Values{}
	q.Set("cid-codec", "raw")
	q.Set("mhtype", "sha2-256")
	q.Set("mhlen", "32")
	q.Set("pin", "true")

	res, err := s.post(ctx, blockPutPath, q, mw.FormDataContentType(), body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", xerrors.Errorf("%s: %w", err, ErrUploadFailed)
	}

	var st blockStat
	if err := json.Unmarshal(res, &st); err != nil {
		return "", xerrors.Errorf("unexpected block put output: %s: %w", err, ErrUploadFailed)
	}
	got, err := cid.Decode(st.Key)
	if err != nil {
		return "", xerrors.Errorf("unexpected block put key %q: %w", st.Key, ErrUploadFailed)
	}
	if !got.Equals(want) {
		return "", xerrors.Errorf("node returned %s for %s: %s: %w", got, want, ErrCIDMismatch, ErrUploadFailed)
	}

	stats.Record(metrics.Tagged(ctx, metrics.Backend, config.MetadataBackendIPFS), metrics.UploadBytes.M(int64(len(data))))
	s.cache.Add(want.String(), data)

	logger.Debugf("uploaded metadata %s (%d bytes) to %s", want, len(data), s.endpoint)
	return types.NewMetadataReference(want), nil
}

func (s *IPFSStore) Get(ctx context.Context, ref types.MetadataReference) (types.AssetMetadata, error) {
	c, err := ref.CID()
	if err != nil {
		return types.AssetMetadata{}, err
	}

	if v, ok := s.cache.Get(c.String()); ok {
		return types.DecodeAssetMetadata(v.([]byte))
	}

	q := url.Values{}
	q.Set("arg", c.String())
	data, err := s.post(ctx, blockGetPath, q, "", nil)
	if err != nil {
		return types.AssetMetadata{}, err
	}
	if err := verify(c, data); err != nil {
		return types.AssetMetadata{}, err
	}

	s.cache.Add(c.String(), data)
	return types.DecodeAssetMetadata(data)
}

// post calls one RPC method; Kubo accepts POST only.
func (s *IPFSStore) post(ctx context.Context, path string, q url.Values, contentType string, body io.Reader) ([]byte, error) {
	u := s.endpoint + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return out, nil
	case resp.StatusCode == http.StatusNotFound, bytes.Contains(bytes.ToLower(out), []byte("not found")):
		return nil, xerrors.Errorf("%s: %w", q.Get("arg"), ErrNotFound)
	default:
		return nil, fmt.Errorf("ipfs %s: %s: %s", path, resp.Status, strings.TrimSpace(string(out)))
	}
}
