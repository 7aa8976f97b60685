package metastore

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/backend/kv"
	logging "github.com/memoio/go-voicemint/lib/log"
	"github.com/memoio/go-voicemint/lib/types"
)

var logger = logging.Logger("metastore")

var (
	ErrUploadFailed = errors.New("metastore: upload failed")
	ErrNotFound     = errors.New("metastore: not found")
	ErrCIDMismatch  = errors.New("metastore: content does not match cid")
)

// Store publishes metadata documents under their content address.
// Uploading the same metadata twice yields the same reference.
type Store interface {
	Upload(ctx context.Context, m types.AssetMetadata) (types.MetadataReference, error)
	Get(ctx context.Context, ref types.MetadataReference) (types.AssetMetadata, error)
}

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data.
func ComputeCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// verify checks that data hashes to want.
func verify(want cid.Cid, data []byte) error {
	got, err := ComputeCID(data)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return xerrors.Errorf("want %s, got %s: %w", want, got, ErrCIDMismatch)
	}
	return nil
}

// New picks the backend named by cfg. ds backs the local store.
func New(cfg config.MetadataConfig, ds kv.Store) (Store, error) {
	switch cfg.Backend {
	case config.MetadataBackendLocal, "":
		return NewLocalStore(ds), nil
	case config.MetadataBackendIPFS:
		return NewIPFSStore(cfg.Endpoint)
	default:
		return nil, xerrors.Errorf("unknown metadata backend %q", cfg.Backend)
	}
}
