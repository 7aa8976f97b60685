package metastore

import (
	"context"

	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/backend/kv"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/submodule/metrics"
)

const keyPrefix = "metadata/"

var _ Store = (*LocalStore)(nil)

// LocalStore keeps documents in the repo's kv store, keyed by cid.
type LocalStore struct {
	ds kv.Store
}

func NewLocalStore(ds kv.Store) *LocalStore {
	return &LocalStore{ds: ds}
}

func localKey(c string) []byte {
	return []byte(keyPrefix + c)
}

func (s *LocalStore) Upload(ctx context.Context, m types.AssetMetadata) (types.MetadataReference, error) {
	data, err := m.Serialize()
	if err != nil {
		return "", xerrors.Errorf("serialize: %s: %w", err, ErrUploadFailed)
	}

	c, err := ComputeCID(data)
	if err != nil {
		return "", xerrors.Errorf("cid: %s: %w", err, ErrUploadFailed)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := localKey(c.String())
	has, err := s.ds.Has(key)
	if err != nil {
		return "", xerrors.Errorf("%s: %w", err, ErrUploadFailed)
	}
	if !has {
		if err := s.ds.Put(key, data); err != nil {
			return "", xerrors.Errorf("%s: %w", err, ErrUploadFailed)
		}
		stats.Record(metrics.Tagged(ctx, metrics.Backend, config.MetadataBackendLocal), metrics.UploadBytes.M(int64(len(data))))
	}

	logger.Debugf("stored metadata %s (%d bytes)", c, len(data))
	return types.NewMetadataReference(c), nil
}

func (s *LocalStore) Get(ctx context.Context, ref types.MetadataReference) (types.AssetMetadata, error) {
	c, err := ref.CID()
	if err != nil {
		return types.AssetMetadata{}, err
	}

	data, err := s.ds.Get(localKey(c.String()))
	if err != nil {
		return types.AssetMetadata{}, err
	}
	if data == nil {
		return types.AssetMetadata{}, xerrors.Errorf("%s: %w", c, ErrNotFound)
	}
	if err := verify(c, data); err != nil {
		return types.AssetMetadata{}, err
	}

	return types.DecodeAssetMetadata(data)
}
