package api

import (
	"context"

	"github.com/memoio/go-voicemint/lib/types"
)

type StatusNodeStruct struct {
	Internal struct {
		Version func(context.Context) (string, error)

		PublicationList   func(context.Context) ([]*types.PublicationResult, error)
		PublicationStatus func(context.Context, string) (*types.PublicationResult, error)
	}
}

var _ StatusNode = (*StatusNodeStruct)(nil)

func (s *StatusNodeStruct) Version(ctx context.Context) (string, error) {
	return s.Internal.Version(ctx)
}

func (s *StatusNodeStruct) PublicationList(ctx context.Context) ([]*types.PublicationResult, error) {
	return s.Internal.PublicationList(ctx)
}

func (s *StatusNodeStruct) PublicationStatus(ctx context.Context, id string) (*types.PublicationResult, error) {
	return s.Internal.PublicationStatus(ctx, id)
}
