package publish

import (
	"context"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/lib/types"
)

// StatusService exposes the read side of a Workflow for json-rpc.
type StatusService struct {
	w *Workflow
}

func NewStatusService(w *Workflow) *StatusService {
	return &StatusService{w: w}
}

func (s *StatusService) Version(context.Context) (string, error) {
	return build.UserVersion(), nil
}

func (s *StatusService) PublicationList(context.Context) ([]*types.PublicationResult, error) {
	return s.w.List()
}

func (s *StatusService) PublicationStatus(_ context.Context, id string) (*types.PublicationResult, error) {
	return s.w.Status(id)
}
