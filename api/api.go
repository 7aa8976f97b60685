package api

import (
	"context"

	"github.com/memoio/go-voicemint/lib/types"
)

// StatusNode is served by 'voicemint serve' over json-rpc. Commands use it
// while the server holds the repo lock.
type StatusNode interface {
	Version(context.Context) (string, error)

	PublicationList(context.Context) ([]*types.PublicationResult, error)
	PublicationStatus(context.Context, string) (*types.PublicationResult, error)
}
