package publish

import (
	"errors"
	"fmt"

	"github.com/memoio/go-voicemint/lib/types"
)

var (
	ErrUnknownPublication = errors.New("publish: unknown publication")
	ErrInProgress         = errors.New("publish: publication already running")
	ErrTxPending          = errors.New("publish: transaction of an earlier attempt still pending")
)

// PublicationError reports the step a publication stopped at. Result holds
// everything produced before the failure and is what Resume continues from.
type PublicationError struct {
	Step   types.Step
	Cause  error
	Result *types.PublicationResult
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("publication failed at %s: %s", e.Step, e.Cause)
}

func (e *PublicationError) Unwrap() error {
	return e.Cause
}
