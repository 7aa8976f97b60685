package market

import (
	"errors"
	"fmt"

	"github.com/memoio/go-voicemint/lib/types"
)

// ErrMissingEvent is returned when a confirmed receipt lacks the event
// carrying the new identifier.
var ErrMissingEvent = errors.New("market: expected event not found in receipt")

// ContractCallError names the market call that failed.
type ContractCallError struct {
	Step types.Step
	Err  error
}

func (e *ContractCallError) Error() string {
	return fmt.Sprintf("market %s: %s", e.Step, e.Err)
}

func (e *ContractCallError) Unwrap() error {
	return e.Err
}

func callErr(step types.Step, err error) error {
	if err == nil {
		return nil
	}
	return &ContractCallError{Step: step, Err: err}
}
