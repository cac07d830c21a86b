package account

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrNotAuthorizedCaller is returned when the immediate caller fails the
	// identity check of the entry point it invoked.
	ErrNotAuthorizedCaller = errors.New("not authorized caller")

	// ErrDownstreamCallFailed is returned by Execute when the dispatched call fails.
	ErrDownstreamCallFailed = errors.New("downstream call failed")

	ErrInvalidOwner        = errors.New("invalid owner")
	ErrInvalidOrchestrator = errors.New("invalid orchestrator")
)

// CallerError names the entry point and the caller that was refused.
type CallerError struct {
	Entry  string
	Caller common.Address
}

func (e *CallerError) Error() string {
	return fmt.Sprintf("%s: caller %s: %v", e.Entry, e.Caller.Hex(), ErrNotAuthorizedCaller)
}

func (e *CallerError) Unwrap() error {
	return ErrNotAuthorizedCaller
}

// DownstreamCallError carries the raw failure payload of a dispatched call.
type DownstreamCallError struct {
	Target common.Address
	Data   []byte
	Err    error
}

func (e *DownstreamCallError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("%v: target %s: %s", ErrDownstreamCallFailed, e.Target.Hex(), hexutil.Encode(e.Data))
	}
	return fmt.Sprintf("%v: target %s: %v", ErrDownstreamCallFailed, e.Target.Hex(), e.Err)
}

func (e *DownstreamCallError) Is(target error) bool {
	return target == ErrDownstreamCallFailed
}

func (e *DownstreamCallError) Unwrap() error {
	return e.Err
}

// IsNotAuthorized reports whether err is an authorization failure.
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrNotAuthorizedCaller)
}

// IsDownstreamFailure reports whether err is a failed dispatch.
func IsDownstreamFailure(err error) bool {
	return errors.Is(err, ErrDownstreamCallFailed)
}
