package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrCallDepth           = errors.New("max call depth exceeded")
	ErrNoContract          = errors.New("no contract deployed at address")
	ErrAlreadyDeployed     = errors.New("contract already deployed at address")
	ErrNegativeValue       = errors.New("negative value")
)

// errorSelector is the 4-byte selector of Error(string).
var errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

var stringArgs = func() abi.Arguments {
	t, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}()

// RevertError is returned by a contract that aborts its frame. Data is the
// raw revert payload handed back to the caller unmodified.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string {
	if reason, err := abi.UnpackRevert(e.Data); err == nil {
		return "execution reverted: " + reason
	}
	if len(e.Data) == 0 {
		return "execution reverted"
	}
	return fmt.Sprintf("execution reverted: %s", hexutil.Encode(e.Data))
}

// Revert builds a RevertError carrying an Error(string) payload.
func Revert(reason string) error {
	packed, err := stringArgs.Pack(reason)
	if err != nil {
		return &RevertError{}
	}
	data := make([]byte, 0, len(errorSelector)+len(packed))
	data = append(data, errorSelector...)
	data = append(data, packed...)
	return &RevertError{Data: data}
}

// RevertWithData builds a RevertError carrying a custom payload.
func RevertWithData(data []byte) error {
	return &RevertError{Data: append([]byte(nil), data...)}
}

// RevertData extracts the revert payload from err, or nil when err carries none.
func RevertData(err error) []byte {
	var rerr *RevertError
	if errors.As(err, &rerr) {
		return rerr.Data
	}
	return nil
}

// RevertReason decodes an Error(string) payload. ok is false for any other payload.
func RevertReason(data []byte) (reason string, ok bool) {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}
