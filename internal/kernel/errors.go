package kernel

import "fmt"

// Error is a kernel invocation result code.
type Error int

const (
	ErrInvalidArgument Error = iota + 1
	ErrInvalidCapability
	ErrIllegalOperation
	ErrRangeError
	ErrAlignmentError
	ErrFailedLookup
	ErrTruncatedMessage
	ErrDeleteFirst
	ErrRevokeFirst
	ErrNotEnoughMemory
)

var errorNames = map[Error]string{
	ErrInvalidArgument:   "invalid argument",
	ErrInvalidCapability: "invalid capability",
	ErrIllegalOperation:  "illegal operation",
	ErrRangeError:        "range error",
	ErrAlignmentError:    "alignment error",
	ErrFailedLookup:      "failed lookup",
	ErrTruncatedMessage:  "truncated message",
	ErrDeleteFirst:       "delete first",
	ErrRevokeFirst:       "revoke first",
	ErrNotEnoughMemory:   "not enough memory",
}

func (e Error) Error() string {
	if name, ok := errorNames[e]; ok {
		return "kernel: " + name
	}
	return fmt.Sprintf("kernel: error %d", int(e))
}
