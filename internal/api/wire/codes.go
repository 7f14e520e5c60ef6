package wire

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/memory"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/slots"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/upload"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/window"
)

// Kind groups error codes by how transports report them.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindExhausted
	KindTooLarge
)

type errorCode struct {
	target error
	code   string
	kind   Kind
}

// Ordered: an upload that ran out of memory wraps both ErrAllocFailed and
// window.ErrIO and must report alloc_failed.
var errorCodes = []errorCode{
	{memory.ErrAllocFailed, "alloc_failed", KindExhausted},
	{slots.ErrNoSlots, "no_slots", KindExhausted},
	{memory.ErrUnknownMemory, "unknown_memory_error", KindInternal},
	{objects.ErrObjTypeInvalid, "obj_type_invalid", KindInvalid},
	{objects.ErrObjCountInvalid, "obj_count_invalid", KindInvalid},
	{objects.ErrObjDescInvalid, "obj_desc_invalid", KindInvalid},
	{upload.ErrTooLarge, "too_large", KindTooLarge},
	{upload.ErrUnsupportedEncoding, "unsupported_encoding", KindInvalid},
	{upload.ErrCorrupt, "corrupt_stream", KindInvalid},
	{upload.ErrNotFound, "not_found", KindNotFound},
	{upload.ErrLeaked, "frames_leaked", KindInternal},
	{ErrBadRequest, "bad_request", KindInvalid},
	{window.ErrIO, "io_error", KindInternal},
}

// Code returns the stable code string for err.
func Code(err error) string {
	code, _ := classify(err)
	return code
}

// KindOf returns the transport class of err.
func KindOf(err error) Kind {
	_, kind := classify(err)
	return kind
}

func classify(err error) (string, Kind) {
	for _, c := range errorCodes {
		if errors.Is(err, c.target) {
			return c.code, c.kind
		}
	}
	return "internal", KindInternal
}

// CodeError rebuilds a client-side error matching the sentinel of code,
// so callers can use errors.Is across the wire.
func CodeError(code, message string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return &remoteError{target: c.target, message: message}
		}
	}
	return &remoteError{message: message}
}

type remoteError struct {
	target  error
	message string
}

func (e *remoteError) Error() string { return e.message }

func (e *remoteError) Unwrap() error { return e.target }
