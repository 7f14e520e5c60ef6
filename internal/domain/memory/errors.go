package memory

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
)

var (
	// ErrAllocFailed indicates no slab had room for a descriptor after every
	// slab was tried once. Callers treat it as a capacity condition.
	ErrAllocFailed = errors.New("memory: allocation failed")

	// ErrUnknownMemory indicates a retype failure other than lack of memory.
	ErrUnknownMemory = errors.New("memory: unknown memory error")

	// Descriptor errors are shared with the objects package.
	ErrObjTypeInvalid  = objects.ErrObjTypeInvalid
	ErrObjCountInvalid = objects.ErrObjCountInvalid
	ErrObjDescInvalid  = objects.ErrObjDescInvalid
)
