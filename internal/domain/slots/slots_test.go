package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

func TestAllocFirstFit(t *testing.T) {
	a := New("test", kernel.SlotRange{Start: 100, End: 110})

	first, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Equal(t, kernel.CPtr(100), first)

	next, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, kernel.CPtr(103), next)

	require.NoError(t, a.Free(100, 3))
	again, err := a.Alloc(2)
	require.NoError(t, err)
	assert.Equal(t, kernel.CPtr(100), again, "freed run is reused")

	assert.Equal(t, 3, a.Used())
	assert.Equal(t, 7, a.Available())
}

func TestAllocExhaustion(t *testing.T) {
	a := New("test", kernel.SlotRange{Start: 0, End: 4})

	_, err := a.Alloc(5)
	assert.ErrorIs(t, err, ErrNoSlots)

	_, err = a.Alloc(2)
	require.NoError(t, err)
	_, err = a.Alloc(3)
	assert.ErrorIs(t, err, ErrNoSlots)

	_, err = a.Alloc(0)
	assert.Error(t, err)
}

func TestFreeValidation(t *testing.T) {
	a := New("test", kernel.SlotRange{Start: 10, End: 20})
	_, err := a.Alloc(2)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Free(5, 1), ErrSlotRange)
	assert.ErrorIs(t, a.Free(19, 2), ErrSlotRange)
	assert.ErrorIs(t, a.Free(12, 1), ErrSlotRange, "slot was never allocated")
	assert.NoError(t, a.Free(10, 2))
	assert.ErrorIs(t, a.Free(10, 1), ErrSlotRange, "double free")
}
