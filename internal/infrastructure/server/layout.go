package server

import (
	"errors"
	"fmt"

	apihttp "github.com/GriffinCanCode/AgentOS/memmgr/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// ErrLayout indicates a slot layout that does not fit the boot table.
var ErrLayout = errors.New("server: invalid slot layout")

// planLayout splits the boot empty range into client slots, upload slots
// and the bounce slot, in that order.
func planLayout(info *kernel.BootInfo, cfg config.Config) (apihttp.Layout, error) {
	empty := info.Empty
	if empty.Len() < 2 {
		return apihttp.Layout{}, fmt.Errorf("%w: empty range %d..%d", ErrLayout, empty.Start, empty.End)
	}

	bounce := kernel.CPtr(cfg.Window.Bounce)
	if bounce == 0 {
		bounce = empty.End - 1
	}
	if bounce < empty.Start || bounce >= empty.End {
		return apihttp.Layout{}, fmt.Errorf("%w: bounce slot %d outside %d..%d", ErrLayout, bounce, empty.Start, empty.End)
	}

	below := uint64(bounce - empty.Start)
	if cfg.Upload.Slots == 0 || cfg.Upload.Slots > below {
		return apihttp.Layout{}, fmt.Errorf("%w: %d upload slots, %d available below the bounce slot",
			ErrLayout, cfg.Upload.Slots, below)
	}
	uploadStart := bounce - kernel.CPtr(cfg.Upload.Slots)

	return apihttp.Layout{
		RootDepth:   info.RootDepth,
		ClientSlots: kernel.SlotRange{Start: empty.Start, End: uploadStart},
		UploadSlots: kernel.SlotRange{Start: uploadStart, End: bounce},
		Bounce:      bounce,
	}, nil
}
