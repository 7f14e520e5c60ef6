// Package bootinfo describes the untyped regions handed to the memory
// manager at boot and builds the simulated kernel from them.
//
// Manifests are YAML or TOML, chosen by file extension:
//
//	root_radix: 12
//	regions:
//	  - size_bits: 24
//	    paddr: 0x1000000
//	  - size_bits: 20
//	    paddr: 0xfe000000
//	    device: true
package bootinfo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel/sim"
)

// ErrInvalidManifest indicates a manifest that cannot describe a boot
// environment.
var ErrInvalidManifest = errors.New("bootinfo: invalid manifest")

// Region is one untyped region of physical memory.
type Region struct {
	SizeBits  uint8  `yaml:"size_bits" toml:"size_bits"`
	Paddr     uint64 `yaml:"paddr" toml:"paddr"`
	Device    bool   `yaml:"device" toml:"device"`
	Tainted   bool   `yaml:"tainted" toml:"tainted"`
	UsedBytes uint64 `yaml:"used_bytes" toml:"used_bytes"`
}

// Bytes returns the region size.
func (r Region) Bytes() uint64 {
	return uint64(1) << r.SizeBits
}

// Manifest is the boot environment handed to the memory manager.
type Manifest struct {
	RootRadix        uint8    `yaml:"root_radix" toml:"root_radix"`
	FirstUntypedSlot uint64   `yaml:"first_untyped_slot" toml:"first_untyped_slot"`
	Regions          []Region `yaml:"regions" toml:"regions"`
}

// Default returns a small machine with one region of each kind.
func Default() *Manifest {
	return &Manifest{
		RootRadix:        12,
		FirstUntypedSlot: 16,
		Regions: []Region{
			{SizeBits: 24, Paddr: 0x1000000},
			{SizeBits: 22, Paddr: 0x400000, UsedBytes: 0x1000},
			{SizeBits: 16, Paddr: 0x10000, Tainted: true},
			{SizeBits: 20, Paddr: 0xfe000000, Device: true},
		},
	}
}

// Load reads a manifest from path. The format follows the extension:
// .yaml/.yml or .toml.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("%w: unknown extension %q", ErrInvalidManifest, ext)
	}
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Manifest, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ParseYAML decodes and validates a YAML manifest.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalWithOptions(data, &m, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseTOML decodes and validates a TOML manifest.
func ParseTOML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks region sizes, alignment and overlap.
func (m *Manifest) Validate() error {
	if m.RootRadix == 0 {
		m.RootRadix = sim.DefaultOptions().RootRadix
	}
	if m.FirstUntypedSlot == 0 {
		m.FirstUntypedSlot = uint64(sim.DefaultOptions().FirstUntypedSlot)
	}
	if m.RootRadix > 24 {
		return fmt.Errorf("%w: root radix %d too large", ErrInvalidManifest, m.RootRadix)
	}
	if len(m.Regions) == 0 {
		return fmt.Errorf("%w: no regions", ErrInvalidManifest)
	}

	var usable int
	for i, r := range m.Regions {
		if r.SizeBits < kernel.MinUntypedBits || r.SizeBits > kernel.MaxUntypedBits {
			return fmt.Errorf("%w: region %d: size bits %d outside [%d, %d]",
				ErrInvalidManifest, i, r.SizeBits, kernel.MinUntypedBits, kernel.MaxUntypedBits)
		}
		if r.Paddr%r.Bytes() != 0 {
			return fmt.Errorf("%w: region %d: paddr %#x not aligned to its size", ErrInvalidManifest, i, r.Paddr)
		}
		if r.UsedBytes > r.Bytes() {
			return fmt.Errorf("%w: region %d: used bytes %d exceed size", ErrInvalidManifest, i, r.UsedBytes)
		}
		for j, o := range m.Regions[:i] {
			if r.Paddr < o.Paddr+o.Bytes() && o.Paddr < r.Paddr+r.Bytes() {
				return fmt.Errorf("%w: region %d overlaps region %d", ErrInvalidManifest, i, j)
			}
		}
		if !r.Device {
			usable++
		}
	}
	if usable == 0 {
		return fmt.Errorf("%w: only device regions", ErrInvalidManifest)
	}
	return nil
}

// Boot builds a simulated kernel holding one untyped capability per region.
func Boot(m *Manifest) (*sim.Kernel, *kernel.BootInfo, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	regions := make([]sim.Region, len(m.Regions))
	for i, r := range m.Regions {
		regions[i] = sim.Region{
			SizeBits:  r.SizeBits,
			Paddr:     r.Paddr,
			Device:    r.Device,
			Tainted:   r.Tainted,
			UsedBytes: r.UsedBytes,
		}
	}
	opts := sim.Options{RootRadix: m.RootRadix, FirstUntypedSlot: kernel.CPtr(m.FirstUntypedSlot)}
	return sim.New(opts, regions)
}
