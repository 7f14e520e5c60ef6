package bootinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

const yamlManifest = `
root_radix: 10
regions:
  - size_bits: 20
    paddr: 0x100000
  - size_bits: 12
    paddr: 0x2000
    used_bytes: 1024
  - size_bits: 16
    paddr: 0xfe000000
    device: true
`

const tomlManifest = `
root_radix = 10

[[regions]]
size_bits = 20
paddr = 0x100000

[[regions]]
size_bits = 12
paddr = 0x2000
used_bytes = 1024

[[regions]]
size_bits = 16
paddr = 0xfe000000
device = true
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "boot.yaml", yamlManifest},
		{"yml", "boot.yml", yamlManifest},
		{"toml", "boot.toml", tomlManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, uint8(10), m.RootRadix)
			assert.Equal(t, uint64(16), m.FirstUntypedSlot)
			require.Len(t, m.Regions, 3)
			assert.Equal(t, Region{SizeBits: 12, Paddr: 0x2000, UsedBytes: 1024}, m.Regions[1])
			assert.True(t, m.Regions[2].Device)
		})
	}
}

func TestLoadRejectsUnknownInput(t *testing.T) {
	_, err := Load(writeFile(t, "boot.json", "{}"))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = Load(writeFile(t, "boot.yaml", "regions:\n  - size_bits: 12\n    colour: red\n"))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = Load(writeFile(t, "boot.toml", "[[regions]]\nsize_bits = 12\ncolour = \"red\"\n"))
	assert.ErrorIs(t, err, ErrInvalidManifest)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		regions []Region
		wantErr bool
	}{
		{"default machine", Default().Regions, false},
		{"too small", []Region{{SizeBits: 3}}, true},
		{"too large", []Region{{SizeBits: 48}}, true},
		{"unaligned", []Region{{SizeBits: 12, Paddr: 0x800}}, true},
		{"used exceeds size", []Region{{SizeBits: 12, UsedBytes: 4097}}, true},
		{"overlap", []Region{{SizeBits: 16, Paddr: 0}, {SizeBits: 12, Paddr: 0x1000}}, true},
		{"duplicate", []Region{{SizeBits: 12, Paddr: 0x1000}, {SizeBits: 12, Paddr: 0x1000}}, true},
		{"adjacent", []Region{{SizeBits: 12, Paddr: 0}, {SizeBits: 12, Paddr: 0x1000}}, false},
		{"device only", []Region{{SizeBits: 12, Device: true}}, true},
		{"empty", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Regions: tt.regions}
			err := m.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidManifest)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	m, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), m)
}

func TestBoot(t *testing.T) {
	k, info, err := Boot(Default())
	require.NoError(t, err)

	assert.Equal(t, uint8(12), info.RootDepth)
	require.Len(t, info.Untypeds, 4)
	assert.Equal(t, kernel.CPtr(16), info.Untypeds[0].Slot)
	assert.True(t, info.Untypeds[2].Tainted)
	assert.True(t, info.Untypeds[3].Device)
	assert.Equal(t, kernel.CPtr(20), info.Empty.Start)

	desc, err := k.UntypedDescribe(info.Untypeds[1].Slot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<22-0x1000), desc.FreeBytes)
}
