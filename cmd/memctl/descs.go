package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/AgentOS/memmgr/internal/domain/objects"
	"github.com/GriffinCanCode/AgentOS/memmgr/internal/kernel"
)

// parseDesc parses type:count:slot[:size_class], e.g. frame:4:100:12.
// Numbers accept 0x prefixes.
func parseDesc(s string) (objects.Desc, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return objects.Desc{}, fmt.Errorf("descriptor %q: want type:count:slot[:size_class]", s)
	}

	typ, err := kernel.ParseObjectType(parts[0])
	if err != nil {
		return objects.Desc{}, fmt.Errorf("descriptor %q: %w", s, err)
	}
	count, err := strconv.ParseUint(parts[1], 0, 32)
	if err != nil {
		return objects.Desc{}, fmt.Errorf("descriptor %q: count: %w", s, err)
	}
	slot, err := strconv.ParseUint(parts[2], 0, 64)
	if err != nil {
		return objects.Desc{}, fmt.Errorf("descriptor %q: slot: %w", s, err)
	}
	var size uint64
	if len(parts) == 4 {
		if size, err = strconv.ParseUint(parts[3], 0, 8); err != nil {
			return objects.Desc{}, fmt.Errorf("descriptor %q: size class: %w", s, err)
		}
	}

	return objects.NewDesc(typ, uint32(count), kernel.CPtr(slot), uint8(size))
}

// parseBundle builds a bundle in table from descriptor arguments
func parseBundle(table kernel.CPtr, depth uint8, args []string) (*objects.Bundle, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no descriptors given")
	}
	b := objects.NewBundle(table, depth)
	for _, arg := range args {
		d, err := parseDesc(arg)
		if err != nil {
			return nil, err
		}
		b.Append(d)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
