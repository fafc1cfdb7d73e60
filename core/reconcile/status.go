package reconcile

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// StatusDecoder interprets a status attribute as an integer bitmask.
// A user is disabled when any configured disable bit is set.
type StatusDecoder struct {
	attr Attribute
	mask int64
}

// NewStatusDecoder builds a decoder for the given attribute and disable bits.
func NewStatusDecoder(attr Attribute, disableBitmasks []int64) StatusDecoder {
	var mask int64
	for _, bits := range disableBitmasks {
		mask |= bits
	}
	return StatusDecoder{attr: attr, mask: mask}
}

// Enabled decodes the raw status values. A missing attribute means enabled.
func (d StatusDecoder) Enabled(values [][]byte) (bool, error) {
	if d.attr.Name == "" || len(values) == 0 {
		return true, nil
	}
	if len(values) > 1 {
		return false, fmt.Errorf("%d status values", len(values))
	}

	status, err := d.parse(values[0])
	if err != nil {
		return false, err
	}
	return status&d.mask == 0, nil
}

func (d StatusDecoder) parse(raw []byte) (int64, error) {
	if d.attr.Binary && len(raw) == 4 {
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return 0, fmt.Errorf("empty status value")
	}
	status, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("status %q is not an integer: %w", text, err)
	}
	return status, nil
}
