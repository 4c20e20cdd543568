package mcu

import "fmt"

// MemoryRange describes one addressable region of a target or memory device.
// The zero value is not valid; use NewMemoryRange or MustMemoryRange.
type MemoryRange struct {
	base      uint32
	size      uint32
	stateFile string
	paged     bool
	pageSize  uint32
}

// NewMemoryRange validates and constructs a MemoryRange. pageSize is only
// meaningful when paged is true.
func NewMemoryRange(base, size uint32, stateFile string, paged bool, pageSize uint32) (MemoryRange, error) {
	if size == 0 {
		return MemoryRange{}, fmt.Errorf("mcu: memory range at 0x%08x has zero size", base)
	}
	if paged {
		if pageSize == 0 {
			return MemoryRange{}, fmt.Errorf("mcu: paged memory range at 0x%08x has zero page size", base)
		}
		if size%pageSize != 0 {
			return MemoryRange{}, fmt.Errorf("mcu: memory range at 0x%08x size 0x%x is not a multiple of page size 0x%x", base, size, pageSize)
		}
	} else {
		pageSize = 0
	}

	return MemoryRange{
		base:      base,
		size:      size,
		stateFile: stateFile,
		paged:     paged,
		pageSize:  pageSize,
	}, nil
}

// MustMemoryRange is NewMemoryRange for static tables; it panics on invalid input.
func MustMemoryRange(base, size uint32, stateFile string, paged bool, pageSize uint32) MemoryRange {
	r, err := NewMemoryRange(base, size, stateFile, paged, pageSize)
	if err != nil {
		panic(err)
	}
	return r
}

func (r MemoryRange) Base() uint32      { return r.base }
func (r MemoryRange) Size() uint32      { return r.size }
func (r MemoryRange) StateFile() string { return r.stateFile }
func (r MemoryRange) IsPaged() bool     { return r.paged }
func (r MemoryRange) PageSize() uint32  { return r.pageSize }

// End returns the last address covered by the range (inclusive), computed in
// 64 bits so a range reaching the top of the address space does not wrap.
func (r MemoryRange) End() uint64 {
	return uint64(r.base) + uint64(r.size) - 1
}

func (r MemoryRange) Contains(addr uint32) bool {
	return uint64(addr) >= uint64(r.base) && uint64(addr) <= r.End()
}

func (r MemoryRange) IsValid() bool {
	return r.size != 0
}

func (r MemoryRange) String() string {
	if r.paged {
		return fmt.Sprintf("0x%08x+0x%x (pages of 0x%x)", r.base, r.size, r.pageSize)
	}
	return fmt.Sprintf("0x%08x+0x%x", r.base, r.size)
}

// AddressSpan is an inclusive [Start, End] address pair, used for reserved regions.
type AddressSpan struct {
	Start uint32
	End   uint32
}

func (s AddressSpan) Contains(addr uint32) bool {
	return addr >= s.Start && addr <= s.End
}

func (s AddressSpan) String() string {
	return fmt.Sprintf("[0x%08x, 0x%08x]", s.Start, s.End)
}
