package cache

// AddressRange is spec.md §9's DESIGN NOTE taken directly: "Replace
// [C++] inheritance of AddressRange with a tagged variant {Full |
// Interval{start, length}} and a single overlaps(start, end) -> bool
// function." Full matches every invalidation request (used to drop
// the entire cache); Interval matches guest-address ranges that
// overlap [Start, Start+Length).
type AddressRange struct {
	full   bool
	start  uint32
	length uint32
}

// FullRange returns an AddressRange matching every possible interval.
func FullRange() AddressRange { return AddressRange{full: true} }

// IntervalRange returns an AddressRange covering [start, start+length).
func IntervalRange(start, length uint32) AddressRange {
	return AddressRange{start: start, length: length}
}

// Overlaps reports whether r intersects the half-open guest-address
// interval [start, end).
func (r AddressRange) Overlaps(start, end uint32) bool {
	if r.full {
		return true
	}
	rEnd := r.start + r.length
	return r.start < end && start < rEnd
}
