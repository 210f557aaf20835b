package vfs

import "strings"

// Capability identifies a feature a storage driver may advertise.
// The facade gates every user-facing operation on the capability it requires
// and fails fast with Unimplemented before any I/O when the driver lacks it.
type Capability int

const (
	// CapabilityReader covers listing, stat, download, and search.
	CapabilityReader Capability = iota + 1

	// CapabilityWriter covers upload, mkdir, and remove.
	CapabilityWriter

	// CapabilityAtomic covers rename and copy (copy+delete emulation included).
	CapabilityAtomic

	// CapabilityPresigned covers presigned URL generation.
	CapabilityPresigned

	// CapabilityMultipart covers the frontend multipart upload protocol.
	CapabilityMultipart
)

// String returns the capability name used in error messages.
func (c Capability) String() string {
	switch c {
	case CapabilityReader:
		return "Reader"
	case CapabilityWriter:
		return "Writer"
	case CapabilityAtomic:
		return "Atomic"
	case CapabilityPresigned:
		return "Presigned"
	case CapabilityMultipart:
		return "Multipart"
	default:
		return "Unknown"
	}
}

// CapabilitySet is the set of capabilities a driver declares.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// String returns a stable, comma-separated rendering for logs.
func (s CapabilitySet) String() string {
	names := make([]string, 0, len(s))
	for _, c := range []Capability{CapabilityReader, CapabilityWriter, CapabilityAtomic, CapabilityPresigned, CapabilityMultipart} {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	return strings.Join(names, ",")
}
