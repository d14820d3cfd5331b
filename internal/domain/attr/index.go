// Package attr implements the typed, masked attribute model shared by
// every component of the policy engine: the EntryID identity, the
// three-domain AttrMask bitset, and the AttrSet value container.
package attr

import "fmt"

// Domain selects which of the three disjoint bit domains an Index
// belongs to.
type Domain uint8

const (
	// DomainStandard covers the fixed set of filesystem-native
	// attributes (name, size, owner, timestamps, ...).
	DomainStandard Domain = iota
	// DomainStatus covers one bit per registered status-manager
	// instance (attached to a policy).
	DomainStatus
	// DomainSMInfo covers one bit per registered status-manager
	// attribute (sm-specific info fields).
	DomainSMInfo
)

func (d Domain) String() string {
	switch d {
	case DomainStandard:
		return "standard"
	case DomainStatus:
		return "status"
	case DomainSMInfo:
		return "sm_info"
	default:
		return "unknown"
	}
}

// Index identifies a single attribute. The high bits encode the domain
// the attribute belongs to; the low bits encode its bit position within
// that domain's mask. Encoding the domain in the index lets accessors
// fail fast with a domain-mismatch error instead of silently reading
// the wrong bitset.
type Index uint32

const (
	domainShift = 24
	offsetMask  = (1 << domainShift) - 1
	maxOffset   = 63 // each domain mask is a uint64
)

// MakeIndex builds an Index from a domain and an in-domain bit offset.
// It panics if offset is out of range; this is a programming error
// (registries assign offsets at load time), never a runtime condition.
func MakeIndex(d Domain, offset int) Index {
	if offset < 0 || offset > maxOffset {
		panic(fmt.Sprintf("attr: offset %d out of range for domain %s", offset, d))
	}
	return Index(uint32(d)<<domainShift | uint32(offset))
}

// Domain returns the domain this index belongs to.
func (idx Index) Domain() Domain { return Domain(uint32(idx) >> domainShift) }

// Offset returns the in-domain bit position of this index.
func (idx Index) Offset() int { return int(uint32(idx) & offsetMask) }

// bit returns the single-bit mask for this index's offset.
func (idx Index) bit() uint64 { return 1 << uint(idx.Offset()) }

// checkDomain returns a domain-mismatch error if idx does not belong to
// the expected domain. Accessors call this before touching a value so a
// caller that mixes up get_std/get_status/get_sm_info fails loudly.
func checkDomain(idx Index, want Domain) error {
	if idx.Domain() != want {
		return fmt.Errorf("attr: domain mismatch: index %d is %s, expected %s", idx, idx.Domain(), want)
	}
	return nil
}

// Standard attribute indices. Order matches the fixed set enumerated in
// the attribute model: name, parent, fullpath, type, size, blocks,
// owner, group, mode, nlink, access/mod/creation times, depth, link
// target, stripe info, invalid flag, and the two read-only bookkeeping
// timestamps (md_update, path_update). ClassID and RmTime are derived
// bookkeeping attributes the policy core itself maintains.
const (
	Name Index = iota
	Parent
	FullPath
	Type
	Size
	Blocks
	UID
	GID
	Mode
	Nlink
	LastAccess
	LastMod
	CreationTime
	Depth
	LinkTarget
	StripeInfo
	Invalid
	MDUpdate
	PathUpdate
	ClassID
	RmTime
	numStandard
)

func init() {
	// DomainStandard == 0, so the iota-assigned constants above already
	// decode to (DomainStandard, offset) under Domain()/Offset() without
	// needing MakeIndex; this just guards against the set growing past
	// what a 64-bit mask domain can hold.
	if numStandard > maxOffset+1 {
		panic("attr: too many standard attributes for a 64-bit mask")
	}
}

// StdName returns a human-readable name for a standard attribute index,
// used in diagnostics and config error messages.
func StdName(idx Index) string {
	switch idx {
	case Name:
		return "name"
	case Parent:
		return "parent"
	case FullPath:
		return "fullpath"
	case Type:
		return "type"
	case Size:
		return "size"
	case Blocks:
		return "blocks"
	case UID:
		return "uid"
	case GID:
		return "gid"
	case Mode:
		return "mode"
	case Nlink:
		return "nlink"
	case LastAccess:
		return "last_access"
	case LastMod:
		return "last_mod"
	case CreationTime:
		return "creation_time"
	case Depth:
		return "depth"
	case LinkTarget:
		return "link_target"
	case StripeInfo:
		return "stripe_info"
	case Invalid:
		return "invalid"
	case MDUpdate:
		return "md_update"
	case PathUpdate:
		return "path_update"
	case ClassID:
		return "class_id"
	case RmTime:
		return "rm_time"
	default:
		return fmt.Sprintf("std#%d", idx)
	}
}

// StdIndexByName resolves a standard attribute name (as used in
// fileclass/rule configuration) back to its Index. ok is false for an
// unknown name.
func StdIndexByName(name string) (Index, bool) {
	for i := Index(0); i < numStandard; i++ {
		if StdName(i) == name {
			return i, true
		}
	}
	return 0, false
}

// StatusIndex builds the Index for the smIdx-th registered status
// manager's status bit.
func StatusIndex(smIdx int) Index { return MakeIndex(DomainStatus, smIdx) }

// SMInfoIndex builds the Index for the smIdx-th status manager's
// attrIdx-th info attribute. sm_info indices are packed into one 6-bit
// offset (smIdx in the high 3 bits, attrIdx in the low 3 bits) so a
// single uint64 mask domain can address multiple status managers' info
// attributes; with at most 8 status managers and 8 info attributes each
// this comfortably fits the 64-bit domain.
func SMInfoIndex(smIdx, attrIdx int) Index {
	if smIdx < 0 || smIdx > 7 || attrIdx < 0 || attrIdx > 7 {
		panic(fmt.Sprintf("attr: sm_info index (%d,%d) out of range", smIdx, attrIdx))
	}
	return MakeIndex(DomainSMInfo, smIdx*8+attrIdx)
}
