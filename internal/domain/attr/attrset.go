package attr

import (
	"path"
	"time"
)

// Std holds the typed values of the fixed standard attribute set. Only
// the fields whose bit is set in the owning Set's Present mask are
// meaningful; the rest are zero values.
type Std struct {
	Name         string
	Parent       ID
	FullPath     string
	Type         string // "file", "dir", "symlink", "special"
	Size         uint64
	Blocks       uint64
	UID          uint32
	GID          uint32
	Mode         uint32
	Nlink        uint32
	LastAccess   time.Time
	LastMod      time.Time
	CreationTime time.Time
	Depth        int
	LinkTarget   string
	StripeInfo   string
	Invalid      bool
	MDUpdate     time.Time
	PathUpdate   time.Time
	ClassID      string
	RmTime       time.Time
}

// Set is the typed, masked attribute container: Present records which
// attributes are valid; Std, Status and SMInfo hold the values. An
// attribute is valid iff its bit is set in Present, regardless of
// whether its Go zero value happens to look unset.
type Set struct {
	Present Mask
	Std     Std
	// Status holds one value per registered status-manager instance,
	// keyed by status-manager index (domain DomainStatus offset).
	Status map[int]string
	// SMInfo holds one value per (status-manager, info-attribute) pair,
	// keyed by the packed sm_info offset (see SMInfoIndex).
	SMInfo map[int]any
}

// NewSet returns an empty, ready-to-use Set.
func NewSet() *Set {
	return &Set{Status: make(map[int]string), SMInfo: make(map[int]any)}
}

// GetStd returns the value of a standard attribute and whether it is
// present. It returns (zero, false, err) if idx is not a standard-domain
// index.
func (s *Set) GetStd(idx Index) (any, bool, error) {
	if err := checkDomain(idx, DomainStandard); err != nil {
		return nil, false, err
	}
	if !s.Present.Test(idx) {
		return nil, false, nil
	}
	return stdField(&s.Std, idx), true, nil
}

// GetStatus returns the status value for the smIdx-th status manager.
func (s *Set) GetStatus(smIdx int) (string, bool) {
	idx := StatusIndex(smIdx)
	if !s.Present.Test(idx) {
		return "", false
	}
	v, ok := s.Status[smIdx]
	return v, ok
}

// SetStatus records the status value for the smIdx-th status manager.
func (s *Set) SetStatus(smIdx int, value string) {
	s.Present = s.Present.Set(StatusIndex(smIdx))
	s.Status[smIdx] = value
}

// GetSMInfo returns the info value for the (smIdx, attrIdx) status
// manager attribute.
func (s *Set) GetSMInfo(smIdx, attrIdx int) (any, bool, error) {
	idx := SMInfoIndex(smIdx, attrIdx)
	if !s.Present.Test(idx) {
		return nil, false, nil
	}
	v, ok := s.SMInfo[idx.Offset()]
	return v, ok, nil
}

// SetSMInfo records the info value for the (smIdx, attrIdx) status
// manager attribute.
func (s *Set) SetSMInfo(smIdx, attrIdx int, value any) {
	idx := SMInfoIndex(smIdx, attrIdx)
	s.Present = s.Present.Set(idx)
	s.SMInfo[idx.Offset()] = value
}

// stdField reads a single Std field by index via a plain switch (no
// reflection: the standard set is small and fixed).
func stdField(std *Std, idx Index) any {
	switch idx {
	case Name:
		return std.Name
	case Parent:
		return std.Parent
	case FullPath:
		return std.FullPath
	case Type:
		return std.Type
	case Size:
		return std.Size
	case Blocks:
		return std.Blocks
	case UID:
		return std.UID
	case GID:
		return std.GID
	case Mode:
		return std.Mode
	case Nlink:
		return std.Nlink
	case LastAccess:
		return std.LastAccess
	case LastMod:
		return std.LastMod
	case CreationTime:
		return std.CreationTime
	case Depth:
		return std.Depth
	case LinkTarget:
		return std.LinkTarget
	case StripeInfo:
		return std.StripeInfo
	case Invalid:
		return std.Invalid
	case MDUpdate:
		return std.MDUpdate
	case PathUpdate:
		return std.PathUpdate
	case ClassID:
		return std.ClassID
	case RmTime:
		return std.RmTime
	default:
		return nil
	}
}

// Merge copies attributes from src into tgt. With overwrite=false
// (the default), only attributes missing from tgt are filled in; with
// overwrite=true, every attribute present in src replaces tgt's value.
// Read-only bits are never copied when tgt is being prepared for
// persistence: call tgt.Present = tgt.Present.UnsetReadonly() afterwards,
// or use MergeForPersist.
func Merge(tgt, src *Set, overwrite bool) {
	for smIdx, v := range src.Status {
		idx := StatusIndex(smIdx)
		if overwrite || !tgt.Present.Test(idx) {
			tgt.SetStatus(smIdx, v)
		}
	}
	for offset, v := range src.SMInfo {
		idx := MakeIndex(DomainSMInfo, offset)
		if overwrite || !tgt.Present.Test(idx) {
			tgt.Present = tgt.Present.Set(idx)
			tgt.SMInfo[offset] = v
		}
	}
	mergeStd(tgt, src, overwrite)
}

// MergeForPersist merges src into tgt like Merge, then strips read-only
// bits from the result so the catalog gateway never persists an
// action-supplied read-only value.
func MergeForPersist(tgt, src *Set, overwrite bool) {
	Merge(tgt, src, overwrite)
	tgt.Present = tgt.Present.UnsetReadonly()
}

func mergeStd(tgt, src *Set, overwrite bool) {
	for i := Index(0); i < numStandard; i++ {
		if !src.Present.Test(i) {
			continue
		}
		if !overwrite && tgt.Present.Test(i) {
			continue
		}
		setStdField(&tgt.Std, i, stdField(&src.Std, i))
		tgt.Present = tgt.Present.Set(i)
	}
}

func setStdField(std *Std, idx Index, v any) {
	switch idx {
	case Name:
		std.Name = v.(string)
	case Parent:
		std.Parent = v.(ID)
	case FullPath:
		std.FullPath = v.(string)
	case Type:
		std.Type = v.(string)
	case Size:
		std.Size = v.(uint64)
	case Blocks:
		std.Blocks = v.(uint64)
	case UID:
		std.UID = v.(uint32)
	case GID:
		std.GID = v.(uint32)
	case Mode:
		std.Mode = v.(uint32)
	case Nlink:
		std.Nlink = v.(uint32)
	case LastAccess:
		std.LastAccess = v.(time.Time)
	case LastMod:
		std.LastMod = v.(time.Time)
	case CreationTime:
		std.CreationTime = v.(time.Time)
	case Depth:
		std.Depth = v.(int)
	case LinkTarget:
		std.LinkTarget = v.(string)
	case StripeInfo:
		std.StripeInfo = v.(string)
	case Invalid:
		std.Invalid = v.(bool)
	case MDUpdate:
		std.MDUpdate = v.(time.Time)
	case PathUpdate:
		std.PathUpdate = v.(time.Time)
	case ClassID:
		std.ClassID = v.(string)
	case RmTime:
		std.RmTime = v.(time.Time)
	}
}

// ReconstructDerived fills in attributes that can be computed from
// others already present, rather than requiring a fresh filesystem or
// catalog read. Currently this covers FullPath (parent path + name) and
// Depth (path component count); the core itself maintains both, and
// Depth is one of the read-only attributes.
func ReconstructDerived(s *Set, parentPath string) {
	if s.Present.Test(FullPath) {
		return
	}
	if parentPath == "" || !s.Present.Test(Name) {
		return
	}
	s.Std.FullPath = path.Join(parentPath, s.Std.Name)
	s.Present = s.Present.Set(FullPath)
	if !s.Present.Test(Depth) {
		s.Std.Depth = len(splitClean(s.Std.FullPath))
		s.Present = s.Present.Set(Depth)
	}
}

func splitClean(p string) []string {
	p = path.Clean(p)
	var parts []string
	for _, seg := range pathSplit(p) {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

func pathSplit(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}
