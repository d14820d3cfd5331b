package filter

import "github.com/cea-hpc/robinhood-sub006/internal/domain/attr"

// virtual holds the standard attributes that are derived values the
// core maintains, which the translator does not push down to the
// backend even though the entries table keeps a copy of each.
// Conditions over these attributes are elided from the translated
// filter (equivalent to AND TRUE), per the filter translator's
// superset contract.
var virtual = map[attr.Index]bool{
	attr.FullPath: true, // derived from parent chain
	attr.Depth:    true, // derived from fullpath
}

// Translatable reports whether idx can be expressed as a backend
// comparator. Status and sm_info attributes live in side tables keyed
// by entry (one row per status manager / info attribute) and are always
// translatable.
func Translatable(idx attr.Index) bool {
	if idx.Domain() != attr.DomainStandard {
		return true
	}
	return !virtual[idx]
}
