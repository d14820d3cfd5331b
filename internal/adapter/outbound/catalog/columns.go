package catalog

import (
	"fmt"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// stdColumn maps a standard attribute to its entries(...) column name.
var stdColumn = map[attr.Index]string{
	attr.Name:         "name",
	attr.Parent:       "parent_id",
	attr.FullPath:     "fullpath",
	attr.Type:         "type",
	attr.Size:         "size",
	attr.Blocks:       "blocks",
	attr.UID:          "uid",
	attr.GID:          "gid",
	attr.Mode:         "mode",
	attr.Nlink:        "nlink",
	attr.LastAccess:   "last_access",
	attr.LastMod:      "last_mod",
	attr.CreationTime: "creation_time",
	attr.Depth:        "depth",
	attr.LinkTarget:   "link_target",
	attr.StripeInfo:   "stripe_info",
	attr.Invalid:      "invalid",
	attr.MDUpdate:     "md_update",
	attr.PathUpdate:   "path_update",
	attr.ClassID:      "class_id",
}

// columnExpr renders idx as a SQL expression usable in a WHERE/ORDER BY
// clause against the entries table: a plain column for standard
// attributes, a correlated subquery against the status/sm_info side
// tables otherwise.
func columnExpr(idx attr.Index) string {
	switch idx.Domain() {
	case attr.DomainStandard:
		if col, ok := stdColumn[idx]; ok {
			return col
		}
		return "NULL"
	case attr.DomainStatus:
		return fmt.Sprintf(
			"(SELECT value FROM status_values sv WHERE sv.entry_id = entries.id AND sv.sm_idx = %d)",
			idx.Offset(),
		)
	case attr.DomainSMInfo:
		smIdx, attrIdx := idx.Offset()/8, idx.Offset()%8
		return fmt.Sprintf(
			"(SELECT value FROM sminfo_values iv WHERE iv.entry_id = entries.id AND iv.sm_idx = %d AND iv.attr_idx = %d)",
			smIdx, attrIdx,
		)
	default:
		return "NULL"
	}
}
