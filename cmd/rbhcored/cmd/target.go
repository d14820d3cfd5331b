package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// parseTarget turns a --target value into a filter narrowing a run's
// scope. Recognized forms, mirroring the core runner's target union
// (none, fs, ost, pool, user, group, file, class):
//
//	""             -> no filter (the policy's own scope only)
//	class:<name>   -> entries classified into fileclass <name>
//	user:<uid>     -> entries owned by uid
//	group:<gid>    -> entries owned by gid
//	fs:<glob>      -> entries whose full path matches glob (LIKE syntax)
//	<glob>         -> same as fs:<glob>
//
// Per-OST and per-pool targeting have no standard attribute to filter
// on in this catalog schema (see the trigger loop's own note on this):
// "ost:" and "pool:" prefixes are rejected as unknown, and such a run
// is expressed with the "fs:" form against the subject's mount path.
func parseTarget(target string) (*expr.Node, error) {
	if target == "" {
		return nil, nil
	}
	kind, value, hasPrefix := strings.Cut(target, ":")
	if !hasPrefix {
		return expr.Cond(attr.FullPath, expr.LIKE, expr.Value{Str: target}), nil
	}
	switch kind {
	case "class":
		return expr.Cond(attr.ClassID, expr.EQ, expr.Value{Str: value}), nil
	case "user":
		uid, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --target user:%s: %w", value, err)
		}
		return expr.Cond(attr.UID, expr.EQ, expr.Value{Int: int64(uid)}), nil
	case "group":
		gid, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --target group:%s: %w", value, err)
		}
		return expr.Cond(attr.GID, expr.EQ, expr.Value{Int: int64(gid)}), nil
	case "fs", "file":
		return expr.Cond(attr.FullPath, expr.LIKE, expr.Value{Str: value}), nil
	default:
		return nil, fmt.Errorf("unknown --target prefix %q", kind)
	}
}
