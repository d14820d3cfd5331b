package adminhttp

import (
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/expr"
)

// targetFilterFromGlob turns a path glob (e.g. "/data/project-x/*")
// into a full-path LIKE condition, or returns nil for an empty glob.
func targetFilterFromGlob(glob string) *expr.Node {
	if glob == "" {
		return nil
	}
	return expr.Cond(attr.FullPath, expr.LIKE, expr.Value{Str: glob})
}
