//go:build !linux

package execaction

import (
	"context"
	"fmt"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// sendfileCopy has no zero-copy syscall on this platform; it is a plain
// block copy with the same parameter contract as the Linux fast path.
func sendfileCopy(ctx context.Context, id attr.ID, attrs *attr.Set, params *action.Params) (action.PostAction, *attr.Set, error) {
	src, err := fullPath(attrs)
	if err != nil {
		return action.VerdictNone, nil, err
	}
	dst, ok := params.Get("target")
	if !ok {
		return action.VerdictNone, nil, fmt.Errorf("execaction: sendfile: missing %q parameter", "target")
	}
	if err := doCopy(ctx, src, dst, defaultBlockSize); err != nil {
		return action.VerdictNone, nil, err
	}
	if err := cloneMetadata(src, dst, attrs); err != nil {
		return action.VerdictNone, nil, err
	}
	return action.VerdictNone, nil, nil
}
