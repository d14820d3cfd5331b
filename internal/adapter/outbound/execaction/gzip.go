package execaction

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// gzipFile streams an entry's content through a gzip compressor to
// params["target"] (default: source path + ".gz"). With
// params["remove_source"] == "true" the original is unlinked after a
// successful compression, reporting VerdictRmAll.
func gzipFile(ctx context.Context, id attr.ID, attrs *attr.Set, params *action.Params) (action.PostAction, *attr.Set, error) {
	src, err := fullPath(attrs)
	if err != nil {
		return action.VerdictNone, nil, err
	}
	dst, ok := params.Get("target")
	if !ok {
		dst = src + ".gz"
	}

	in, err := os.Open(src)
	if err != nil {
		return action.VerdictNone, nil, fmt.Errorf("execaction: gzip: open source %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return action.VerdictNone, nil, fmt.Errorf("execaction: gzip: open target %s: %w", dst, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		return action.VerdictNone, nil, fmt.Errorf("execaction: gzip: compress %s: %w", src, err)
	}
	if err := gw.Close(); err != nil {
		return action.VerdictNone, nil, fmt.Errorf("execaction: gzip: flush %s: %w", dst, err)
	}

	if remove, _ := params.Get("remove_source"); remove == "true" {
		if err := os.Remove(src); err != nil {
			return action.VerdictNone, nil, fmt.Errorf("execaction: gzip: remove source %s: %w", src, err)
		}
		return action.VerdictRmAll, nil, nil
	}
	return action.VerdictNone, nil, nil
}
