// Package execaction is the action executor: the built-in
// common.<verb> functions and the Command shell-spawn path that a
// policy rule's action descriptor (internal/domain/action) resolves to
// at run time.
package execaction

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cea-hpc/robinhood-sub006/internal/domain/action"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/attr"
)

// Func is a built-in action implementation. It receives the entry's
// current attributes and the action's layered parameters, and returns
// the verdict the caller uses to reconcile the catalog plus any updated
// attributes (nil if nothing changed).
type Func func(ctx context.Context, id attr.ID, attrs *attr.Set, params *action.Params) (action.PostAction, *attr.Set, error)

var registry = map[string]Func{
	"common.unlink":   unlink,
	"common.rmdir":    rmdir,
	"common.copy":     copyFile,
	"common.sendfile": sendfileCopy,
	"common.gzip":     gzipFile,
	"common.move":     move,
	"common.log":      logEntry,
}

// Lookup resolves a "<module>.<verb>" name to its built-in Func.
func Lookup(name string) (Func, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Execute runs a resolved action.Action against one entry.
func Execute(ctx context.Context, a *action.Action, id attr.ID, attrs *attr.Set, params *action.Params) (action.PostAction, *attr.Set, error) {
	switch a.Kind {
	case action.None:
		return action.VerdictNone, nil, nil

	case action.Function:
		fn, ok := Lookup(a.FuncName)
		if !ok {
			return action.VerdictNone, nil, fmt.Errorf("execaction: unknown function %q", a.FuncName)
		}
		return fn(ctx, id, attrs, params)

	case action.Command:
		return runCommand(ctx, a.Argv, params)

	default:
		return action.VerdictNone, nil, fmt.Errorf("execaction: unknown action kind %v", a.Kind)
	}
}

// runCommand substitutes placeholders into argv (quoting each
// substituted value for shell safety) and runs the joined tokens
// through "sh -c", matching the free-form shell commands a rule's
// action line carries. The process's exit status is the sole success
// signal; a Command action never reports a catalog-changing verdict on
// its own since the executor cannot infer what the external program
// did.
func runCommand(ctx context.Context, argv []string, params *action.Params) (action.PostAction, *attr.Set, error) {
	if len(argv) == 0 {
		return action.VerdictNone, nil, fmt.Errorf("execaction: command action has empty argv")
	}
	expanded, err := action.Substitute(argv, params)
	if err != nil {
		return action.VerdictNone, nil, err
	}
	line := strings.Join(expanded, " ")
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	if out, err := cmd.CombinedOutput(); err != nil {
		return action.VerdictNone, nil, fmt.Errorf("execaction: command %q failed: %w: %s", line, err, out)
	}
	return action.VerdictNone, nil, nil
}

func fullPath(attrs *attr.Set) (string, error) {
	v, ok, err := attrs.GetStd(attr.FullPath)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("execaction: fullpath attribute missing")
	}
	return v.(string), nil
}
