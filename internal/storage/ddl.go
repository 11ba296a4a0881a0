package storage

import (
	"context"
	"fmt"
	"sync"
)

// Execer is the minimal statement surface a DDL bootstrapper needs. Both
// backend repositories satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// Bootstrapper applies a backend's fixed schema statements via exec. The
// statements are constants in the backend package; nothing here derives DDL.
type Bootstrapper func(ctx context.Context, exec Execer) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]Bootstrapper{}
)

// RegisterDDL registers (or replaces) the Bootstrapper for a storage kind.
// Backend packages call it from init().
func RegisterDDL(kind string, fn Bootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureSchema locates the Bootstrapper for kind and invokes it against exec.
func EnsureSchema(ctx context.Context, kind string, exec Execer) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage kind %q", kind)
	}
	return fn(ctx, exec)
}
