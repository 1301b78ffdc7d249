package syncapi

import (
	"context"
	"path"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/permission"
)

// wildcardEmail grants access to everyone when listed in a permission
// file's read/write/admin arrays.
const wildcardEmail = "*"

// authorizer resolves read/write access against the nearest governing
// _.syftperm ancestor of a path: permission-file contents decide
// read/write authorization per path. This is a deliberately minimal
// evaluator — nearest-ancestor-wins, no glob patterns, no inheritance
// templates — since permission-file semantics beyond syntactic validity
// are out of scope for the sync engine itself; _.syftperm files pose a
// simpler problem than a glob-matched rule-tree ACL would.
type authorizer struct {
	store SnapshotStore
	cache map[string]*permission.Spec
}

func newAuthorizer(store SnapshotStore) *authorizer {
	return &authorizer{store: store, cache: make(map[string]*permission.Spec)}
}

// canAccess reports whether email may access path with the requested mode.
// The owning datasite's own email always has full access.
func (a *authorizer) canAccess(ctx context.Context, p datasite.RelativePath, email string, write bool) bool {
	owner := p.Owner()
	if owner == "" {
		return false
	}
	if owner == email {
		return true
	}

	spec := a.resolve(ctx, p)
	if spec == nil {
		return false
	}

	if contains(spec.Admin, email) {
		return true
	}
	if write {
		return contains(spec.Write, email)
	}
	return contains(spec.Read, email)
}

// resolve walks up from path's directory to the datasite root looking for
// the nearest _.syftperm, caching the result by directory for the
// lifetime of one request.
func (a *authorizer) resolve(ctx context.Context, p datasite.RelativePath) *permission.Spec {
	dir := path.Dir(p.String())
	owner := p.Owner()

	for {
		spec, cached := a.cache[dir]
		if !cached {
			spec = nil
			candidate := datasite.NewRelativePath(path.Join(dir, permission.FileName))
			if data, err := a.store.Read(ctx, candidate); err == nil {
				if parsed, perr := permission.Parse(data); perr == nil {
					spec = parsed
				}
			}
			a.cache[dir] = spec
		}
		if spec != nil {
			return spec
		}

		if dir == owner || dir == "." || dir == "/" {
			return nil
		}
		dir = path.Dir(dir)
	}
}

func contains(list []string, email string) bool {
	for _, e := range list {
		if e == email || e == wildcardEmail {
			return true
		}
	}
	return false
}
