package rbac

// Resolver expands roles through a Matrix and matches routes against the result.
type Resolver struct {
	matrix   Matrix
	matchers *matcherCache
}

// NewResolver constructs a Resolver. A nil matrix uses DefaultMatrix.
// Every route pattern in the matrix is compiled up front.
func NewResolver(matrix Matrix) *Resolver {
	if matrix == nil {
		matrix = DefaultMatrix()
	}
	r := &Resolver{matrix: matrix, matchers: newMatcherCache()}
	for _, def := range matrix {
		for _, pattern := range def.Routes {
			r.matchers.get(pattern)
		}
	}
	return r
}

// Matrix exposes the underlying matrix.
func (r *Resolver) Matrix() Matrix {
	return r.matrix
}

// ResolveRole returns the role's own routes and actions plus everything it
// inherits. Unknown roles resolve to empty sets.
func (r *Resolver) ResolveRole(role Role) ResolvedRole {
	return r.resolve(role, make(map[Role]struct{}))
}

func (r *Resolver) resolve(role Role, visited map[Role]struct{}) ResolvedRole {
	out := newResolvedRole()
	if _, seen := visited[role]; seen {
		return out
	}
	visited[role] = struct{}{}

	def, ok := r.matrix[role]
	if !ok {
		return out
	}
	out.Routes.merge(def.Routes)
	out.Actions.merge(def.Actions)
	for _, parent := range def.Inherits {
		out.union(r.resolve(parent, visited))
	}
	return out
}

// FlattenPermissions unions the resolution of every role. Each role is
// resolved with its own visited set.
func (r *Resolver) FlattenPermissions(roles []Role) ResolvedRole {
	out := newResolvedRole()
	for _, role := range roles {
		out.union(r.ResolveRole(role))
	}
	return out
}

// MatchRoute reports whether any route pattern in resolved matches pathname.
func (r *Resolver) MatchRoute(resolved ResolvedRole, pathname string) bool {
	if resolved.Routes.Has(WildcardRoute) {
		return true
	}
	for pattern := range resolved.Routes {
		if r.matchers.get(pattern).Match(pathname) {
			return true
		}
	}
	return false
}
