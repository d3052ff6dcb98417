package routegroups

import "net/http"

// Guards wraps handlers with token authentication and a permission check.
type Guards struct {
	WithToken         func(http.HandlerFunc) http.HandlerFunc
	RequirePermission func(string) func(http.HandlerFunc) http.HandlerFunc
}

func (g Guards) TokenPerm(perm string, h http.HandlerFunc) http.HandlerFunc {
	return g.WithToken(g.RequirePermission(perm)(h))
}
