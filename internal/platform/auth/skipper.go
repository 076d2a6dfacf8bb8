package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route patterns that bypass staff authentication. Patient
// self-service routes stay tenant-scoped and are rate limited instead.
var publicPaths = map[string]bool{
	"/health":                         true,
	"/health/db":                      true,
	"/api/v1/results/access":          true,
	"/api/v1/disclosure/sessions/:id": true,
}

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given route pattern is public.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// InfraSkipper returns true for infrastructure routes that need neither
// authentication nor a tenant connection.
func InfraSkipper(c echo.Context) bool {
	p := c.Path()
	return p == "/health" || p == "/health/db"
}
