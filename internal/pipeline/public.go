package pipeline

import "strings"

// publicPaths are the engine's unauthenticated surfaces: liveness, API
// docs and the dashboard read-model. No assessment headers are required
// there, so every gate forwards these without looking.
var publicPaths = []string{"/health", "/docs", "/openapi.json", "/api/v1/stats", "/api/v1/health"}

// PublicPath reports whether the path is exempt from assessment.
func PublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return path == "/dashboard" || strings.HasPrefix(path, "/dashboard/")
}
