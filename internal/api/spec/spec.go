package spec

import (
	_ "embed"
	"net/http"
	"strconv"
)

//go:embed openapi.yaml
var openapiYAML []byte

// OpenAPIHandler serves the embedded OpenAPI document the swagger UI reads.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Length", strconv.Itoa(len(openapiYAML)))
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openapiYAML)
	}
}
