package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.crossborder-liquidity.dev/"
)

// Details is an RFC 7807 problem document. Code carries the failure code when
// the problem comes from a service failure.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Code      string `json:"code,omitempty"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends a problem with the given type.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if problemType == "" {
		problemType = "about:blank"
	}
	send(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}

// WriteCode sends a problem typed after a failure code.
func WriteCode(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	send(w, r, Details{Type: Type(code), Status: status, Detail: detail, Code: code})
}

func send(w http.ResponseWriter, r *http.Request, d Details) {
	if d.Title == "" {
		d.Title = http.StatusText(d.Status)
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get("X-Trace-ID")
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
