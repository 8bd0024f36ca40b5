package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// problemBase prefixes every problem type URI.
const problemBase = "https://netwatch.dev/problems/"

// Problem is an RFC 7807 problem details document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ProblemType returns the type URI for an HTTP status, e.g.
// ".../problems/too-many-requests" for 429.
func ProblemType(status int) string {
	return problemBase + strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "-")
}

// NewProblem builds a problem whose type and title derive from status.
func NewProblem(status int, detail, instance string) Problem {
	return Problem{
		Type:     ProblemType(status),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
