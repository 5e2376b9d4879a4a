// Package execution defines the request snapshot handed to harnesses and the
// structured outcome they produce.
package execution

import "time"

// Context is the immutable per-request snapshot serialised for the harness.
type Context struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	URL     string            `json:"url"`
	Params  map[string]string `json:"params"`
	Query   map[string]string `json:"query"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
	Env     map[string]string `json:"-"`
}

// Result is the outcome of running a route's source code.
type Result struct {
	Status   int               `json:"status"`
	Body     any               `json:"body"`
	Headers  map[string]string `json:"headers,omitempty"`
	Duration time.Duration     `json:"duration"`
	Success  bool              `json:"success"`
	// Log captures harness output preceding the sentinel line.
	Log   string `json:"log,omitempty"`
	Error string `json:"error,omitempty"`
}

// Record is the persisted trace of one gateway request.
type Record struct {
	ID           string        `json:"id"`
	RouteID      string        `json:"route_id"`
	Method       string        `json:"method"`
	Path         string        `json:"path"`
	Identifier   string        `json:"identifier"`
	CredentialID string        `json:"credential_id,omitempty"`
	Status       int           `json:"status"`
	Success      bool          `json:"success"`
	Duration     time.Duration `json:"duration"`
	Log          string        `json:"log,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
