package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes the dataset service to local tools over a
// Unix domain socket, one request per line.
//
//   Method     Params                                   Result
//   ───────    ──────────────────────────────────────   ──────────────────────────
//   Query      {Filter: FilterSpec}                     query result (per-dimension histograms)
//   Chart      {Filter: FilterSpec}                     cohort chart series
//   Compare    {Baseline: FilterSpec, Comparator: ...}  comparison tables
//   Stats      (none)                                   dataset.Stats
//   Rebuild    (none)                                   dataset.Stats after the reload
//
// A missing or null Filter selects the whole population.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params (including malformed filters)
//   -32603  Internal error (marshal failure)
//   -32000  Application error
//   -32001  Population not loaded yet

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
	codeNotReady       = -32001
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// NotReady reports whether the server answered before the first rebuild.
func (e *RPCError) NotReady() bool { return e.Code == codeNotReady }

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/cohortlens/cohortlens.sock, falling back to
// ~/.local/state/cohortlens/cohortlens.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cohortlens", "cohortlens.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/cohortlens.sock"
	}
	return filepath.Join(home, ".local", "state", "cohortlens", "cohortlens.sock")
}
