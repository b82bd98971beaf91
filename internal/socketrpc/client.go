package socketrpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/cohortlens/internal/dataset"
	"github.com/tinytelemetry/cohortlens/internal/facet"
)

// Client talks to a running server over its Unix domain socket. Query, Chart
// and Compare return the server's JSON verbatim.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and returns the raw result.
func (c *Client) call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	c.conn.SetDeadline(time.Now().Add(30 * time.Second))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("socketrpc: read: %w", err)
		}
		return nil, fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if resp.ID != id {
		return nil, fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}
	return resp.Result, nil
}

func (c *Client) callStats(method string) (dataset.Stats, error) {
	var stats dataset.Stats
	raw, err := c.call(method, map[string]any{})
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		return stats, fmt.Errorf("socketrpc: unmarshal result: %w", err)
	}
	return stats, nil
}

func (c *Client) Query(spec facet.FilterSpec) (json.RawMessage, error) {
	return c.call("Query", map[string]any{"Filter": spec})
}

func (c *Client) Chart(spec facet.FilterSpec) (json.RawMessage, error) {
	return c.call("Chart", map[string]any{"Filter": spec})
}

func (c *Client) Compare(baseline, comparator facet.FilterSpec) (json.RawMessage, error) {
	return c.call("Compare", map[string]any{"Baseline": baseline, "Comparator": comparator})
}

func (c *Client) Stats() (dataset.Stats, error) { return c.callStats("Stats") }

func (c *Client) Rebuild() (dataset.Stats, error) { return c.callStats("Rebuild") }
