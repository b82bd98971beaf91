package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinytelemetry/cohortlens/internal/chart"
	"github.com/tinytelemetry/cohortlens/internal/dataset"
	"github.com/tinytelemetry/cohortlens/internal/facet"
	"go.uber.org/zap"
)

const (
	// scannerInitBufSize is the initial buffer size for the per-connection scanner (1 MB).
	scannerInitBufSize = 1024 * 1024
	// scannerMaxTokenSize is the maximum token size the scanner will accept (10 MB).
	scannerMaxTokenSize = 10 * 1024 * 1024
)

// Dataset is the part of the dataset service reachable over the socket.
type Dataset interface {
	Query(spec facet.FilterSpec) (*facet.Result, error)
	Chart(spec facet.FilterSpec) (*chart.Cohort, error)
	Compare(baseline, comparator facet.FilterSpec) (*chart.Comparison, error)
	Rebuild(ctx context.Context) error
	Stats() dataset.Stats
}

// Config holds optional settings for the server.
type Config struct {
	Logger *zap.Logger
}

// Server exposes a Dataset over a Unix domain socket using JSON-RPC 2.0.
type Server struct {
	socketPath string
	dataset    Dataset
	logger     *zap.Logger
	listener   net.Listener
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// NewServer creates a new socket RPC server.
func NewServer(socketPath string, ds Dataset, conf ...Config) *Server {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		dataset:    ds,
		logger:     cfg.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening on the Unix socket and accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("socketrpc: mkdir: %w", err)
	}

	// Remove stale socket if it exists.
	if _, err := os.Stat(s.socketPath); err == nil {
		conn, dialErr := net.DialTimeout("unix", s.socketPath, 500*time.Millisecond)
		if dialErr != nil {
			os.Remove(s.socketPath)
		} else {
			conn.Close()
			return fmt.Errorf("socketrpc: another server is already listening on %s", s.socketPath)
		}
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("socketrpc: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("socketrpc: listening", zap.String("path", s.socketPath))
	return nil
}

// Stop closes the listener, cancels in-flight rebuilds, waits for
// connections to drain, and removes the socket file.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener == nil {
			return
		}
		s.listener.Close()
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			// Transient errors (e.g. fd limit) must not kill the loop.
			s.logger.Warn("socketrpc: accept error", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the scanner when the server stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), scannerMaxTokenSize)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		if s.ctx.Err() != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp := Response{JSONRPC: "2.0", ID: 0, Error: &RPCError{Code: codeParseError, Message: "parse error"}}
			encoder.Encode(resp)
			continue
		}

		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	marshalResult := func(v any, err error) Response {
		if err != nil {
			resp.Error = &RPCError{Code: errorCode(err), Message: err.Error()}
			return resp
		}
		data, merr := json.Marshal(v)
		if merr != nil {
			resp.Error = &RPCError{Code: codeInternal, Message: merr.Error()}
			return resp
		}
		resp.Result = data
		return resp
	}

	invalidParams := func(err error) Response {
		resp.Error = &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		return resp
	}

	switch req.Method {
	case "Query":
		var p struct{ Filter facet.FilterSpec }
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return invalidParams(err)
		}
		return marshalResult(s.dataset.Query(p.Filter))

	case "Chart":
		var p struct{ Filter facet.FilterSpec }
		if err := json.Unmarshal(req.Params, &p); err != nil && len(req.Params) > 0 {
			return invalidParams(err)
		}
		return marshalResult(s.dataset.Chart(p.Filter))

	case "Compare":
		var p struct {
			Baseline   facet.FilterSpec
			Comparator facet.FilterSpec
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(err)
		}
		return marshalResult(s.dataset.Compare(p.Baseline, p.Comparator))

	case "Stats":
		return marshalResult(s.dataset.Stats(), nil)

	case "Rebuild":
		if err := s.dataset.Rebuild(s.ctx); err != nil {
			return marshalResult(nil, err)
		}
		return marshalResult(s.dataset.Stats(), nil)

	default:
		resp.Error = &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
		return resp
	}
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, facet.ErrMalformedFilter):
		return codeInvalidParams
	case errors.Is(err, dataset.ErrNotReady):
		return codeNotReady
	default:
		return codeApplication
	}
}
