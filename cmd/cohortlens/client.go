package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/cohortlens/internal/facet"
	"github.com/tinytelemetry/cohortlens/internal/socketrpc"
)

// runClient answers -query and -stats against a running server's socket.
func runClient(w io.Writer, socketPath, filter string, stats bool) error {
	client, err := socketrpc.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer client.Close()

	if stats {
		s, err := client.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ready=%t records=%d generation=%d last-rebuild=%s took=%s\n",
			s.Ready, s.Records, s.Generation, s.LastRebuild.Format("2006-01-02T15:04:05Z07:00"), s.RebuildTook)
	}
	if strings.TrimSpace(filter) == "" {
		return nil
	}

	var spec facet.FilterSpec
	if err := json.Unmarshal([]byte(filter), &spec); err != nil {
		return fmt.Errorf("parse -query filter: %w", err)
	}
	raw, err := client.Query(spec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
