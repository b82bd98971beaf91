package socketrpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/cohortlens/internal/dataset"
	"github.com/tinytelemetry/cohortlens/internal/duckdb"
	"github.com/tinytelemetry/cohortlens/internal/facet"
	"github.com/tinytelemetry/cohortlens/internal/model"
	"github.com/tinytelemetry/cohortlens/internal/socketrpc"
)

func seedPeople() []model.Record {
	return []model.Record{
		{Practice: "P1", Sex: "M", LTCs: []string{"Asthma"}, Age: 40, Risk: 4, CCG: "02M", LTCCount: "1", CR: "1", CV: "a"},
		{Practice: "P1", Sex: "F", LTCs: []string{"COPD", "Asthma"}, Age: 72, Risk: 22, CCG: "01K", LTCCount: "2", CR: "2", CV: "b"},
		{Practice: "P2", Sex: "F", Age: 19, Risk: 1, CCG: "02M", LTCCount: "0", CR: "1", CV: "a"},
	}
}

func startTestServer(t *testing.T) (*socketrpc.Client, *socketrpc.Server) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InsertPeople(context.Background(), seedPeople()); err != nil {
		t.Fatalf("InsertPeople: %v", err)
	}

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, dataset.NewService(store))
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, srv
}

func TestRoundtrip(t *testing.T) {
	client, _ := startTestServer(t)

	t.Run("NotReady", func(t *testing.T) {
		_, err := client.Query(nil)
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || !rpcErr.NotReady() {
			t.Fatalf("err = %v, want not-ready RPC error", err)
		}
	})

	t.Run("Rebuild", func(t *testing.T) {
		stats, err := client.Rebuild()
		if err != nil {
			t.Fatal(err)
		}
		if !stats.Ready || stats.Records != 3 {
			t.Fatalf("stats = %+v, want ready with 3 records", stats)
		}
	})

	t.Run("Query", func(t *testing.T) {
		raw, err := client.Query(facet.FilterSpec{"SexDimension": []string{"Female"}})
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body["all"]["values"] != float64(2) {
			t.Fatalf("all.values = %v, want 2", body["all"]["values"])
		}
	})

	t.Run("MalformedFilter", func(t *testing.T) {
		_, err := client.Query(facet.FilterSpec{"AgeDimension": "old"})
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
			t.Fatalf("err = %v, want invalid params", err)
		}
	})

	t.Run("Chart", func(t *testing.T) {
		raw, err := client.Chart(nil)
		if err != nil {
			t.Fatal(err)
		}
		var cohort struct {
			Denominator int               `json:"denominator"`
			Data        []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &cohort); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if cohort.Denominator != 3 || len(cohort.Data) == 0 {
			t.Fatalf("cohort = %+v", cohort)
		}
	})

	t.Run("Compare", func(t *testing.T) {
		raw, err := client.Compare(facet.FilterSpec{}, facet.FilterSpec{"CCGDimension": []string{"02M"}})
		if err != nil {
			t.Fatal(err)
		}
		var cmp struct {
			Baseline   int `json:"baselinePop"`
			Comparator int `json:"comparisonPop"`
		}
		if err := json.Unmarshal(raw, &cmp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if cmp.Baseline != 3 || cmp.Comparator != 2 {
			t.Fatalf("populations = %d/%d, want 3/2", cmp.Baseline, cmp.Comparator)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := client.Stats()
		if err != nil {
			t.Fatal(err)
		}
		if stats.Records != 3 || stats.Generation == 0 {
			t.Fatalf("stats = %+v", stats)
		}
	})
}

func TestStartRefusesLiveSocket(t *testing.T) {
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	sockPath := filepath.Join(t.TempDir(), "live.sock")
	first := socketrpc.NewServer(sockPath, dataset.NewService(store))
	if err := first.Start(); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	second := socketrpc.NewServer(sockPath, dataset.NewService(store))
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected error when another server is listening")
	}
}

func TestStopWithoutStart(t *testing.T) {
	srv := socketrpc.NewServer(filepath.Join(t.TempDir(), "never.sock"), nil)
	srv.Stop()
	srv.Stop()
}
