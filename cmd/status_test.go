package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/server"
	"github.com/cwbudde/goeda/internal/store"
)

func TestStatus_AgainstServer(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	srv := server.NewServer(":0", server.Options{Store: st, OutputDir: dir, Workers: 2})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Shutdown(t.Context())

	cfg := config.Default()
	cfg.RunID = "status-run"
	cfg.Algorithm = "umda"
	cfg.PopulationSize = 20
	cfg.Representation = config.Component{Type: "bitstring", Params: config.Params{"length": 10}}
	cfg.Problem = config.Component{Type: "onemax"}
	cfg.Stopping = config.Stopping{MaxIterations: 3}
	body, _ := json.Marshal(cfg)

	resp, err := http.Post(ts.URL+"/api/v1/runs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var out bytes.Buffer
	deadline := time.Now().Add(10 * time.Second)
	for {
		out.Reset()
		if err := getRunStatus(&out, ts.URL+"/api/v1/runs/status-run/status", "status-run"); err != nil {
			t.Fatalf("getRunStatus failed: %v", err)
		}
		if strings.Contains(out.String(), "State: completed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Run did not complete:\n%s", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, want := range []string{"Algorithm: umda", "Problem: onemax", "Iteration: 3", "Stopped: max-iterations"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	if err := listRuns(&out, ts.URL+"/api/v1/runs"); err != nil {
		t.Fatalf("listRuns failed: %v", err)
	}
	if !strings.Contains(out.String(), "status-run") || !strings.Contains(out.String(), "Found 1 run(s)") {
		t.Errorf("Unexpected list output:\n%s", out.String())
	}

	err = getRunStatus(&out, ts.URL+"/api/v1/runs/nope/status", "nope")
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}
