package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/samber/do"

	"github.com/bdobrica/Kiki/internal/kiki/config"
	"github.com/bdobrica/Kiki/internal/kiki/memory"
	"github.com/bdobrica/Kiki/internal/kiki/orchestrator"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "kiki.db")
	cfg.Memory.TokenizerEncoding = "approximate"
	cfg.Summarizer.Backend = "generation"
	return &cfg
}

func TestWiring_NoBackendsConfigured(t *testing.T) {
	a := New(testConfig(t))
	t.Cleanup(func() {
		if err := a.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})

	orch, err := a.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator: %v", err)
	}
	if orch.Ready() {
		t.Fatal("orchestrator reports ready without a generation endpoint")
	}
	_, err = orch.Ask(context.Background(), orchestrator.Request{Question: "Hello", Mode: memory.ModeChat})
	if !errors.Is(err, orchestrator.ErrModelUnavailable) {
		t.Fatalf("Ask error = %v, want ErrModelUnavailable", err)
	}

	idx, err := a.Index()
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if idx.Available() {
		t.Fatal("index reports available without an embedding endpoint")
	}
	n, err := idx.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}

func TestWiring_HTTPHealth(t *testing.T) {
	a := New(testConfig(t))
	t.Cleanup(func() { _ = a.Stop() })

	srv, err := do.Invoke[*http.Server](a.di)
	if err != nil {
		t.Fatalf("invoke http server: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "loading" {
		t.Errorf("status = %v, want loading", body["status"])
	}
	if body["database"] != "Ghana knowledge base" {
		t.Errorf("database = %v", body["database"])
	}
}

func TestWiring_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing", "dir", "kiki.db")
	a := New(cfg)
	t.Cleanup(func() { _ = a.Stop() })

	if _, err := a.Orchestrator(); err == nil {
		t.Fatal("expected an error for an unusable database path")
	}
}
