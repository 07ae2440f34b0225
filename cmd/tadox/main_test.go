package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Agrid-Dev/tadox/cmd/app"
	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/coordinator"
	"github.com/Agrid-Dev/tadox/internal/store"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

func TestPickHome(t *testing.T) {
	homes := []api.HomeRef{{ID: 1, Name: "Flat"}, {ID: 2, Name: "Cottage"}}

	tests := []struct {
		name    string
		homes   []api.HomeRef
		want    int
		wantID  int
		wantErr bool
	}{
		{"first by default", homes, 0, 1, false},
		{"explicit", homes, 2, 2, false},
		{"unknown", homes, 3, 0, true},
		{"no homes", nil, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickHome(tt.homes, tt.want)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Fatalf("got home %d want %d", got.ID, tt.wantID)
			}
		})
	}
}

func TestPersistState(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	reset := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	persistState(st, slog.Default())(coordinator.State{
		API: tado.APIStats{CallsToday: 42, ResetTime: reset, HasAutoAssist: true},
		RoomDefaults: map[int]tado.RoomControlDefaults{
			3: {Termination: tado.TerminationTimer, DurationMinutes: 90},
		},
	})

	got := st.State()
	if got.APICallsToday != 42 || !got.APIResetTime.Equal(reset) || !got.HasAutoAssist {
		t.Fatalf("budget not persisted: %+v", got)
	}
	if d := got.ControlDefaults()[3]; d.Termination != tado.TerminationTimer || d.DurationMinutes != 90 {
		t.Fatalf("room defaults not persisted: %+v", got.RoomDefaults)
	}
}

func TestRun_RequiresHome(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "state.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cfg := app.Default()
	e := &env{cfg: cfg, log: slog.Default(), store: st, client: api.New(cfg.ClientConfig(slog.Default()))}

	err = run(t.Context(), e)
	if err == nil || !strings.Contains(err.Error(), "no home selected") {
		t.Fatalf("expected missing home error, got %v", err)
	}
}

func TestSetup_RestoresPersistedToken(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.yaml")
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	st, err := store.Open(statePath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Update(func(s *store.State) {
		s.AccessToken = "access"
		s.RefreshToken = "refresh"
		s.TokenExpiry = expiry
		s.APICallsToday = 17
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("state_file: "+statePath+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	prev := configPath
	configPath = cfgPath
	t.Cleanup(func() { configPath = prev })

	e, err := setup()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	tok := e.client.Token()
	if tok.AccessToken != "access" || tok.RefreshToken != "refresh" || !tok.Expiry.Equal(expiry) {
		t.Fatalf("token not restored: %+v", tok)
	}
	if got := e.client.Stats().CallsToday; got != 17 {
		t.Fatalf("calls today=%d want 17", got)
	}
}
