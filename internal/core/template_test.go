package core

import (
	"testing"
	"time"
)

func TestExecuteTemplate(t *testing.T) {
	type record struct {
		ID     string
		Status string
		Files  []string
	}
	data := []record{
		{ID: "app-1", Status: "COMPLETED", Files: []string{"a", "b"}},
		{ID: "app-2", Status: "FAILED"},
	}

	got, err := ExecuteTemplate(`{{range .}}{{.ID}}:{{.Status | lower}}:{{len .Files}} {{end}}`, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "app-1:completed:2 app-2:failed:0 "; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got, err = ExecuteTemplate(`{{ .Missing | default "none" }}`, map[string]interface{}{"Missing": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "none" {
		t.Errorf("got %q, want none", got)
	}

	if _, err := ExecuteTemplate(`{{ .Broken `, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestExecuteTemplate_RecordHelpers(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	data := struct {
		ApplicationID string
		StartedAt     time.Time
		CompletedAt   *time.Time
		Pending       *time.Time
	}{"0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0", start, &end, nil}

	got, err := ExecuteTemplate(`{{shortID .ApplicationID}} {{elapsed .StartedAt .CompletedAt}}|{{elapsed .StartedAt .Pending}}`, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "0f1e2d3c 1.5s|"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := ExecuteTemplate(`{{ .Absent }}`, map[string]interface{}{}); err == nil {
		t.Error("expected error for missing map key")
	}
}
