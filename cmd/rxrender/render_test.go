package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleInput = `{
  "prescription": {
    "id": "rx-1",
    "patientId": "p-1",
    "doctorId": "d-1",
    "createdAt": 1772620200000,
    "medicines": [{"name": "Paracetamol", "dosage": "500mg", "duration": "5 days"}],
    "notes": "Rest"
  },
  "patient": {"id": "p-1", "name": "Asha Rao", "age": 34},
  "doctor": {"id": "d-1", "name": "Meera Iyer"}
}`

func TestRenderCommandSavesFile(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		ext     string
		summary string
	}{
		{name: "pdf", format: "pdf", ext: ".pdf", summary: "1 page(s)"},
		{name: "jpeg", format: "jpg", ext: ".jpg", summary: "rendered jpeg"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			var stdout, stderr bytes.Buffer
			root := newRootCommand()
			root.SetIn(strings.NewReader(sampleInput))
			root.SetOut(&stdout)
			root.SetErr(&stderr)
			root.SetArgs([]string{"render", "--format", tt.format, "--out", dir, "--tz", "UTC"})

			if err := root.Execute(); err != nil {
				t.Fatalf("execute: %v (stderr %s)", err, stderr.String())
			}
			path := strings.TrimSpace(stdout.String())
			if filepath.Dir(path) != dir {
				t.Fatalf("saved to %q, want inside %q", path, dir)
			}
			base := filepath.Base(path)
			if !strings.HasPrefix(base, "RX_Asha_Rao_") || !strings.HasSuffix(base, tt.ext) {
				t.Fatalf("file name = %q", base)
			}
			if info, err := os.Stat(path); err != nil || info.Size() == 0 {
				t.Fatalf("saved file: %v", err)
			}
			if !strings.Contains(stderr.String(), "Prescription saved as "+base) {
				t.Fatalf("stderr = %q", stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.summary) {
				t.Fatalf("summary missing %q: %q", tt.summary, stderr.String())
			}
		})
	}
}

func TestRenderCommandRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		args []string
	}{
		{name: "unknown field", in: `{"prescripton": {}}`, args: []string{"render", "--no-save"}},
		{name: "bad format", in: sampleInput, args: []string{"render", "--format", "png", "--no-save"}},
		{name: "missing file", in: "", args: []string{"render", "--input", "does-not-exist.json"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCommand()
			root.SetIn(strings.NewReader(tt.in))
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)
			if err := root.Execute(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	var stdout bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--sub", "doc-1", "--role", "doctor"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(stdout.String()), "."); len(parts) != 3 {
		t.Fatalf("token = %q", stdout.String())
	}
}
