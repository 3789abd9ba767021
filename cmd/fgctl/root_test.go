package main

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/backend"
)

const deferred = "testdata/deferred.hcl"

// execute runs fgctl with args and returns everything written to stdout and
// stderr.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// row returns the whitespace-separated fields of the plan row for pass.
func row(t *testing.T, out, pass string) []string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == pass {
			return fields
		}
	}
	t.Fatalf("no row for %q in:\n%s", pass, out)
	return nil
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		cullQueue  string
		cullSignal bool
	}{
		{"async compute", nil, "async-compute", true},
		{"async compute disabled", []string{"--config", "testdata/framegraph.yaml"}, "primary", false},
		{"noop backend", []string{"--backend", backend.BackendNoop}, "async-compute", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"plan", deferred}, tt.args...)...)
			if err != nil {
				t.Fatalf("plan error = %v\n%s", err, out)
			}
			if !strings.HasPrefix(out, "PASS") {
				t.Errorf("output does not start with the header:\n%s", out)
			}
			cull := row(t, out, "cull")
			if cull[2] != tt.cullQueue {
				t.Errorf("cull queue = %q, want %q", cull[2], tt.cullQueue)
			}
			if got := cull[4] != "-"; got != tt.cullSignal {
				t.Errorf("cull signal = %q, want signalling %v", cull[4], tt.cullSignal)
			}
			if overlay := row(t, out, "debug-overlay"); overlay[2] != "culled" {
				t.Errorf("debug-overlay row = %v, want culled", overlay)
			}
			if lighting := row(t, out, "lighting"); lighting[2] != "primary" {
				t.Errorf("lighting row = %v, want primary queue", lighting)
			}
		})
	}
}

func TestPlanBarriers(t *testing.T) {
	out, err := execute(t, "plan", deferred, "--barriers")
	if err != nil {
		t.Fatalf("plan error = %v", err)
	}
	for _, want := range []string{"\nlighting:\n", "backbuffer[all] Present -> RenderTarget"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\ndebug-overlay:\n") {
		t.Errorf("culled pass listed with barriers:\n%s", out)
	}
}

func TestPlanStats(t *testing.T) {
	out, err := execute(t, "plan", deferred, "--frames", "3", "--stats")
	if err != nil {
		t.Fatalf("plan error = %v", err)
	}
	for _, frame := range []string{"frame 1: Frame[", "frame 2: Frame[", "frame 3: Frame["} {
		if !strings.Contains(out, frame) {
			t.Errorf("output missing %q:\n%s", frame, out)
		}
	}
	if n := strings.Count(out, "PASS"); n != 1 {
		t.Errorf("plan table printed %d times, want once", n)
	}
}

func TestDot(t *testing.T) {
	out, err := execute(t, "dot", deferred)
	if err != nil {
		t.Fatalf("dot error = %v", err)
	}
	if !strings.HasPrefix(out, "digraph") || !strings.Contains(out, "gbuffer") {
		t.Errorf("unexpected DOT output:\n%s", out)
	}

	path := filepath.Join(t.TempDir(), "frame.dot")
	if out, err := execute(t, "dot", deferred, "-o", path); err != nil || out != "" {
		t.Fatalf("dot -o = %q, %v", out, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "lighting") {
		t.Errorf("DOT file missing the lighting pass:\n%s", data)
	}
}

func TestTimeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heaps.png")
	if _, err := execute(t, "timeline", deferred, "-o", path, "--scale", "2"); err != nil {
		t.Fatalf("timeline error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	// Five pass columns at the default width, doubled.
	if b := img.Bounds(); b.Dx() < 5*2*56 || b.Dy() == 0 {
		t.Errorf("image bounds = %v", b)
	}
}

func TestMetrics(t *testing.T) {
	out, err := execute(t, "metrics", deferred, "--frames", "2", "--namespace", "engine", "--backend", backend.BackendNoop)
	if err != nil {
		t.Fatalf("metrics error = %v", err)
	}
	for _, want := range []string{
		"engine_frames_total 2",
		`engine_passes{state="culled"} 1`,
		"engine_compile_duration_seconds_count 2",
		`engine_device_memory_bytes{kind="budget"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestBackends(t *testing.T) {
	out, err := execute(t, "backends")
	if err != nil {
		t.Fatalf("backends error = %v", err)
	}
	for _, name := range []string{backend.BackendNoop, backend.BackendRecord} {
		if !strings.Contains(out, name+"\n") {
			t.Errorf("backends output missing %q:\n%s", name, out)
		}
	}
}

func TestVerbose(t *testing.T) {
	t.Cleanup(func() { framegraph.SetLogger(nil) })

	out, err := execute(t, "plan", deferred, "--verbose")
	if err != nil {
		t.Fatalf("plan error = %v", err)
	}
	if !strings.Contains(out, "framegraph: executed") {
		t.Errorf("verbose output missing execute summary:\n%s", out)
	}
}

func TestErrors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("heap_alignment: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		target  error
		message string
	}{
		{"missing description", []string{"plan"}, nil, "accepts 1 arg"},
		{"zero frames", []string{"plan", deferred, "--frames", "0"}, errFrames, ""},
		{"unknown backend", []string{"plan", deferred, "--backend", "vulkan"}, backend.ErrBackendNotAvailable, ""},
		{"missing file", []string{"dot", "testdata/missing.hcl"}, os.ErrNotExist, ""},
		{"invalid config", []string{"plan", deferred, "--config", bad}, nil, "heap_alignment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want wrapping %v", err, tt.target)
			}
			if tt.message != "" && !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error = %v, want mention of %q", err, tt.message)
			}
		})
	}
}
