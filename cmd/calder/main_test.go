package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const concurrentGraph = `
instructions:
  - id: a1
    op: allocate
    dtype: int8
    dims: [64]
  - id: a2
    op: allocate
    dtype: int8
    dims: [96]
  - id: t
    op: add
    dtype: int8
    dims: [64]
    inputs: [a1, a1, a2]
`

func writeTempGraph(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestStats(t *testing.T) {
	path := writeTempGraph(t, concurrentGraph)
	out, _, err := execute(t, "--stats", path)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"allocations: 2", "scratch slots: 2", "scratch bytes: 160"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDumpColored(t *testing.T) {
	path := writeTempGraph(t, concurrentGraph)
	out, _, err := execute(t, "--dump-colored", path)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "load[offset=0]") {
		t.Errorf("dump missing load at offset 0:\n%s", out)
	}
	if !strings.Contains(out, "param[scratch]") {
		t.Errorf("dump missing scratch parameter:\n%s", out)
	}
	if strings.Contains(out, "allocate") {
		t.Errorf("dump still contains allocations:\n%s", out)
	}
}

func TestOutputFile(t *testing.T) {
	path := writeTempGraph(t, concurrentGraph)
	outPath := filepath.Join(t.TempDir(), "colored.yaml")
	_, _, err := execute(t, "-o", outPath, path)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "scratch") {
		t.Errorf("written graph missing scratch parameter:\n%s", data)
	}
}

func TestCustomAllocOp(t *testing.T) {
	// With a non-matching alloc op name, nothing is rewritten and the
	// scratch buffer is empty.
	path := writeTempGraph(t, concurrentGraph)
	out, _, err := execute(t, "--alloc-op", "hip_allocate", "--stats", path)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "scratch bytes: 0") {
		t.Errorf("output:\n%s", out)
	}
}

func TestErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, errOut, err := execute(t, filepath.Join(t.TempDir(), "absent.yaml"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
		if !strings.Contains(errOut, "calder:") {
			t.Errorf("stderr = %q", errOut)
		}
	})

	t.Run("malformed graph", func(t *testing.T) {
		path := writeTempGraph(t, "instructions:\n  - id: a\n    op: frobnicate\n")
		_, _, err := execute(t, path)
		if err == nil {
			t.Fatal("expected error for unknown op")
		}
	})

	t.Run("no arguments", func(t *testing.T) {
		var out, errOut bytes.Buffer
		cmd := newRootCmd(&out, &errOut)
		cmd.SetArgs(nil)
		if err := cmd.Execute(); err == nil {
			t.Fatal("expected usage error")
		}
	})
}
