package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T, cfg Config) *PythonRunner {
	t.Helper()
	runner := NewPythonRunner(cfg)
	if !runner.Available() {
		t.Skip("python3 not available on PATH")
	}
	return runner
}

func TestRunCapturesStdout(t *testing.T) {
	runner := newTestRunner(t, Config{})

	out := runner.Run(context.Background(), "print(2+2)", 10*time.Second)
	if strings.TrimSpace(out) != "4" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunUsesFreshNamespace(t *testing.T) {
	runner := newTestRunner(t, Config{})

	out := runner.Run(context.Background(), "print(sorted(k for k in globals() if not k.startswith('__')))", 10*time.Second)
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty namespace, got %q", out)
	}
}

func TestRunReportsTraceback(t *testing.T) {
	runner := newTestRunner(t, Config{})

	out := runner.Run(context.Background(), "raise ValueError('boom')", 10*time.Second)
	if !strings.HasPrefix(out, "Error executing code:\n") {
		t.Fatalf("unexpected prefix: %q", out)
	}
	if !strings.Contains(out, "ValueError: boom") || !strings.Contains(out, "Traceback") {
		t.Fatalf("expected traceback, got %q", out)
	}
}

func TestRunTimeout(t *testing.T) {
	runner := newTestRunner(t, Config{})

	start := time.Now()
	out := runner.Run(context.Background(), "import time\ntime.sleep(30)", 500*time.Millisecond)
	if out != "Error: Code execution timed out after 0.5 seconds" {
		t.Fatalf("unexpected output: %q", out)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestRunDoesNotInheritEnvironment(t *testing.T) {
	t.Setenv("MULTICHAT_SECRET_FOR_TEST", "leak")
	runner := newTestRunner(t, Config{})

	out := runner.Run(context.Background(), "import os\nprint(os.environ.get('MULTICHAT_SECRET_FOR_TEST', 'absent'))", 10*time.Second)
	if strings.TrimSpace(out) != "absent" {
		t.Fatalf("environment leaked into child: %q", out)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	runner := newTestRunner(t, Config{MaxOutputKB: 1})

	out := runner.Run(context.Background(), "print('x' * 5000)", 10*time.Second)
	if !strings.HasSuffix(out, "[output truncated]") {
		t.Fatalf("expected truncation marker, got %d bytes", len(out))
	}
	if len(out) > 1024+len("\n[output truncated]") {
		t.Fatalf("output not capped: %d bytes", len(out))
	}
}

func TestRunMissingInterpreter(t *testing.T) {
	runner := NewPythonRunner(Config{PythonExecutable: "definitely-not-a-python-binary"})

	out := runner.Run(context.Background(), "print(1)", time.Second)
	if !strings.HasPrefix(out, "Error executing code:\n") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCappedBuffer(t *testing.T) {
	buf := &cappedBuffer{limit: 4}
	n, err := buf.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("write should report full length: n=%d err=%v", n, err)
	}
	if buf.String() != "abcd\n[output truncated]" {
		t.Fatalf("unexpected content: %q", buf.String())
	}
}
