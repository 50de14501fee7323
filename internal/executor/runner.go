package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"MultiModel-Chat/internal/observability/metrics"
	"MultiModel-Chat/pkg/logger"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMemoryMB    = 512
	defaultFileSizeMB  = 16
	defaultOpenFiles   = 64
	defaultMaxOutputKB = 256
)

// Runner 执行一段代码并返回其标准输出。失败与超时都编码为返回文本，不会以错误形式返回。
type Runner interface {
	Run(ctx context.Context, code string, timeout time.Duration) string
}

// Config 描述 Python 执行器的运行参数。
type Config struct {
	PythonExecutable string
	// WorkDir 是每次执行的临时目录的父目录，为空时使用系统临时目录。
	WorkDir        string
	DefaultTimeout time.Duration
	// CPUSeconds 为 0 时根据超时时间推导。
	CPUSeconds  int
	MemoryMB    int
	FileSizeMB  int
	OpenFiles   int
	MaxOutputKB int
	Logger      *slog.Logger
}

// PythonRunner 在独立的 Python 子进程中执行代码。
type PythonRunner struct {
	pythonExec     string
	workDir        string
	defaultTimeout time.Duration
	cpuSeconds     int
	memoryMB       int
	fileSizeMB     int
	openFiles      int
	maxOutput      int
	logger         *slog.Logger
}

// NewPythonRunner 创建执行器，未填写的参数使用默认值。
func NewPythonRunner(cfg Config) *PythonRunner {
	r := &PythonRunner{
		pythonExec:     strings.TrimSpace(cfg.PythonExecutable),
		workDir:        cfg.WorkDir,
		defaultTimeout: cfg.DefaultTimeout,
		cpuSeconds:     cfg.CPUSeconds,
		memoryMB:       cfg.MemoryMB,
		fileSizeMB:     cfg.FileSizeMB,
		openFiles:      cfg.OpenFiles,
		maxOutput:      cfg.MaxOutputKB * 1024,
		logger:         cfg.Logger,
	}
	if r.pythonExec == "" {
		r.pythonExec = "python3"
	}
	if r.defaultTimeout <= 0 {
		r.defaultTimeout = defaultTimeout
	}
	if r.memoryMB <= 0 {
		r.memoryMB = defaultMemoryMB
	}
	if r.fileSizeMB <= 0 {
		r.fileSizeMB = defaultFileSizeMB
	}
	if r.openFiles <= 0 {
		r.openFiles = defaultOpenFiles
	}
	if r.maxOutput <= 0 {
		r.maxOutput = defaultMaxOutputKB * 1024
	}
	if r.logger == nil {
		r.logger = logger.Named("executor")
	}
	return r
}

// Available 判断解释器是否可以在 PATH 中找到。
func (r *PythonRunner) Available() bool {
	_, err := exec.LookPath(r.pythonExec)
	return err == nil
}

// Run 执行代码。timeout 小于等于 0 时使用默认超时。
func (r *PythonRunner) Run(ctx context.Context, code string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	start := time.Now()
	output, outcome := r.run(ctx, code, timeout)
	metrics.ObserveCodeExecution(outcome, time.Since(start))
	r.logger.Info("code executed",
		"outcome", outcome,
		"timeout", timeout,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return output
}

func (r *PythonRunner) run(ctx context.Context, code string, timeout time.Duration) (string, string) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir, err := os.MkdirTemp(r.workDir, "run-code-*")
	if err != nil {
		return executionError(fmt.Sprintf("create working directory: %v", err)), "error"
	}
	defer os.RemoveAll(dir)

	cmd := exec.CommandContext(runCtx, r.pythonExec, "-I", "-c", r.bootstrap(timeout))
	cmd.Dir = dir
	cmd.Env = minimalEnv()
	cmd.Stdin = strings.NewReader(code)
	stdout := &cappedBuffer{limit: r.maxOutput}
	stderr := &cappedBuffer{limit: r.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	isolate(cmd)
	cmd.WaitDelay = time.Second

	err = cmd.Run()
	reap(cmd)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("Error: Code execution timed out after %s seconds", formatSeconds(timeout)), "timeout"
	}
	// 后台子进程持有输出管道时解释器本身已正常退出，已捕获的输出仍然有效。
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		err = nil
	}
	if err != nil {
		trace := strings.TrimRight(stderr.String(), "\n")
		if trace == "" {
			trace = err.Error()
		}
		return executionError(trace), "error"
	}
	return stdout.String(), "ok"
}

// bootstrap 在执行用户代码前设置资源限制，并在全新的命名空间中执行标准输入中的代码。
func (r *PythonRunner) bootstrap(timeout time.Duration) string {
	cpu := r.cpuSeconds
	if cpu <= 0 {
		cpu = int(math.Ceil(timeout.Seconds())) + 1
	}
	return fmt.Sprintf(bootstrapTemplate,
		cpu,
		r.memoryMB*1024*1024,
		r.fileSizeMB*1024*1024,
		r.openFiles,
	)
}

const bootstrapTemplate = `import sys
try:
    import resource
except ImportError:
    resource = None

def _limit(name, value):
    kind = getattr(resource, name, None)
    if kind is None or value <= 0:
        return
    try:
        resource.setrlimit(kind, (value, value))
    except (ValueError, OSError):
        pass

_limit("RLIMIT_CPU", %d)
_limit("RLIMIT_AS", %d)
_limit("RLIMIT_FSIZE", %d)
_limit("RLIMIT_NOFILE", %d)
_source = sys.stdin.read()
exec(compile(_source, "<run-code>", "exec"), {"__name__": "__main__"})
`

func executionError(trace string) string {
	return "Error executing code:\n" + trace
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// cappedBuffer 最多保留 limit 字节，超出部分丢弃但不报错，避免子进程因管道写失败而退出。
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

var _ Runner = (*PythonRunner)(nil)
