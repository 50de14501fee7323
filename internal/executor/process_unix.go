//go:build !windows

package executor

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolate 将子进程放入独立进程组，超时时整组终止，避免遗留孙进程。
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}

// reap 在解释器退出后终止整个进程组，清理代码中启动的后台子进程。
func reap(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}

func minimalEnv() []string {
	return []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"LANG=C.UTF-8",
		"HOME=/nonexistent",
	}
}
