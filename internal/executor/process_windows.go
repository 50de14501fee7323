//go:build windows

package executor

import (
	"os"
	"os/exec"
)

func isolate(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}

func reap(*exec.Cmd) {}

func minimalEnv() []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"SystemRoot=" + os.Getenv("SystemRoot"),
	}
}
