//go:build !unix

package supervisor

import (
	"os"
	"os/exec"
)

func detach(cmd *exec.Cmd) {}

// Without process groups both signals kill the child itself.
func terminateGroup(pid int) error {
	return killGroup(pid)
}

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
