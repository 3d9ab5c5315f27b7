//go:build unix

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach places the child in its own process group so the whole group can be
// signalled at once.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(pid int) error {
	return signalGroup(pid, syscall.SIGTERM)
}

func killGroup(pid int) error {
	return signalGroup(pid, syscall.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		// Already gone or not ours; fall back to the process itself.
		return syscall.Kill(pid, sig)
	}
	return syscall.Kill(-pgid, sig)
}
