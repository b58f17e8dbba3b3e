package browser

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// killProcessTree kills a process and all its children.
// proc.Kill alone only signals the parent; Chrome's GPU and renderer helpers
// get reparented and keep running.
func killProcessTree(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Pid)).Run()
	}
	// chromedp starts Chrome with Setpgid so the group id equals the pid.
	if err := exec.Command("kill", "-9", "--", "-"+strconv.Itoa(proc.Pid)).Run(); err != nil {
		return proc.Kill()
	}
	return nil
}
