//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func interruptGroup(p *os.Process) error {
	return p.Kill()
}

func killGroup(p *os.Process) {
	_ = p.Kill()
}
