//go:build !unix

package providers

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
