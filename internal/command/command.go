package command

import (
	"errors"
	"fmt"
)

// Mode selects which uninstall command template is sent to the fleet.
type Mode string

const (
	// ModeDistributor removes the package through the host's package
	// manager, for Linux instances.
	ModeDistributor Mode = "distributor"
	// ModePowerShell removes the package with a Windows shell command.
	ModePowerShell Mode = "powershell"
)

// ErrUnsupportedMode is returned for any mode outside the two templates.
// It is an operator input error and is checked once at startup, never
// per row.
var ErrUnsupportedMode = errors.New("unsupported mode")

// SSM run documents, one per shell family.
const (
	docShell      = "AWS-RunShellScript"
	docPowerShell = "AWS-RunPowerShellScript"
)

// Spec is the remote command to execute: the SSM document matching the
// shell family and the command lines with the package name substituted.
type Spec struct {
	Document string
	Lines    []string
}

// ParseMode validates an operator-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDistributor, ModePowerShell:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnsupportedMode, s, ModeDistributor, ModePowerShell)
}

// ForPackage returns the uninstall command for the given mode and
// package name. The mapping is fixed; only the package name varies.
func ForPackage(mode Mode, pkg string) (Spec, error) {
	switch mode {
	case ModeDistributor:
		return Spec{
			Document: docShell,
			Lines:    []string{fmt.Sprintf("sudo yum -y remove '%s'", pkg)},
		}, nil
	case ModePowerShell:
		return Spec{
			Document: docPowerShell,
			Lines:    []string{fmt.Sprintf("Uninstall-Package -Name '%s' -Force -ErrorAction Stop", pkg)},
		}, nil
	}
	return Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}
