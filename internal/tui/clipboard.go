package tui

import (
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
)

// copyToClipboard writes s to the system clipboard. Wayland has no support
// in the clipboard package, so wl-copy is tried when it fails.
func copyToClipboard(s string) error {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	err := clipboard.WriteAll(s)
	if err == nil {
		return nil
	}
	if _, lookErr := exec.LookPath("wl-copy"); lookErr != nil {
		return err
	}
	cmd := exec.Command("wl-copy")
	cmd.Stdin = strings.NewReader(s)
	return cmd.Run()
}
