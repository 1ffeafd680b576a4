// Package output delivers recognized text to the focused application and the
// system clipboard.
package output

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/atotto/clipboard"
)

// Clipboard copies transcript text to the system clipboard, either through
// the platform clipboard directly or via a user-configured command.
type Clipboard struct {
	argv []string
}

// NewClipboard builds a clipboard writer. A non-empty argv overrides the
// platform clipboard; text is piped to the command's stdin.
func NewClipboard(argv []string) *Clipboard {
	return &Clipboard{argv: argv}
}

// Copy writes text to the clipboard. Empty text is a no-op so a cancelled
// session with no transcript never clobbers existing clipboard contents.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	if len(c.argv) > 0 {
		cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := runCommandWithInput(cmdCtx, c.argv, text); err != nil {
			return fmt.Errorf("set clipboard: %w", err)
		}
		return nil
	}

	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
