// Package doctor runs runtime readiness diagnostics for config, environment, audio, and the recognizer.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/maree217/aqua-voice/internal/audio"
	"github.com/maree217/aqua-voice/internal/config"
	"github.com/maree217/aqua-voice/internal/deepgram"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkAPIKey(cfg.Config.Deepgram))
	checks = append(checks, checkRecognizerReachable())
	checks = append(checks, checkDisplaySession())

	if cfg.Config.Clipboard.IsSet() {
		checks = append(checks, checkCommand(cfg.Config.Clipboard.Argv, "clipboard_cmd"))
	}

	checks = append(checks, checkAudioSelection(cfg.Config))

	return Report{Checks: checks}
}

// checkAPIKey verifies the configured environment variable holds a key
// without printing the key itself.
func checkAPIKey(cfg config.DeepgramConfig) Check {
	if _, err := cfg.ResolveAPIKey(); err != nil {
		return Check{Name: "deepgram.api_key", Pass: false, Message: err.Error()}
	}
	return Check{Name: "deepgram.api_key", Pass: true, Message: fmt.Sprintf("%s is set", cfg.APIKeyEnv)}
}

// checkRecognizerReachable probes the Deepgram API host. Any HTTP response
// counts; auth is exercised at session start, not here.
func checkRecognizerReachable() Check {
	client := http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(deepgram.DefaultBaseURL + "/projects")
	if err != nil {
		return Check{Name: "deepgram.reachable", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	resp.Body.Close()
	return Check{Name: "deepgram.reachable", Pass: true, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, deepgram.DefaultBaseURL)}
}

// checkDisplaySession verifies a display session exists for synthetic
// keystrokes and global key capture.
func checkDisplaySession() Check {
	if runtime.GOOS != "linux" {
		return Check{Name: "display", Pass: true, Message: "not applicable on " + runtime.GOOS}
	}
	if strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY")) != "" {
		return Check{Name: "display", Pass: true, Message: "wayland session detected"}
	}
	if strings.TrimSpace(os.Getenv("DISPLAY")) != "" {
		return Check{Name: "display", Pass: true, Message: "X11 session detected"}
	}
	return Check{Name: "display", Pass: false, Message: "no DISPLAY or WAYLAND_DISPLAY; typing and hotkeys will not work"}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
