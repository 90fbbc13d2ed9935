//go:build !windows
// +build !windows

package main

import (
	"errors"
	"os"
	"os/exec"
	"runtime"

	"github.com/mattn/go-isatty"
)

// spawnedEnv is set on the child so it never spawns again.
const spawnedEnv = "_ICONIC_SPAWNED"

// emulators are tried in order on Linux and the BSDs. Each entry gives the
// flag that separates the emulator's own arguments from the command.
var emulators = []struct {
	bin, sep string
}{
	{"x-terminal-emulator", "-e"},
	{"gnome-terminal", "--"},
	{"konsole", "-e"},
	{"xterm", "-e"},
}

var errNoTerminal = errors.New("no terminal emulator found")

// isDoubleClick guesses a file-manager launch from a stdin that is not a tty.
func isDoubleClick() bool {
	if os.Getenv(spawnedEnv) == "1" {
		return false
	}
	return !isatty.IsTerminal(os.Stdin.Fd())
}

// spawnTerminal reruns the executable on the review screen inside a new
// terminal window.
func spawnTerminal() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	start := func(name string, argv ...string) error {
		cmd := exec.Command(name, argv...)
		cmd.Env = append(os.Environ(), spawnedEnv+"=1")
		return cmd.Start()
	}

	if runtime.GOOS == "darwin" {
		return start("open", append([]string{"-a", "Terminal", exe, "--args"}, reviewArgs(exe)...)...)
	}
	for _, em := range emulators {
		if _, err := exec.LookPath(em.bin); err != nil {
			continue
		}
		if start(em.bin, append([]string{em.sep, exe}, reviewArgs(exe)...)...) == nil {
			return nil
		}
	}
	return errNoTerminal
}
