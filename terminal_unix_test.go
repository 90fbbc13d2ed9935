//go:build !windows
// +build !windows

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDoubleClickSkipsSpawnedChild(t *testing.T) {
	t.Setenv(spawnedEnv, "1")
	assert.False(t, isDoubleClick())
}

func TestEmulatorsSeparateCommand(t *testing.T) {
	seen := map[string]bool{}
	for _, em := range emulators {
		assert.False(t, seen[em.bin], "duplicate emulator %s", em.bin)
		seen[em.bin] = true
		assert.Contains(t, []string{"-e", "--"}, em.sep, em.bin)
	}
	assert.Equal(t, "x-terminal-emulator", emulators[0].bin, "the distro default goes first")
}
