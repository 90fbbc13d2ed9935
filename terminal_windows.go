//go:build windows
// +build windows

package main

import (
	"os"
	"os/exec"
	"syscall"
	"unsafe"
)

// spawnedEnv is set on the child so it never spawns again.
const spawnedEnv = "_ICONIC_SPAWNED"

var getConsoleProcessList = syscall.NewLazyDLL("kernel32.dll").NewProc("GetConsoleProcessList")

// isDoubleClick reports a fresh console owned by this process alone. A
// shell launch shares its console with at least the shell.
func isDoubleClick() bool {
	if os.Getenv(spawnedEnv) == "1" {
		return false
	}
	var pids [2]uint32
	n, _, _ := getConsoleProcessList.Call(uintptr(unsafe.Pointer(&pids[0])), uintptr(len(pids)))
	return n == 1
}

// spawnTerminal reruns the executable on the review screen in a new console.
func spawnTerminal() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	argv := append([]string{"/c", "start", "", exe}, reviewArgs(exe)...)
	cmd := exec.Command("cmd", argv...)
	cmd.Env = append(os.Environ(), spawnedEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_CONSOLE}
	return cmd.Start()
}
