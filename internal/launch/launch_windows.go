//go:build windows

package launch

import (
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	getConsoleWindow = kernel32.NewProc("GetConsoleWindow")
)

// FromDesktop reports whether the process was started by Explorer or without
// a console, rather than from a shell.
func FromDesktop() bool {
	hwnd, _, _ := getConsoleWindow.Call()
	parent := strings.ToLower(parentName())
	slog.Debug("launch parent", "parent", parent, "console", hwnd != 0)
	if hwnd == 0 {
		return true
	}
	if isShell(parent) {
		return false
	}
	return parent == "explorer.exe"
}

func parentName() string {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(snap)

	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))

	self := uint32(os.Getpid())
	var ppid uint32
	for err = windows.Process32First(snap, &pe); err == nil; err = windows.Process32Next(snap, &pe) {
		if pe.ProcessID == self {
			ppid = pe.ParentProcessID
			break
		}
	}
	if ppid == 0 {
		return ""
	}
	for err = windows.Process32First(snap, &pe); err == nil; err = windows.Process32Next(snap, &pe) {
		if pe.ProcessID == ppid {
			return windows.UTF16ToString(pe.ExeFile[:])
		}
	}
	return ""
}
