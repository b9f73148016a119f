//go:build windows

package ui

import (
	"os"
	"sync"

	"golang.org/x/sys/windows"
)

var ansiOnce sync.Once

// enableANSI switches the Windows console into VT mode so colours, the
// progress bar and the toast footer render instead of printing raw escapes.
func enableANSI() {
	ansiOnce.Do(func() {
		out := uint32(windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING | windows.ENABLE_PROCESSED_OUTPUT)
		in := uint32(windows.ENABLE_VIRTUAL_TERMINAL_INPUT | windows.ENABLE_PROCESSED_INPUT)
		for file, flags := range map[*os.File]uint32{os.Stdout: out, os.Stderr: out, os.Stdin: in} {
			addConsoleMode(file, flags)
		}
	})
}

func addConsoleMode(file *os.File, flags uint32) {
	if file == nil {
		return
	}
	handle := windows.Handle(file.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err != nil {
		return
	}
	_ = windows.SetConsoleMode(handle, mode|flags)
}
