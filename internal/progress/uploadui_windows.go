//go:build windows

package progress

import (
	"os"

	"golang.org/x/sys/windows"
)

// enableVirtualTerminalProcessing is ENABLE_VIRTUAL_TERMINAL_PROCESSING.
const enableVirtualTerminalProcessing = 0x0004

// enableWindowsANSI turns on escape sequence handling for the console behind f
// so item bars redraw in place instead of printing raw control codes.
func enableWindowsANSI(f *os.File) {
	handle := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(handle, &mode); err != nil {
		// Not a console (redirected output)
		return
	}
	_ = windows.SetConsoleMode(handle, mode|enableVirtualTerminalProcessing)
}
