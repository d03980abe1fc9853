//go:build !windows

package progress

import "os"

// enableWindowsANSI does nothing outside Windows; terminals there already
// understand the escape sequences mpb emits.
func enableWindowsANSI(*os.File) {}
