//go:build windows

package process

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const wmQuit = 0x0012

var procPostThreadMessageW = windows.NewLazySystemDLL("user32.dll").NewProc("PostThreadMessageW")

// requestStop posts WM_QUIT to every thread owned by the child.
func requestStop(p *Process) error {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return fmt.Errorf("snapshot threads of %s: %w", p.name, err)
	}
	defer windows.CloseHandle(snap)

	pid := uint32(p.Pid())
	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	for err = windows.Thread32First(snap, &entry); err == nil; err = windows.Thread32Next(snap, &entry) {
		if entry.OwnerProcessID != pid {
			continue
		}
		// Threads without a message queue reject the post; that is expected.
		_, _, _ = procPostThreadMessageW.Call(uintptr(entry.ThreadID), wmQuit, 0, 0)
	}
	if err != nil && !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return fmt.Errorf("walk threads of %s: %w", p.name, err)
	}
	return nil
}
