//go:build windows

package handoff

import "golang.org/x/sys/windows"

var procGetAsyncKeyState = windows.NewLazySystemDLL("user32.dll").NewProc("GetAsyncKeyState")

const vkEnd = 0x23

// endKeyPressed reports whether END is currently held down.
func endKeyPressed() bool {
	r, _, _ := procGetAsyncKeyState.Call(vkEnd)
	return r&0x8000 != 0
}
