//go:build windows

package inject

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx     = kernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx      = kernel32.NewProc("VirtualFreeEx")
	procCreateRemoteThread = kernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread  = kernel32.NewProc("GetExitCodeThread")
	procLoadLibraryW       = kernel32.NewProc("LoadLibraryW")
)

const waitStep = 250 // ms

// Win32Spawner starts processes with CreateProcess.
type Win32Spawner struct{}

// NewSpawner returns the platform spawner.
func NewSpawner() (Spawner, error) {
	return Win32Spawner{}, nil
}

// StartSuspended creates path with its primary thread suspended. The
// working directory is the executable's directory.
func (Win32Spawner) StartSuspended(path string, env []string) (Process, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	cmdLine, err := windows.UTF16PtrFromString(windows.EscapeArg(abs))
	if err != nil {
		return nil, fmt.Errorf("UTF16PtrFromString: %w", err)
	}
	dir, err := windows.UTF16PtrFromString(filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("UTF16PtrFromString dir: %w", err)
	}
	block := environmentBlock(env)

	si := windows.StartupInfo{Cb: uint32(unsafe.Sizeof(windows.StartupInfo{}))}
	var pi windows.ProcessInformation

	err = windows.CreateProcess(
		nil,
		cmdLine,
		nil,
		nil,
		false,
		windows.CREATE_SUSPENDED|windows.CREATE_UNICODE_ENVIRONMENT,
		&block[0],
		dir,
		&si,
		&pi,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateProcess: %w", err)
	}

	return &win32Process{
		process: pi.Process,
		thread:  pi.Thread,
		pid:     int(pi.ProcessId),
	}, nil
}

// environmentBlock encodes env as a double-NUL-terminated UTF-16 block.
func environmentBlock(env []string) []uint16 {
	var block []uint16
	for _, kv := range env {
		block = append(block, utf16.Encode([]rune(kv))...)
		block = append(block, 0)
	}
	if len(block) == 0 {
		block = append(block, 0)
	}
	return append(block, 0)
}

type win32Process struct {
	process windows.Handle
	thread  windows.Handle
	pid     int
}

func (p *win32Process) PID() int { return p.pid }

func (p *win32Process) Resume() error {
	if _, err := windows.ResumeThread(p.thread); err != nil {
		return fmt.Errorf("ResumeThread: %w", err)
	}
	return nil
}

func (p *win32Process) Terminate(exitCode uint32) error {
	if err := windows.TerminateProcess(p.process, exitCode); err != nil {
		return fmt.Errorf("TerminateProcess: %w", err)
	}
	return nil
}

func (p *win32Process) Wait(ctx context.Context) (uint32, error) {
	for {
		ev, err := windows.WaitForSingleObject(p.process, waitStep)
		if err != nil {
			return 0, fmt.Errorf("WaitForSingleObject: %w", err)
		}
		if ev == windows.WAIT_OBJECT_0 {
			break
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	var code uint32
	if err := windows.GetExitCodeProcess(p.process, &code); err != nil {
		return 0, fmt.Errorf("GetExitCodeProcess: %w", err)
	}
	return code, nil
}

func (p *win32Process) Close() error {
	windows.CloseHandle(p.thread)
	return windows.CloseHandle(p.process)
}

// RemoteThreadLoader loads modules by running LoadLibraryW on a thread
// created in the target.
type RemoteThreadLoader struct{}

// NewLoader returns the platform loader.
func NewLoader() (Loader, error) {
	if err := procLoadLibraryW.Find(); err != nil {
		return nil, err
	}
	return RemoteThreadLoader{}, nil
}

func (RemoteThreadLoader) Inject(proc Process, modulePath string) error {
	p, ok := proc.(*win32Process)
	if !ok {
		return fmt.Errorf("unsupported process type %T", proc)
	}

	// LoadLibraryW's address is only valid in a process of the same bitness
	if err := sameBitness(p.process); err != nil {
		return err
	}

	path, err := windows.UTF16FromString(modulePath)
	if err != nil {
		return fmt.Errorf("UTF16FromString: %w", err)
	}
	size := uintptr(len(path) * 2)

	remote, _, callErr := procVirtualAllocEx.Call(
		uintptr(p.process),
		0,
		size,
		windows.MEM_COMMIT|windows.MEM_RESERVE,
		windows.PAGE_READWRITE,
	)
	if remote == 0 {
		return fmt.Errorf("VirtualAllocEx: %w", callErr)
	}
	defer procVirtualFreeEx.Call(uintptr(p.process), remote, 0, windows.MEM_RELEASE)

	if err := windows.WriteProcessMemory(p.process, remote, (*byte)(unsafe.Pointer(&path[0])), size, nil); err != nil {
		return fmt.Errorf("WriteProcessMemory: %w", err)
	}

	th, _, callErr := procCreateRemoteThread.Call(
		uintptr(p.process),
		0,
		0,
		procLoadLibraryW.Addr(),
		remote,
		0,
		0,
	)
	if th == 0 {
		return fmt.Errorf("CreateRemoteThread: %w", callErr)
	}
	thread := windows.Handle(th)
	defer windows.CloseHandle(thread)

	if _, err := windows.WaitForSingleObject(thread, windows.INFINITE); err != nil {
		return fmt.Errorf("WaitForSingleObject: %w", err)
	}

	// The exit code is the low 32 bits of the HMODULE. A 64-bit module can
	// load at an address whose low half is zero, so a zero code is only
	// trusted once the module list agrees.
	var code uint32
	if r, _, callErr := procGetExitCodeThread.Call(uintptr(thread), uintptr(unsafe.Pointer(&code))); r == 0 {
		return fmt.Errorf("GetExitCodeThread: %w", callErr)
	}
	if code != 0 {
		return nil
	}
	loaded, err := moduleList(uint32(p.pid))
	if err != nil {
		return fmt.Errorf("LoadLibraryW returned NULL for %s and the module list is unavailable: %w", modulePath, err)
	}
	if !moduleLoaded(loaded, modulePath) {
		return fmt.Errorf("LoadLibraryW returned NULL for %s", modulePath)
	}
	return nil
}

// moduleList returns the paths of the modules loaded in pid.
func moduleList(pid uint32) ([]string, error) {
	var snap windows.Handle
	var err error
	for {
		snap, err = windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, pid)
		if err != windows.ERROR_BAD_LENGTH {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(snap)

	var paths []string
	me := windows.ModuleEntry32{Size: uint32(unsafe.Sizeof(windows.ModuleEntry32{}))}
	for err = windows.Module32First(snap, &me); err == nil; err = windows.Module32Next(snap, &me) {
		paths = append(paths, windows.UTF16ToString(me.ExePath[:]))
	}
	if err != windows.ERROR_NO_MORE_FILES {
		return nil, fmt.Errorf("Module32Next: %w", err)
	}
	return paths, nil
}

func sameBitness(process windows.Handle) error {
	var self, target bool
	if err := windows.IsWow64Process(windows.CurrentProcess(), &self); err != nil {
		return fmt.Errorf("IsWow64Process(self): %w", err)
	}
	if err := windows.IsWow64Process(process, &target); err != nil {
		return fmt.Errorf("IsWow64Process(target): %w", err)
	}
	if self != target {
		return fmt.Errorf("target bitness differs from launcher (wow64 %v vs %v)", target, self)
	}
	return nil
}
