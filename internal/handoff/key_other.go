//go:build !windows

package handoff

func endKeyPressed() bool { return false }
