//go:build !windows

package ui

// enableANSI is a no-op outside Windows; terminals already honour escapes.
func enableANSI() {}
