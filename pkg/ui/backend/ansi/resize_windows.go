//go:build windows

package ansi

import "os"

// Windows has no resize signal; the screen backend is the better fit
// there.

func registerResizeSignal(chan<- os.Signal) {}

func unregisterResizeSignal(chan<- os.Signal) {}
