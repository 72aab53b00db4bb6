//go:build darwin

package main

import "runtime"

func init() {
	// The window controller runs on the main goroutine and AppKit only
	// accepts UI calls from the main thread.
	runtime.LockOSThread()
}
