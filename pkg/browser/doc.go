// Package browser owns the single browser session of a run.
//
// # Architecture
//
// The package separates session policy from the driver:
//
//  1. Session: the page every component drives, plus the wait policy and the debug endpoint
//  2. Manager: acquires and releases sessions (attach-or-launch, terminate-or-disconnect)
//  3. Launcher: the driver seam; PlaywrightLauncher talks to Chromium over CDP
//
// # Session Lifecycle
//
// With reuse requested, Acquire scans the process table for a browser started
// with --remote-debugging-port=<port> and attaches to it over CDP. Any attach
// failure is logged and a fresh browser is launched instead. Fresh browsers
// always listen on the same debug port with a persistent profile directory, so
// the next run can attach to a window that is already logged in.
//
// Release terminates only browsers this run launched. A reused browser keeps
// running and only the local control channel is dropped.
//
// # Locating Elements
//
// Page.Find resolves a single Strategy. Ranked fallback across strategies
// lives in the locator package.
package browser
