// Package procutil provides the low-level, host-facing primitives the
// scheduler builds on: binding/connect probes against loopback ports,
// llama-server argv construction, signal-then-kill process termination, and
// best-effort RSS/CPU sampling of a child process. Nothing in this package
// holds state across calls; it is a thin, testable layer over the OS.
package procutil
