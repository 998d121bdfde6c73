// Package sandbox defines the port for the isolated execution environment
// the action runner operates against: process spawning and a scoped
// filesystem. The runner only ever sees this interface; the concrete
// environment (local workspace, container, remote box) lives behind it.
package sandbox

import "context"

// Process is a handle to one spawned sandbox process.
type Process interface {
	// Output returns a channel of output lines (stdout and stderr merged).
	// The channel closes when the process exits.
	Output() <-chan string

	// Wait blocks until the process exits and returns its exit code.
	Wait(ctx context.Context) (int, error)

	// Kill terminates the process. Safe to call more than once.
	Kill() error
}

// Sandbox is the port interface for the execution environment.
type Sandbox interface {
	// Spawn starts a shell command inside the sandbox. The command is
	// killed when ctx is cancelled.
	Spawn(ctx context.Context, command string) (Process, error)

	// ReadFile returns the contents of a file, relative to the sandbox root.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or replaces a file, creating parent directories
	// as needed.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Mkdir creates a directory and any missing parents.
	Mkdir(ctx context.Context, path string) error

	// Remove deletes a file or directory tree.
	Remove(ctx context.Context, path string) error
}
