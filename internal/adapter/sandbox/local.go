// Package sandbox implements the sandbox port against a local workspace
// directory using os/exec. Filesystem operations are bounded by a weighted
// semaphore so a burst of file actions cannot exhaust descriptors.
package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sync/semaphore"

	"github.com/crucible-dev/crucible/internal/port/sandbox"
)

// Local implements sandbox.Sandbox rooted at a workspace directory.
type Local struct {
	root  string
	ioSem *semaphore.Weighted
}

// NewLocal creates a sandbox rooted at root. maxConcurrentIO bounds
// simultaneous filesystem operations.
func NewLocal(root string, maxConcurrentIO int) (*Local, error) {
	if maxConcurrentIO < 1 {
		maxConcurrentIO = 1
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Local{root: abs, ioSem: semaphore.NewWeighted(int64(maxConcurrentIO))}, nil
}

// Root returns the absolute workspace root.
func (l *Local) Root() string { return l.root }

// Spawn starts a shell command inside the workspace.
func (l *Local) Spawn(ctx context.Context, command string) (sandbox.Process, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // G204: commands pass security validation before reaching the sandbox
	cmd.Dir = l.root
	// Own process group so Kill reaches shell children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", command, err)
	}

	p := &process{
		cmd:    cmd,
		lines:  make(chan string, 64),
		exited: make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		close(p.lines)
	}()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.exitCode = cmd.ProcessState.ExitCode()
		p.mu.Unlock()
		close(p.exited)
	}()

	return p, nil
}

type process struct {
	cmd    *exec.Cmd
	lines  chan string
	exited chan struct{}

	mu       sync.Mutex
	waitErr  error
	exitCode int
	killed   bool
}

func (p *process) Output() <-chan string { return p.lines }

// Wait blocks until the process exits and returns its exit code.
func (p *process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.exited:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.waitErr != nil && p.exitCode < 0 {
			return p.exitCode, p.waitErr
		}
		return p.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Kill terminates the whole process group. Safe to call more than once.
func (p *process) Kill() error {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return nil
	}
	p.killed = true
	p.mu.Unlock()

	if p.cmd.Process == nil {
		return nil
	}
	// Negative pid signals the process group.
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// ReadFile returns the contents of a file relative to the workspace root.
func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := l.withIOSlot(ctx, func() error {
		var readErr error
		data, readErr = os.ReadFile(l.resolve(path))
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile creates or replaces a file, creating parent directories as needed.
func (l *Local) WriteFile(ctx context.Context, path string, data []byte) error {
	err := l.withIOSlot(ctx, func() error {
		full := l.resolve(path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		return os.WriteFile(full, data, 0o644)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Mkdir creates a directory and any missing parents.
func (l *Local) Mkdir(ctx context.Context, path string) error {
	err := l.withIOSlot(ctx, func() error {
		return os.MkdirAll(l.resolve(path), 0o755)
	})
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Remove deletes a file or directory tree.
func (l *Local) Remove(ctx context.Context, path string) error {
	err := l.withIOSlot(ctx, func() error {
		return os.RemoveAll(l.resolve(path))
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (l *Local) withIOSlot(ctx context.Context, fn func() error) error {
	if err := l.ioSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.ioSem.Release(1)
	return fn()
}

func (l *Local) resolve(path string) string {
	return filepath.Join(l.root, filepath.Clean(path))
}
