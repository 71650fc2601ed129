package bridge

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Process runs a native media helper and talks to it over stdin/stdout
type Process struct {
	*Stream

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	logWriter io.Writer
	exited    chan error
	grace     time.Duration

	closeOnce sync.Once
	closeErr  error
}

// StartProcess launches argv with the JSON-lines protocol on its stdio.
// Helper stderr is logged at debug level and copied to logWriter.
func StartProcess(argv []string, env []string, logWriter io.Writer) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("no helper command configured")
	}
	if logWriter == nil {
		logWriter = io.Discard
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	slog.Info("Starting native media helper", "command", strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start media helper: %w", err)
	}

	p := &Process{
		Stream:    NewStream(stdout, stdin),
		cmd:       cmd,
		stdin:     stdin,
		logWriter: logWriter,
		exited:    make(chan error, 1),
		grace:     5 * time.Second,
	}
	go p.readStderr(stderr)
	go func() {
		<-p.Stream.Done()
		p.exited <- cmd.Wait()
	}()
	return p, nil
}

func (p *Process) readStderr(pipe io.ReadCloser) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(p.logWriter, line)
		slog.Debug("Media helper output", "stream", "stderr", "line", line)
	}
	pipe.Close()
}

// Close asks the helper to exit by closing its stdin, then interrupts
// and finally kills it if it does not exit in time.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.stop()
	})
	return p.closeErr
}

func (p *Process) stop() error {
	p.stdin.Close()

	select {
	case err := <-p.exited:
		return exitError(err)
	case <-time.After(p.grace):
	}

	slog.Debug("Sending interrupt to media helper")
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to interrupt media helper", "error", err)
	}

	select {
	case err := <-p.exited:
		return exitError(err)
	case <-time.After(p.grace):
		slog.Warn("Media helper did not exit within timeout, force killing")
		p.cmd.Process.Kill()
		<-p.exited
		return nil
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		if state == "signal: interrupt" || state == "signal: killed" {
			slog.Debug("Media helper exited due to signal", "state", state)
			return nil
		}
	}
	return fmt.Errorf("media helper failed: %w", err)
}
