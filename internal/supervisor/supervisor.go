// Package supervisor runs the worker processes and replaces any that exit
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// WorkerEnv marks a process as a worker and carries its id
const WorkerEnv = "MOKA_WORKER_ID"

// WorkerID returns the id of this worker process, if it is one
func WorkerID() (int, bool) {
	v, ok := os.LookupEnv(WorkerEnv)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Workers is n, or the number of CPUs when n is not positive
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Supervisor keeps Workers copies of a command running
type Supervisor struct {
	Command      string
	Args         []string
	Env          []string
	Workers      int
	RestartDelay time.Duration
	StopTimeout  time.Duration
	Stdout       io.Writer
	Stderr       io.Writer

	logger *zap.SugaredLogger
	starts atomic.Int64
}

// New supervises workers re-executing the current binary with its own arguments
func New(workers int, logger *zap.SugaredLogger) (*Supervisor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &Supervisor{
		Command:      exe,
		Args:         os.Args[1:],
		Workers:      Workers(workers),
		RestartDelay: 500 * time.Millisecond,
		StopTimeout:  10 * time.Second,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		logger:       logger,
	}, nil
}

// Starts counts the worker processes started so far
func (s *Supervisor) Starts() int64 {
	return s.starts.Load()
}

// Run starts the workers and respawns each one that exits, until ctx is done.
// Workers are then sent SIGTERM and Run returns once all have exited.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Infow("Starting workers", "workers", s.Workers, "command", s.Command)

	var wg sync.WaitGroup
	for id := 1; id <= s.Workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.keep(ctx, id)
		}(id)
	}
	wg.Wait()

	s.logger.Infow("All workers stopped")
	return nil
}

func (s *Supervisor) keep(ctx context.Context, id int) {
	for {
		err := s.run(ctx, id)
		if ctx.Err() != nil {
			return
		}

		s.logger.Warnw("Worker exited, respawning", "worker", id, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.RestartDelay):
		}
	}
}

func (s *Supervisor) run(ctx context.Context, id int) error {
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Env = append(append(os.Environ(), s.Env...), fmt.Sprintf("%s=%d", WorkerEnv, id))
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.StopTimeout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker %d: %w", id, err)
	}
	s.starts.Add(1)
	s.logger.Infow("Worker started", "worker", id, "pid", cmd.Process.Pid)

	return cmd.Wait()
}
