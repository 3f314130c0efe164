package pool

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/jamesainslie/batchplan/pkg/batchplan/logging"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// RemoteError is a per-item error that occurred in a worker subprocess.
// Only the message survives the boundary.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return e.Msg
}

// procWorker is one subprocess worker and its pipes.
type procWorker struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *gob.Encoder
	dec   *gob.Decoder
}

// processPool runs batches in isolated subprocess workers. Each worker
// is a re-exec of the host binary in serve mode; jobs and results cross
// as gob on the worker's stdin/stdout.
type processPool struct {
	task    string
	workers int
	free    chan *procWorker

	mu     sync.Mutex
	all    map[*procWorker]struct{}
	closed bool
}

func newProcessPool(workers int, task string) (*processPool, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}

	p := &processPool{
		task:    task,
		workers: workers,
		free:    make(chan *procWorker, workers),
		all:     make(map[*procWorker]struct{}, workers),
	}

	for i := 0; i < workers; i++ {
		w, err := p.spawnWorker(self)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("starting worker %d: %w", i, err)
		}
		p.all[w] = struct{}{}
		p.free <- w
	}
	return p, nil
}

func (p *processPool) spawnWorker(self string) (*procWorker, error) {
	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), types.WorkerModeEnv+"="+types.WorkerModeServe)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &procWorker{
		cmd:   cmd,
		stdin: stdin,
		enc:   gob.NewEncoder(stdin),
		dec:   gob.NewDecoder(stdout),
	}, nil
}

// Execute sends the batch to an idle worker and waits for its response.
// Blocking on the free channel is the backpressure mechanism. A worker
// whose pipes fail is discarded and replaced best-effort.
func (p *processPool) Execute(ctx context.Context, items []any) ([]Result, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	var w *procWorker
	select {
	case w = <-p.free:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	resp, err := p.roundTrip(ctx, w, items)
	if err != nil {
		p.discard(w)
		return nil, err
	}

	p.free <- w

	results := make([]Result, len(items))
	for i := range items {
		results[i] = Result{Index: i}
		if i < len(resp.Values) {
			results[i].Value = resp.Values[i]
		}
		if i < len(resp.Errs) && resp.Errs[i] != "" {
			results[i].Err = &RemoteError{Msg: resp.Errs[i]}
		}
	}
	return results, nil
}

// roundTrip writes one job and reads one response. The decode runs in a
// goroutine so a context cancellation can interrupt it by killing the
// worker, which errors the read.
func (p *processPool) roundTrip(ctx context.Context, w *procWorker, items []any) (*jobResponse, error) {
	if err := w.enc.Encode(jobRequest{Task: p.task, Items: items}); err != nil {
		return nil, fmt.Errorf("sending job to worker: %w", err)
	}

	type decoded struct {
		resp jobResponse
		err  error
	}
	ch := make(chan decoded, 1)
	go func() {
		var resp jobResponse
		err := w.dec.Decode(&resp)
		ch <- decoded{resp: resp, err: err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			return nil, fmt.Errorf("reading worker response: %w", d.err)
		}
		return &d.resp, nil
	case <-ctx.Done():
		_ = w.cmd.Process.Kill()
		<-ch
		return nil, ctx.Err()
	}
}

// discard removes a broken worker and tries to start a replacement so
// pool capacity holds steady.
func (p *processPool) discard(w *procWorker) {
	logger := logging.Get("pool")

	_ = w.stdin.Close()
	_ = w.cmd.Process.Kill()
	_ = w.cmd.Wait()

	p.mu.Lock()
	delete(p.all, w)
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return
	}

	self, err := os.Executable()
	if err == nil {
		if replacement, spawnErr := p.spawnWorker(self); spawnErr == nil {
			p.mu.Lock()
			p.all[replacement] = struct{}{}
			p.mu.Unlock()
			p.free <- replacement
			return
		} else {
			err = spawnErr
		}
	}
	logger.Warn("lost a worker and could not replace it", "task", p.task, "error", err)
}

func (p *processPool) Workers() int {
	return p.workers
}

// Close shuts the workers down by closing their stdin; each exits on
// EOF. Safe to call more than once.
func (p *processPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	workers := make([]*procWorker, 0, len(p.all))
	for w := range p.all {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.stdin.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := w.cmd.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
