package pool

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

// jobRequest is one batch sent to a worker subprocess.
type jobRequest struct {
	// Task is the registered name of the function to run.
	Task string

	// Items are the batch items, gob-encoded.
	Items []any
}

// jobResponse carries the batch results back. Errors cross as strings;
// an empty string means success for that item.
type jobResponse struct {
	Values []any
	Errs   []string
}

// WorkerMain is the worker subprocess entry point. Binaries that use
// the isolated backend must call it at the top of main, after all
// Register and RegisterType calls:
//
//	func main() {
//	    pool.WorkerMain()
//	    // normal program follows
//	}
//
// In a normal process it returns immediately. In a process started as a
// worker it serves jobs until stdin closes and then exits; it never
// returns to the host program.
func WorkerMain() {
	switch os.Getenv(types.WorkerModeEnv) {
	case types.WorkerModeProbe:
		os.Exit(0)
	case types.WorkerModeServe:
		serve(os.Stdin, os.Stdout)
		os.Exit(0)
	}
}

// serve is the worker loop: decode a job, run it, encode the response.
func serve(in io.Reader, out io.Writer) {
	dec := gob.NewDecoder(in)
	enc := gob.NewEncoder(out)

	for {
		var req jobRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(os.Stderr, "batchplan worker: decode: %v\n", err)
			return
		}

		resp := runJob(req)
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "batchplan worker: encode: %v\n", err)
			return
		}
	}
}

// runJob executes every item of a request, keeping per-item failures
// isolated.
func runJob(req jobRequest) jobResponse {
	resp := jobResponse{
		Values: make([]any, len(req.Items)),
		Errs:   make([]string, len(req.Items)),
	}

	fn, ok := Lookup(req.Task)
	if !ok {
		for i := range resp.Errs {
			resp.Errs[i] = fmt.Sprintf("task %q is not registered in the worker binary", req.Task)
		}
		return resp
	}

	for i, item := range req.Items {
		value, err := safeCall(fn, item)
		if err != nil {
			resp.Errs[i] = err.Error()
			continue
		}
		resp.Values[i] = value
	}
	return resp
}

// safeCall runs fn on one item, converting panics into errors.
func safeCall(fn Func, item any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn(item)
}
