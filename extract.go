package rzx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tdvu/rzx/fetch"
)

// ExtractOptions customises Archive.Extract. It is the single configuration
// value for one extraction run; the engine keeps no process-wide state.
type ExtractOptions struct {
	// Workers is the number of tasks running concurrently. 1 means strict
	// sequential execution in selection order.
	//
	// Defaults to 1. Cannot be non-positive.
	Workers int

	// Password decrypts traditionally encrypted entries. Entries that
	// need a password fail individually when it is absent or wrong.
	Password string

	// Flatten writes each entry under Dir using only its final path
	// component. On duplicate names the last task to complete wins.
	Flatten bool

	// Dir is the output root for filesystem destinations.
	//
	// Defaults to the current directory. Ignored when Stream is set.
	Dir string

	// Stream, when set, receives every selected entry's bytes in
	// selection order regardless of completion order, instead of writing
	// files under Dir.
	Stream io.Writer

	// OnDone, when set, is called once per finished task from the
	// coordinating goroutine, in completion order.
	OnDone func(TaskResult)
}

// TaskResult is the outcome of extracting one entry.
type TaskResult struct {
	Entry Entry
	// Path is the destination file, empty in stream mode.
	Path string
	Err  error
}

// Result summarises an extraction run.
type Result struct {
	// Extracted are the successfully completed tasks.
	Extracted []TaskResult
	// Failed are the tasks that failed, with reasons.
	Failed []TaskResult
	// Misses are the selection patterns that matched nothing, carried
	// over from the Selection.
	Misses []string
}

// Ok reports whether every task succeeded.
func (r *Result) Ok() bool {
	return len(r.Failed) == 0
}

// task pairs an entry with its position in the selection and its resolved
// destination. Owned exclusively by the worker executing it.
type task struct {
	idx  int
	e    Entry
	path string
}

type taskOutput struct {
	TaskResult
	idx int
	// data is the decompressed payload in stream mode.
	data []byte
}

// Extract runs one ExtractionTask per selected entry across a bounded worker
// pool.
//
// Directory placeholder entries are materialized as empty directories, never
// read. Per-entry failures are collected into the Result; a range-capability
// failure on any task aborts the whole batch immediately, canceling tasks
// that have not started while leaving completed output in place.
func (a *Archive) Extract(ctx context.Context, sel Selection, optFns ...func(*ExtractOptions)) (*Result, error) {
	opts := &ExtractOptions{
		Workers: 1,
		Dir:     ".",
	}
	for _, fn := range optFns {
		fn(opts)
	}

	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workers (%d) must be greater than 0", opts.Workers)
	}

	result := &Result{Misses: sel.Misses}

	tasks, err := a.planTasks(sel, opts, result)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return result, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputs := make(chan task, len(tasks))
	for _, t := range tasks {
		inputs <- t
	}
	close(inputs)

	outputs := make(chan taskOutput, opts.Workers)
	for i := 0; i < min(opts.Workers, len(tasks)); i++ {
		go a.worker(ctx, opts, inputs, outputs)
	}

	// completed-but-not-yet-writable stream payloads, keyed by selection
	// index and released strictly in order.
	parts := make(map[int]taskOutput, len(tasks))
	nextToWrite := 0

	for done := 0; done < len(tasks); done++ {
		var out taskOutput
		select {
		case out = <-outputs:
		case <-ctx.Done():
			return result, ctx.Err()
		}

		if opts.OnDone != nil {
			opts.OnDone(out.TaskResult)
		}

		if out.Err != nil {
			result.Failed = append(result.Failed, out.TaskResult)

			// a server that cannot serve ranges cannot serve this
			// archive at all; abort the batch.
			if errors.Is(out.Err, fetch.ErrRangeUnsupported) {
				cancel()
				return result, fmt.Errorf(`extract "%s" error: %w`, out.Entry.Name, out.Err)
			}
			continue
		}

		if opts.Stream == nil {
			result.Extracted = append(result.Extracted, out.TaskResult)
			continue
		}

		parts[out.idx] = out
		for part, ok := parts[nextToWrite]; ok; part, ok = parts[nextToWrite] {
			if _, err := opts.Stream.Write(part.data); err != nil {
				cancel()
				return result, fmt.Errorf(`write "%s" to stream error: %w`, part.Entry.Name, err)
			}

			result.Extracted = append(result.Extracted, part.TaskResult)
			delete(parts, nextToWrite)
			nextToWrite++
		}
	}

	return result, nil
}

// planTasks materializes directory placeholders and maps each data-carrying
// entry to its destination.
func (a *Archive) planTasks(sel Selection, opts *ExtractOptions, result *Result) ([]task, error) {
	tasks := make([]task, 0, len(sel.Entries))

	for _, e := range sel.Entries {
		if e.IsDir() {
			// stream and flatten modes have no use for empty
			// directories.
			if opts.Stream != nil || opts.Flatten {
				continue
			}

			p, err := destPath(opts.Dir, e.Name, false)
			if err != nil {
				result.Failed = append(result.Failed, TaskResult{Entry: e, Err: err})
				continue
			}
			if err = os.MkdirAll(p, e.Mode()); err != nil {
				result.Failed = append(result.Failed, TaskResult{Entry: e, Err: err})
				continue
			}

			result.Extracted = append(result.Extracted, TaskResult{Entry: e, Path: p})
			continue
		}

		t := task{idx: len(tasks), e: e}
		if opts.Stream == nil {
			p, err := destPath(opts.Dir, e.Name, opts.Flatten)
			if err != nil {
				result.Failed = append(result.Failed, TaskResult{Entry: e, Err: err})
				continue
			}
			t.path = p
		}

		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (a *Archive) worker(ctx context.Context, opts *ExtractOptions, inputs <-chan task, outputs chan<- taskOutput) {
	for {
		select {
		case t, ok := <-inputs:
			if !ok {
				return
			}

			out := taskOutput{idx: t.idx}
			out.Entry = t.e
			out.Path = t.path

			if opts.Stream != nil {
				out.data, out.Err = a.extractToMemory(ctx, t.e, opts.Password)
			} else {
				out.Err = a.extractToFile(ctx, t.e, t.path, opts.Password)
			}

			select {
			case outputs <- out:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Archive) extractToMemory(ctx context.Context, e Entry, password string) ([]byte, error) {
	rc, err := a.Open(ctx, e, password)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(e.UncompressedSize))

	_, err = copyContext(ctx, &buf, rc, nil)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (a *Archive) extractToFile(ctx context.Context, e Entry, path string, password string) error {
	rc, err := a.Open(ctx, e, password)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf(`create parent directories to "%s" error: %w`, path, err)
	}

	w, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, e.Mode())
	if err != nil {
		return fmt.Errorf(`create file "%s" error: %w`, path, err)
	}

	_, err = copyContext(ctx, w, rc, nil)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// don't leave a partial or corrupt file behind.
		_ = os.Remove(path)
		return fmt.Errorf(`write "%s" to "%s" error: %w`, e.Name, path, err)
	}

	if !e.Modified.IsZero() {
		_ = os.Chtimes(path, time.Time{}, e.Modified)
	}

	return nil
}

// destPath joins an entry path under the output root, rejecting paths that
// would escape it.
func destPath(root, name string, flatten bool) (string, error) {
	if flatten {
		name = path.Base(name)
	}

	name = path.Clean(name)
	if name == "." || name == ".." || path.IsAbs(name) || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf(`"%s": %w`, name, ErrInsecurePath)
	}

	return filepath.Join(root, filepath.FromSlash(name)), nil
}

// copyContext is io.CopyBuffer that checks for cancellation between reads.
func copyContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (written int64, err error) {
	if buf == nil {
		buf = make([]byte, 32*1024)
	}

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nw < nr {
				return written, io.ErrShortWrite
			}
		}

		if er == io.EOF {
			return written, nil
		}
		if er != nil {
			return written, er
		}
	}
}
