package levenshtein

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/Milo4uk/levenshtein-distance/internal/codec"
	"github.com/Milo4uk/levenshtein-distance/internal/gpu"
	"github.com/Milo4uk/levenshtein-distance/internal/kernel"
)

// readback is the completion handle for one staging mapping. The map
// callback delivers its status on done; wait drives the mapping forward
// until that happens.
type readback struct {
	buf  *gpu.Buffer
	done chan gpu.BufferMapAsyncStatus
}

// mapForRead requests a read mapping of buf[0:size).
func mapForRead(buf *gpu.Buffer, size uint64) (*readback, error) {
	h := &readback{buf: buf, done: make(chan gpu.BufferMapAsyncStatus, 1)}
	err := buf.MapAsync(gputypes.MapModeRead, 0, size, func(status gpu.BufferMapAsyncStatus) {
		h.done <- status
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// wait polls the mapping in slices of interval, yielding between slices,
// until it completes or timeout elapses (zero waits forever).
func (h *readback) wait(interval, timeout time.Duration) (gpu.BufferMapAsyncStatus, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if h.buf.PollMapAsync(interval) {
			select {
			case status := <-h.done:
				return status, nil
			default:
				return gpu.BufferMapAsyncStatusUnknown, errors.New("mapping finished without a status")
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return gpu.BufferMapAsyncStatusUnknown, gpu.ErrFenceTimeout
		}
		runtime.Gosched()
	}
}

// transfer uploads codes for n words, dispatches the kernel, copies the
// distances to staging with one submission and reads them back. The caller
// holds s.mu.
func (s *Session) transfer(codes []uint32, n int) (Matrix, error) {
	start := time.Now()
	params := kernel.Params{Count: uint32(n), Padding: uint32(s.opts.padding)} //nolint:gosec // bounded by capacity and MaxPadding

	if err := s.input.Write(0, codec.Bytes(codes)); err != nil {
		return Matrix{}, fmt.Errorf("upload words: %w", err)
	}
	if err := s.params.Write(0, codec.Bytes(params.Words())); err != nil {
		return Matrix{}, fmt.Errorf("upload params: %w", err)
	}

	size := uint64(n) * uint64(n) * 4 //nolint:gosec // n > 0
	groups := kernel.Workgroups(n, s.opts.workgroupSize)

	cmds := &gpu.CommandList{Label: "levenshtein"}
	cmds.Dispatch(s.pipeline, []gpu.BindEntry{
		{Binding: kernel.BindingInput, Buffer: s.input.Raw()},
		{Binding: kernel.BindingOutput, Buffer: s.output.Raw()},
		{Binding: kernel.BindingParams, Buffer: s.params.Raw()},
	}, groups)
	cmds.CopyBufferToBuffer(s.output.Raw(), s.staging.Raw(), size)

	sub, err := s.device.Submit(cmds)
	if err != nil {
		return Matrix{}, fmt.Errorf("submit: %w", err)
	}
	s.staging.TrackSubmission(sub)

	h, err := mapForRead(s.staging, size)
	if err != nil {
		s.abandon(sub)
		return Matrix{}, fmt.Errorf("map staging: %w", err)
	}
	status, err := h.wait(s.opts.pollInterval, s.opts.fenceTimeout)
	if err != nil {
		if isTimeout(err) {
			s.abandon(sub)
		} else {
			s.device.Release(sub)
		}
		return Matrix{}, fmt.Errorf("await readback: %w", err)
	}
	s.device.Release(sub)
	if status != gpu.BufferMapAsyncStatusSuccess {
		cause := s.staging.MapErr()
		if cause == nil {
			cause = errors.New(status.String())
		}
		return Matrix{}, fmt.Errorf("map staging: %w", cause)
	}

	data, err := s.staging.GetMappedRange(0, size)
	if err != nil {
		_ = s.staging.Unmap()
		return Matrix{}, fmt.Errorf("read staging: %w", err)
	}
	m := Matrix{N: n, Values: codec.Decode(data)}
	if err := s.staging.Unmap(); err != nil {
		return Matrix{}, fmt.Errorf("unmap staging: %w", err)
	}

	slogger().Debug("levenshtein: batch computed",
		"session", s.id,
		"words", n,
		"workgroups", groups,
		"elapsed", time.Since(start))
	return m, nil
}

// abandon keeps a submission that may still be running so that it is
// released once it completes rather than while the device uses it.
func (s *Session) abandon(sub gpu.Submission) {
	if s.pending != nil {
		s.device.Release(s.pending)
	}
	s.pending = sub
}
