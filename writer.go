// Copyright 2026 The klippyNFC Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package klippynfc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erikbuild/klippyNFC/internal/type2"
	"github.com/erikbuild/klippyNFC/pkg/ndef"
)

// WriteState is the current phase of a tag write operation.
type WriteState int32

// Write states, in the order a successful operation passes through them.
const (
	StateIdle WriteState = iota
	StatePlanning
	StateScanning
	StateWriting
	StateDone
	StateFailed
)

func (s WriteState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateScanning:
		return "scanning"
	case StateWriting:
		return "writing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WriteResult records one write attempt. It is immutable once returned
// and retained by the agent as "last write" status until the next
// attempt. A failed attempt with PagesWritten > 0 left a partially
// written tag behind; such a tag should be discarded.
type WriteResult struct {
	When         time.Time
	UID          string
	BytesWritten int
	PagesWritten int
	// FailingPage is the 1-based position of the failed page write in
	// the plan, or 0 if no page write failed.
	FailingPage int
	Success     bool
}

// WriterConfig configures a TagWriter.
type WriterConfig struct {
	// ScanTimeout bounds how long to wait for a tag to enter the field.
	ScanTimeout time.Duration
	// ScanInterval is the pause between detection polls.
	ScanInterval time.Duration
	// TagCapacity is the target tag's user memory size in bytes.
	TagCapacity int
}

// DefaultWriterConfig returns the writer defaults: 5 second scan
// window, 100 ms poll interval, NTAG213 capacity.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		ScanTimeout:  5 * time.Second,
		ScanInterval: 100 * time.Millisecond,
		TagCapacity:  type2.DefaultCapacity,
	}
}

// TagWriter writes a URL to a physical Type-2 tag: encode, plan, scan
// for a tag, then write the planned pages in order. Writes are
// synchronous; a write attempt holds the device for its full duration
// and never overlaps another session.
type TagWriter struct {
	device *Device
	config WriterConfig
	state  atomic.Int32
}

// NewTagWriter creates a TagWriter. A nil config uses the defaults;
// zero fields in a non-nil config are filled in from them.
func NewTagWriter(device *Device, config *WriterConfig) *TagWriter {
	cfg := *DefaultWriterConfig()
	if config != nil {
		if config.ScanTimeout > 0 {
			cfg.ScanTimeout = config.ScanTimeout
		}
		if config.ScanInterval > 0 {
			cfg.ScanInterval = config.ScanInterval
		}
		if config.TagCapacity > 0 {
			cfg.TagCapacity = config.TagCapacity
		}
	}
	return &TagWriter{device: device, config: cfg}
}

// State returns the writer's current phase.
func (w *TagWriter) State() WriteState {
	return WriteState(w.state.Load())
}

func (w *TagWriter) setState(s WriteState) {
	w.state.Store(int32(s))
	Debugf("writer state: %s", s)
}

// WriteURL writes url to the next tag presented to the reader. The
// returned WriteResult is never nil. Encoding and planning failures
// are reported before any device I/O; a page write failure aborts
// immediately with no retry, leaving earlier pages written.
func (w *TagWriter) WriteURL(ctx context.Context, url string) (*WriteResult, error) {
	result := &WriteResult{When: time.Now()}

	// Encode and plan up front: InvalidURI and CapacityExceeded must
	// surface with no side effects on the device or the tag.
	w.setState(StatePlanning)
	msg, err := ndef.EncodeURIMessage(url)
	if err != nil {
		w.setState(StateFailed)
		return result, err
	}
	plan, err := type2.Plan(msg, w.config.TagCapacity)
	if err != nil {
		w.setState(StateFailed)
		return result, err
	}

	if err := w.device.acquire(); err != nil {
		w.setState(StateFailed)
		return result, err
	}
	defer w.device.release()

	w.setState(StateScanning)
	tag, err := w.waitForTag(ctx)
	if err != nil {
		w.setState(StateFailed)
		return result, err
	}
	result.UID = tag.UID

	w.setState(StateWriting)
	for i, pw := range plan.Pages {
		if err := w.device.WritePageContext(ctx, tag.TargetNumber, pw.Index, pw.Data); err != nil {
			w.setState(StateFailed)
			result.PagesWritten = i
			result.BytesWritten = i * type2.PageSize
			result.FailingPage = i + 1
			return result, &WritePageError{Page: i + 1, TagPage: pw.Index, Err: err}
		}
	}

	// Best effort; the write itself already succeeded.
	if err := w.device.ReleaseTargetContext(ctx, tag.TargetNumber); err != nil {
		Debugf("InRelease after write failed: %v", err)
	}

	w.setState(StateDone)
	result.Success = true
	result.PagesWritten = plan.PageCount()
	result.BytesWritten = plan.PageCount() * type2.PageSize
	Debugf("wrote %d pages (%d bytes) to tag %s", result.PagesWritten, result.BytesWritten, result.UID)
	return result, nil
}

// waitForTag polls for a tag until one appears or the scan window
// closes. The window closing is reported as ErrNoTagDetected.
func (w *TagWriter) waitForTag(ctx context.Context) (*DetectedTag, error) {
	scanCtx, cancel := context.WithTimeout(ctx, w.config.ScanTimeout)
	defer cancel()

	for {
		tag, err := w.device.DetectTagContext(scanCtx)
		if err == nil {
			return tag, nil
		}
		// Transient link faults during the scan are retried on the
		// next poll; anything permanent aborts the attempt.
		if !errors.Is(err, ErrNoTagDetected) && !errors.Is(err, context.DeadlineExceeded) && !IsRetryable(err) {
			return nil, fmt.Errorf("tag detection failed: %w", err)
		}

		select {
		case <-scanCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrNoTagDetected, ctx.Err())
			}
			return nil, ErrNoTagDetected
		case <-time.After(w.config.ScanInterval):
		}
	}
}
