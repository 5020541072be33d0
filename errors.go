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
	"errors"
	"fmt"

	"github.com/erikbuild/klippyNFC/internal/type2"
	"github.com/erikbuild/klippyNFC/pkg/ndef"
)

// Operation errors surfaced to callers of the writer and emulator.
var (
	// ErrInvalidURI reports a URL that failed validation before any
	// device I/O.
	ErrInvalidURI = ndef.ErrInvalidURI

	// ErrCapacityExceeded reports a message too large for the target
	// tag, detected during planning before any device write.
	ErrCapacityExceeded = type2.ErrCapacityExceeded

	// ErrNoTagDetected means no tag entered the field within the scan
	// timeout.
	ErrNoTagDetected = errors.New("no tag detected")

	// ErrTransportUnavailable means the NFC controller could not be
	// initialized or reached; the feature is disabled for the process.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrEmulationStartFailed means the emulator could not bring the
	// controller into target mode; an explicit restart is required.
	ErrEmulationStartFailed = errors.New("emulation start failed")

	// ErrDeviceBusy means another operation holds the half-duplex link;
	// the writer and emulator never overlap.
	ErrDeviceBusy = errors.New("device busy")

	// ErrTargetReleased means the reading phone deselected or left the
	// field during an emulation exchange.
	ErrTargetReleased = errors.New("target released")
)

// Transport and communication errors.
var (
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")
	ErrNoACK             = errors.New("no ACK received")
	ErrFrameCorrupted    = errors.New("frame corrupted")
	ErrInvalidResponse   = errors.New("invalid response format")
)

// WritePageError reports the first failed page write of a tag write
// attempt. Page is the 1-based position within the write sequence and
// TagPage the physical page on the tag. The pages acked before it stay
// written; the tag should be treated as corrupted.
type WritePageError struct {
	Err     error
	Page    int
	TagPage int
}

func (e *WritePageError) Error() string {
	return fmt.Sprintf("page write %d failed (tag page %d): %v", e.Page, e.TagPage, e.Err)
}

func (e *WritePageError) Unwrap() error { return e.Err }

// ErrorType represents the category of a transport error.
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially recoverable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-recoverable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is transient
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewNoACKError creates a "no ACK received" error (timeout)
func NewNoACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoACK, ErrorTypeTimeout)
}

// NewFrameCorruptedError creates a frame corruption error (transient)
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewInvalidResponseError creates an invalid response error (permanent)
func NewInvalidResponseError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrInvalidResponse, ErrorTypePermanent)
}

// PN532Error wraps a controller status code returned inside a response
// or error frame, with the command name for context.
type PN532Error struct {
	Command   string
	ErrorCode byte
}

func (e *PN532Error) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.ErrorCode, pn532ErrorCodeMeaning(e.ErrorCode))
}

// IsTimeout returns true if the status code is the controller's own
// timeout (0x01), raised when no tag answered in time.
func (e *PN532Error) IsTimeout() bool { return e.ErrorCode == 0x01 }

// IsTargetReleased returns true if the initiator released the emulated
// target (0x29) or it otherwise left the exchange (0x2B).
func (e *PN532Error) IsTargetReleased() bool {
	return e.ErrorCode == 0x29 || e.ErrorCode == 0x2B
}

// pn532ErrorCodeMeaning returns a human-readable meaning for PN532 error codes
// Error codes are from the PN532 User Manual section 7.1
func pn532ErrorCodeMeaning(code byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x01: "timeout",
		0x02: "CRC error",
		0x03: "parity error",
		0x04: "erroneous bit count during anti-collision",
		0x05: "framing error during mifare operation",
		0x06: "abnormal bit collision",
		0x07: "communication buffer size insufficient",
		0x09: "RF buffer overflow",
		0x0A: "RF field not activated in time",
		0x0B: "RF protocol error",
		0x0D: "overheating",
		0x0E: "internal buffer overflow",
		0x10: "invalid parameter",
		0x13: "dataformat does not match",
		0x14: "authentication error",
		0x23: "UID check byte is wrong",
		0x25: "DEP invalid state",
		0x26: "operation not allowed",
		0x27: "wrong context for command",
		0x29: "target released by initiator",
		0x2A: "card ID mismatch",
		0x2B: "card disappeared",
		0x2D: "over-current event",
		0x81: "command not supported",
	}
	if m, ok := meanings[code]; ok {
		return m
	}
	return "unknown error"
}

// IsRetryable returns true if the error is transient at the transport
// level. Tag write failures are never retried regardless; this predicate
// exists for callers deciding whether an emulation cycle error is worth
// counting against the link itself.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted):
		return true
	default:
		return false
	}
}
