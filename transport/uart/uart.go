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

// Package uart provides the serial transport for the PN532.
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	klippynfc "github.com/erikbuild/klippyNFC"
	"github.com/erikbuild/klippyNFC/internal/frame"
	"go.bug.st/serial"
)

const baudRate = 115200

// wakeSequence brings the PN532 out of low VBAT mode. The long zero
// tail gives it time to start its oscillator before the frame arrives.
var wakeSequence = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// Transport implements klippynfc.Transport over a serial port.
type Transport struct {
	port        serial.Port
	portName    string
	mu          sync.Mutex
	lastCommand byte
}

// New opens the serial port (e.g. "/dev/ttyAMA0") at the PN532's fixed
// baud rate.
func New(portName string) (*Transport, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{port: port, portName: portName}, nil
}

// SendCommand sends a command to the PN532 and waits for its response.
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, klippynfc.NewTransportError("SendCommand", t.portName,
			klippynfc.ErrTransportClosed, klippynfc.ErrorTypePermanent)
	}

	t.lastCommand = cmd

	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}

	// Processing delay before the response frame starts.
	time.Sleep(6 * time.Millisecond)

	res, err := t.receiveFrame()
	if err != nil {
		return nil, err
	}
	if err := t.sendAck(); err != nil {
		return nil, err
	}
	return res, nil
}

// SendCommandWithContext sends a command, honoring a cancelled context
// before the exchange starts.
func (t *Transport) SendCommandWithContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return t.SendCommand(cmd, args)
}

// SetTimeout sets the serial read timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close releases the serial port.
func (t *Transport) Close() error {
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("UART close failed: %w", err)
		}
		t.port = nil
	}
	return nil
}

// IsConnected reports whether the port is open.
func (t *Transport) IsConnected() bool {
	return t.port != nil
}

// Type returns the transport type.
func (*Transport) Type() klippynfc.TransportType {
	return klippynfc.TransportUART
}

func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "interrupted system call") || strings.Contains(msg, "eintr")
}

// drainWithRetry flushes the port, retrying drains interrupted by
// signals.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}
	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

func (t *Transport) wakeUp() error {
	n, err := t.port.Write(wakeSequence)
	if err != nil {
		return fmt.Errorf("UART wake up write failed: %w", err)
	}
	if n != len(wakeSequence) {
		return klippynfc.NewTransportError("wakeUp", t.portName,
			klippynfc.ErrTransportWrite, klippynfc.ErrorTypeTransient)
	}
	return t.drainWithRetry("wake up")
}

func (t *Transport) sendAck() error {
	n, err := t.port.Write(frame.AckFrame)
	if err != nil {
		return fmt.Errorf("UART ACK write failed: %w", err)
	}
	if n != len(frame.AckFrame) {
		return klippynfc.NewTransportError("sendAck", t.portName,
			klippynfc.ErrTransportWrite, klippynfc.ErrorTypeTransient)
	}
	return t.drainWithRetry("ACK")
}

// sendFrame wakes the PN532 and writes one command frame.
func (t *Transport) sendFrame(cmd byte, args []byte) error {
	if len(args)+2 > frame.MaxFrameDataLength {
		return klippynfc.NewInvalidResponseError("sendFrame", t.portName)
	}
	wire := frame.BuildCommand(cmd, args)

	if err := t.wakeUp(); err != nil {
		return err
	}

	n, err := t.port.Write(wire)
	if err != nil {
		return fmt.Errorf("UART send frame write failed: %w", err)
	}
	if n != len(wire) {
		return klippynfc.NewTransportError("sendFrame", t.portName,
			klippynfc.ErrTransportWrite, klippynfc.ErrorTypeTransient)
	}
	return t.drainWithRetry("send frame")
}

// waitAck scans the incoming byte stream for the ACK frame. The scan
// tolerates leading noise bytes from the wake sequence echo.
func (t *Transport) waitAck() error {
	const maxTries = 32
	buf := make([]byte, 1)
	window := make([]byte, 0, len(frame.AckFrame))

	for tries := 0; tries < maxTries; tries++ {
		n, err := t.port.Read(buf)
		if err != nil {
			return fmt.Errorf("UART ACK read failed: %w", err)
		}
		if n == 0 {
			continue
		}

		window = append(window, buf[0])
		if len(window) < len(frame.AckFrame) {
			continue
		}
		if bytes.Equal(window, frame.AckFrame) {
			return nil
		}
		window = window[1:]
	}
	return klippynfc.NewNoACKError("waitAck", t.portName)
}

// receiveFrame reads one response frame. The returned payload starts
// with the response code; the TFI has been stripped.
func (t *Transport) receiveFrame() ([]byte, error) {
	buf := make([]byte, frame.MaxFrameDataLength+16)

	totalLen, err := t.readInitialData(buf)
	if err != nil {
		return nil, err
	}
	if totalLen == 0 {
		// Some firmware revisions stay silent on InListPassiveTarget
		// when the field is empty. Synthesize the empty-field response
		// so detection reports no tag instead of a transport fault.
		if t.lastCommand == 0x4A {
			return []byte{0x4B, 0x00}, nil
		}
		return nil, klippynfc.NewTimeoutError("receiveFrame", t.portName)
	}

	off := bytes.Index(buf[:totalLen], []byte{0x00, 0xFF})
	if off < 0 {
		return nil, klippynfc.NewFrameCorruptedError("receiveFrame", t.portName)
	}

	// LEN and LCS follow the start code.
	if totalLen < off+4 {
		totalLen, err = t.readRemainingData(buf, totalLen, off+4)
		if err != nil {
			return nil, err
		}
	}
	length := int(buf[off+2])
	if byte(length)+buf[off+3] != 0 {
		return nil, klippynfc.NewFrameCorruptedError("receiveFrame", t.portName)
	}

	// Full frame: start code + LEN + LCS + data + DCS.
	expected := off + 4 + length + 1
	if expected > len(buf) {
		return nil, klippynfc.NewInvalidResponseError("receiveFrame", t.portName)
	}
	if totalLen < expected {
		totalLen, err = t.readRemainingData(buf, totalLen, expected)
		if err != nil {
			return nil, err
		}
	}

	payload, err := frame.Decode(buf[:totalLen])
	if err != nil {
		if errors.Is(err, frame.ErrErrorFrame) {
			return nil, klippynfc.NewInvalidResponseError("receiveFrame", t.portName)
		}
		return nil, klippynfc.NewFrameCorruptedError("receiveFrame", t.portName)
	}
	return payload, nil
}

// readInitialData reads the first burst of response bytes, giving slow
// modules a second chance.
func (t *Transport) readInitialData(buf []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)

	n, err := t.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("UART initial data read failed: %w", err)
	}
	if n == 0 {
		time.Sleep(50 * time.Millisecond)
		n, err = t.port.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("UART initial data retry read failed: %w", err)
		}
	}
	return n, nil
}

// readRemainingData keeps reading until expectedLen bytes have arrived.
func (t *Transport) readRemainingData(buf []byte, totalLen, expectedLen int) (int, error) {
	timeout := time.After(2 * time.Second)

	for totalLen < expectedLen {
		select {
		case <-timeout:
			return 0, klippynfc.NewTimeoutError("receiveFrame", t.portName)
		default:
			n, err := t.port.Read(buf[totalLen:expectedLen])
			if err != nil {
				return 0, fmt.Errorf("UART remaining data read failed: %w", err)
			}
			if n > 0 {
				totalLen += n
			} else {
				time.Sleep(10 * time.Millisecond)
			}
		}
	}
	return totalLen, nil
}

var _ klippynfc.Transport = (*Transport)(nil)
