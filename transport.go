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
	"time"

	"github.com/erikbuild/klippyNFC/internal/syncutil"
)

// Transport defines the interface for communication with the PN532
// controller. Implemented by the SPI and UART backends. Responses are
// returned with the TFI stripped, so the first byte is the response
// code (command + 1).
type Transport interface {
	// SendCommand sends a command to the PN532 and waits for response
	SendCommand(cmd byte, args []byte) ([]byte, error)

	// SendCommandWithContext sends a command to the PN532 with context support
	SendCommandWithContext(ctx context.Context, cmd byte, args []byte) ([]byte, error)

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockCall records one command sent through a MockTransport.
type MockCall struct {
	Cmd  byte
	Args []byte
}

// MockTransport provides a mock implementation of Transport for testing.
// Responses can be configured per command either as a fixed reply
// (SetResponse/SetError) or as a FIFO queue (QueueResponse/QueueError)
// when consecutive calls to the same command must differ.
type MockTransport struct {
	responses map[byte][]byte
	errorMap  map[byte]error
	queues    map[byte][]mockResult
	callCount map[byte]int
	calls     []MockCall
	timeout   time.Duration
	delay     time.Duration
	mu        syncutil.RWMutex
	connected bool
}

type mockResult struct {
	response []byte
	err      error
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
		responses: make(map[byte][]byte),
		errorMap:  make(map[byte]error),
		queues:    make(map[byte][]mockResult),
		callCount: make(map[byte]int),
	}
}

// SendCommand implements Transport interface
func (m *MockTransport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	return m.SendCommandWithContext(context.Background(), cmd, args)
}

// SendCommandWithContext implements Transport interface with context support
func (m *MockTransport) SendCommandWithContext(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	m.mu.RUnlock()

	if !connected {
		return nil, errors.New("transport not connected")
	}

	// Simulate hardware delay if configured
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount[cmd]++
	argsCopy := make([]byte, len(args))
	copy(argsCopy, args)
	m.calls = append(m.calls, MockCall{Cmd: cmd, Args: argsCopy})

	// Queued results take precedence and are consumed in order.
	if q := m.queues[cmd]; len(q) > 0 {
		next := q[0]
		m.queues[cmd] = q[1:]
		return next.response, next.err
	}

	if err, exists := m.errorMap[cmd]; exists {
		return nil, err
	}
	if response, exists := m.responses[cmd]; exists {
		return response, nil
	}

	// Default response for unknown commands: response code + success status
	return []byte{cmd + 1, 0x00}, nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetResponse configures a fixed response for a specific command
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	m.responses[cmd] = response
	m.mu.Unlock()
}

// SetError configures an error to be returned for a specific command
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// QueueResponse appends a one-shot response for a command. Queued
// results are consumed before any fixed response or error.
func (m *MockTransport) QueueResponse(cmd byte, response []byte) {
	m.mu.Lock()
	m.queues[cmd] = append(m.queues[cmd], mockResult{response: response})
	m.mu.Unlock()
}

// QueueError appends a one-shot error for a command.
func (m *MockTransport) QueueError(cmd byte, err error) {
	m.mu.Lock()
	m.queues[cmd] = append(m.queues[cmd], mockResult{err: err})
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// SetConnected overrides the connection state
func (m *MockTransport) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// GetCallCount returns how many times a command was called
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.RLock()
	count := m.callCount[cmd]
	m.mu.RUnlock()
	return count
}

// CallsFor returns the recorded calls for one command, in order.
func (m *MockTransport) CallsFor(cmd byte) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MockCall
	for _, c := range m.calls {
		if c.Cmd == cmd {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all call records, queues, and injected results
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[byte]int)
	m.calls = nil
	m.queues = make(map[byte][]mockResult)
	m.responses = make(map[byte][]byte)
	m.errorMap = make(map[byte]error)
	m.connected = true
	m.mu.Unlock()
}
