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

// Package spi provides the SPI transport for the PN532.
package spi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	klippynfc "github.com/erikbuild/klippyNFC"
	"github.com/erikbuild/klippyNFC/internal/frame"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// SPI bus operation prefixes understood by the PN532.
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01

	defaultFreq = 1 * physic.MegaHertz
	// LSB-first ordering is handled by bit reversal, not the SPI mode.
	busMode = spi.Mode0
)

// Transport implements klippynfc.Transport over an SPI bus.
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	portName string
	timeout  time.Duration
}

// New opens the SPI port (e.g. "/dev/spidev0.0" or "SPI0.0") and wakes
// the PN532.
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, busMode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
		timeout:  50 * time.Millisecond,
	}
	t.wakeup()
	return t, nil
}

// wakeup clocks a dummy byte to bring the PN532 out of power-down.
func (t *Transport) wakeup() {
	time.Sleep(1 * time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, nil)
	time.Sleep(1 * time.Millisecond)
}

// reverseBit swaps bit order within a byte. The PN532 talks LSB first
// while the host SPI controllers here are MSB first.
func reverseBit(b byte) byte {
	var result byte
	for i := 0; i < 8; i++ {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

func reverseBytes(data []byte) []byte {
	reversed := make([]byte, len(data))
	for i, b := range data {
		reversed[i] = reverseBit(b)
	}
	return reversed
}

// waitReady polls the PN532 status byte until it reports ready.
func (t *Transport) waitReady() error {
	deadline := time.Now().Add(t.timeout)
	statusCmd := []byte{reverseBit(spiStatRead), 0}
	statusResp := make([]byte, 2)

	for time.Now().Before(deadline) {
		time.Sleep(1 * time.Millisecond)

		if err := t.conn.Tx(statusCmd, statusResp); err != nil {
			return fmt.Errorf("SPI status read failed: %w", err)
		}
		if reverseBit(statusResp[1]) == spiReady {
			return nil
		}

		time.Sleep(5 * time.Millisecond)
	}

	return klippynfc.NewTransportError("waitReady", t.portName,
		fmt.Errorf("%w: %w", klippynfc.ErrTransportTimeout, klippynfc.ErrTransportNotReady),
		klippynfc.ErrorTypeTimeout)
}

// SendCommand sends a command to the PN532 and waits for its response.
func (t *Transport) SendCommand(cmd byte, args []byte) ([]byte, error) {
	if t.conn == nil {
		return nil, klippynfc.NewTransportError("SendCommand", t.portName,
			klippynfc.ErrTransportClosed, klippynfc.ErrorTypePermanent)
	}
	if err := t.sendFrame(cmd, args); err != nil {
		return nil, err
	}
	if err := t.waitAck(); err != nil {
		return nil, err
	}

	// Give the PN532 time to process before polling for the response.
	time.Sleep(6 * time.Millisecond)

	return t.receiveFrame()
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

// sendFrame writes one command frame, bit-reversed, prefixed with the
// SPI data-write marker.
func (t *Transport) sendFrame(cmd byte, args []byte) error {
	wire := frame.BuildCommand(cmd, args)

	spiData := make([]byte, 0, len(wire)+1)
	spiData = append(spiData, reverseBit(spiDataWrite))
	spiData = append(spiData, reverseBytes(wire)...)

	time.Sleep(2 * time.Millisecond)
	if err := t.conn.Tx(spiData, nil); err != nil {
		return klippynfc.NewTransportError("sendFrame", t.portName,
			fmt.Errorf("%w: %w", klippynfc.ErrTransportWrite, err), klippynfc.ErrorTypeTransient)
	}
	return nil
}

// waitAck waits for the PN532 to acknowledge the last command.
func (t *Transport) waitAck() error {
	if err := t.waitReady(); err != nil {
		return err
	}

	readCmd := []byte{reverseBit(spiDataRead)}
	readData := make([]byte, len(frame.AckFrame)+1)
	if err := t.conn.Tx(readCmd, readData); err != nil {
		return klippynfc.NewTransportError("waitAck", t.portName,
			fmt.Errorf("%w: %w", klippynfc.ErrTransportRead, err), klippynfc.ErrorTypeTransient)
	}

	ack := reverseBytes(readData[1:])
	if !bytes.Equal(ack, frame.AckFrame) {
		if bytes.Equal(ack, frame.NackFrame) {
			return klippynfc.NewNoACKError("waitAck", t.portName)
		}
		return klippynfc.NewInvalidResponseError("waitAck", t.portName)
	}
	return nil
}

// receiveFrame reads one response frame. The returned payload starts
// with the response code; the TFI has been stripped.
func (t *Transport) receiveFrame() ([]byte, error) {
	if err := t.waitReady(); err != nil {
		return nil, err
	}

	// First read covers preamble, start code, LEN, and LCS.
	readCmd := []byte{reverseBit(spiDataRead)}
	headerData := make([]byte, 8)
	if err := t.conn.Tx(readCmd, headerData); err != nil {
		return nil, klippynfc.NewTransportError("receiveFrame", t.portName,
			fmt.Errorf("%w: %w", klippynfc.ErrTransportRead, err), klippynfc.ErrorTypeTransient)
	}
	header := reverseBytes(headerData[1:])

	if !bytes.Equal(header[0:3], []byte{0x00, 0x00, 0xFF}) {
		return nil, klippynfc.NewFrameCorruptedError("receiveFrame", t.portName)
	}
	length := header[3]
	if (header[3] + header[4]) != 0 {
		return nil, klippynfc.NewInvalidResponseError("receiveFrame", t.portName)
	}

	// Second read covers TFI, data, DCS, and postamble.
	bodyData := make([]byte, int(length)+3)
	if err := t.conn.Tx(readCmd, bodyData); err != nil {
		return nil, klippynfc.NewTransportError("receiveFrame", t.portName,
			fmt.Errorf("%w: %w", klippynfc.ErrTransportRead, err), klippynfc.ErrorTypeTransient)
	}
	body := reverseBytes(bodyData[1:])

	full := make([]byte, 0, len(header)+len(body))
	full = append(full, header...)
	full = append(full, body...)

	payload, err := frame.Decode(full)
	if err != nil {
		if errors.Is(err, frame.ErrErrorFrame) {
			return nil, klippynfc.NewInvalidResponseError("receiveFrame", t.portName)
		}
		return nil, klippynfc.NewFrameCorruptedError("receiveFrame", t.portName)
	}
	return payload, nil
}

// SetTimeout sets the ready-polling timeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Close releases the SPI port. A closed transport rejects further
// commands with ErrTransportClosed.
func (t *Transport) Close() error {
	t.conn = nil
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
		t.port = nil
	}
	return nil
}

// IsConnected reports whether the transport can still exchange frames.
func (t *Transport) IsConnected() bool {
	return t.conn != nil
}

// Type returns the transport type.
func (*Transport) Type() klippynfc.TransportType {
	return klippynfc.TransportSPI
}

var _ klippynfc.Transport = (*Transport)(nil)
