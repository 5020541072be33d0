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

// Package frame implements the PN532 host frame format shared by the
// SPI and UART transports.
package frame

import "errors"

// Frame direction constants - these indicate the direction of data flow
const (
	HostToPn532 = 0xD4 // Commands from host to PN532
	Pn532ToHost = 0xD5 // Responses from PN532 to host
)

// Frame markers and control bytes
const (
	Preamble   = 0x00 // Frame preamble byte
	StartCode1 = 0x00 // Start code byte 1
	StartCode2 = 0xFF // Start code byte 2
	Postamble  = 0x00 // Frame postamble byte
)

// ErrorTFI marks an application-level error frame from the PN532.
const ErrorTFI = 0x7F

// Frame size limits
const (
	MaxFrameDataLength = 263 // Maximum data length in frame (PN532 spec)
	MinFrameLength     = 6   // Minimum frame length (preamble + startcode + len + lcs + tfi + dcs)
)

// ACK and NACK frames - these are used for flow control
var (
	AckFrame  = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
)

// Errors returned while decoding a response frame.
var (
	ErrTooShort    = errors.New("frame too short")
	ErrBadStart    = errors.New("frame start code not found")
	ErrBadLength   = errors.New("frame length checksum mismatch")
	ErrBadChecksum = errors.New("frame data checksum mismatch")
	ErrBadTFI      = errors.New("unexpected frame identifier")
	ErrErrorFrame  = errors.New("pn532 error frame")
)

// CalculateChecksum computes the checksum for a data buffer
// This is a simple sum of all bytes in the provided data
func CalculateChecksum(data []byte) byte {
	chk := byte(0)
	for _, b := range data {
		chk += b
	}
	return chk
}

// BuildCommand wraps a command byte and its arguments in a complete
// host-to-PN532 frame, ready to be written to the wire.
func BuildCommand(cmd byte, args []byte) []byte {
	dataLen := len(args) + 2 // TFI + command
	out := make([]byte, 0, dataLen+7)
	out = append(out, Preamble, StartCode1, StartCode2)
	out = append(out, byte(dataLen), byte(-dataLen)) // LEN, LCS
	out = append(out, HostToPn532, cmd)
	out = append(out, args...)
	dcs := byte(-(HostToPn532 + cmd + CalculateChecksum(args)))
	out = append(out, dcs, Postamble)
	return out
}

// IsAck reports whether buf begins with a PN532 ACK frame.
func IsAck(buf []byte) bool {
	if len(buf) < len(AckFrame) {
		return false
	}
	for i, b := range AckFrame {
		if buf[i] != b {
			return false
		}
	}
	return true
}

// Decode parses a raw response frame and returns the payload with the
// TFI stripped, so the first byte is the response code. An error frame
// (TFI 0x7F) is reported as ErrErrorFrame.
func Decode(buf []byte) ([]byte, error) {
	if len(buf) < MinFrameLength {
		return nil, ErrTooShort
	}
	// Find the 00 FF start code; preamble length varies by transport.
	start := -1
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == StartCode1 && buf[i+1] == StartCode2 {
			start = i + 2
			break
		}
	}
	if start < 0 {
		return nil, ErrBadStart
	}
	if start+2 > len(buf) {
		return nil, ErrTooShort
	}

	frameLen := int(buf[start])
	lcs := buf[start+1]
	if (frameLen+int(lcs))&0xFF != 0 {
		return nil, ErrBadLength
	}

	body := start + 2
	if body+frameLen+1 > len(buf) {
		return nil, ErrTooShort
	}
	if frameLen < 1 {
		return nil, ErrTooShort
	}

	tfi := buf[body]
	if tfi == ErrorTFI {
		return nil, ErrErrorFrame
	}
	if tfi != Pn532ToHost {
		return nil, ErrBadTFI
	}

	dcs := buf[body+frameLen]
	if CalculateChecksum(buf[body:body+frameLen])+dcs != 0 {
		return nil, ErrBadChecksum
	}

	payload := make([]byte, frameLen-1)
	copy(payload, buf[body+1:body+frameLen])
	return payload, nil
}
