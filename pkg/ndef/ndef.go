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

// Package ndef implements the subset of the NFC Forum NDEF data format
// needed to build and parse URI records.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TNF (Type Name Format) values as defined by NFC Forum.
const (
	TNFEmpty       byte = 0x00 // Empty record
	TNFWellKnown   byte = 0x01 // NFC Forum well-known type
	TNFMedia       byte = 0x02 // Media-type (RFC 2046)
	TNFAbsoluteURI byte = 0x03 // Absolute URI (RFC 3986)
	TNFExternal    byte = 0x04 // NFC Forum external type
	TNFUnknown     byte = 0x05 // Unknown
	TNFUnchanged   byte = 0x06 // Unchanged (for chunked records)
	TNFReserved    byte = 0x07 // Reserved

	tnfMask           byte = 0x07
	flagMB            byte = 0x80
	flagME            byte = 0x40
	flagCF            byte = 0x20
	flagSR            byte = 0x10
	flagIL            byte = 0x08
	shortRecordMaxLen      = 255
)

// Common errors.
var (
	ErrEmptyMessage    = errors.New("ndef: empty message")
	ErrTruncatedRecord = errors.New("ndef: truncated record data")
	ErrInvalidTNF      = errors.New("ndef: invalid TNF value")
	ErrChunkedRecord   = errors.New("ndef: chunked records not supported")
)

// Record represents a single NDEF record. Record IDs are not supported;
// incoming IDs are skipped on parse and never emitted on marshal.
type Record struct {
	Type    string
	Payload []byte
	TNF     byte
	mb      bool
	me      bool
}

// MB returns true if this record is the first in a message.
func (r *Record) MB() bool { return r.mb }

// ME returns true if this record is the last in a message.
func (r *Record) ME() bool { return r.me }

// Message represents an NDEF message containing one or more records.
type Message struct {
	Records []*Record
}

// Marshal serializes the NDEF message to bytes. MB and ME flags are set
// from record position, overriding whatever the records carried.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Records) == 0 {
		return nil, ErrEmptyMessage
	}

	var result []byte
	for i, rec := range m.Records {
		rec.mb = i == 0
		rec.me = i == len(m.Records)-1

		data, err := rec.Marshal()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		result = append(result, data...)
	}
	return result, nil
}

// Unmarshal parses NDEF message data and returns the number of bytes
// consumed. Parsing stops at the first record with the ME flag set.
func (m *Message) Unmarshal(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyMessage
	}

	m.Records = nil
	offset := 0
	for offset < len(data) {
		rec := &Record{}
		n, err := rec.Unmarshal(data[offset:])
		if err != nil {
			return offset, fmt.Errorf("record at offset %d: %w", offset, err)
		}
		m.Records = append(m.Records, rec)
		offset += n
		if rec.me {
			break
		}
	}

	return offset, nil
}

// Marshal serializes a single NDEF record to bytes.
func (r *Record) Marshal() ([]byte, error) {
	if r.TNF&^tnfMask != 0 {
		return nil, ErrInvalidTNF
	}

	typeBytes := []byte(r.Type)
	payloadLen := len(r.Payload)

	flags := r.TNF
	if r.mb {
		flags |= flagMB
	}
	if r.me {
		flags |= flagME
	}
	short := payloadLen <= shortRecordMaxLen
	if short {
		flags |= flagSR
	}

	headerLen := 3
	if !short {
		headerLen = 6
	}
	result := make([]byte, 0, headerLen+len(typeBytes)+payloadLen)
	result = append(result, flags, byte(len(typeBytes)))
	if short {
		result = append(result, byte(payloadLen))
	} else {
		result = binary.BigEndian.AppendUint32(result, uint32(payloadLen)) //nolint:gosec // non-negative len()
	}
	result = append(result, typeBytes...)
	result = append(result, r.Payload...)

	return result, nil
}

// Unmarshal parses a single NDEF record and returns the number of bytes
// consumed.
func (r *Record) Unmarshal(data []byte) (int, error) {
	if len(data) < 3 {
		return 0, ErrTruncatedRecord
	}

	flags := data[0]
	r.TNF = flags & tnfMask
	r.mb = flags&flagMB != 0
	r.me = flags&flagME != 0

	if flags&flagCF != 0 {
		return 0, ErrChunkedRecord
	}
	if r.TNF == TNFReserved {
		return 0, ErrInvalidTNF
	}

	typeLen := int(data[1])
	offset := 2

	var payloadLen int
	if flags&flagSR != 0 {
		payloadLen = int(data[offset])
		offset++
	} else {
		if offset+4 > len(data) {
			return 0, ErrTruncatedRecord
		}
		payloadLen = int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
	}

	var idLen int
	if flags&flagIL != 0 {
		if offset >= len(data) {
			return 0, ErrTruncatedRecord
		}
		idLen = int(data[offset])
		offset++
	}

	if offset+typeLen+idLen+payloadLen > len(data) {
		return 0, ErrTruncatedRecord
	}

	r.Type = string(data[offset : offset+typeLen])
	offset += typeLen + idLen // record IDs are skipped
	r.Payload = make([]byte, payloadLen)
	copy(r.Payload, data[offset:offset+payloadLen])
	offset += payloadLen

	return offset, nil
}
