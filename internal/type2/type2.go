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

// Package type2 lays an NDEF message out into the Type-2 tag memory
// model: 4-byte pages, a Capability Container at page 4, and the
// TLV-wrapped message in the data pages that follow.
package type2

import (
	"errors"
	"fmt"
)

// Type-2 memory layout constants.
const (
	PageSize      = 4   // Bytes per page, the atomic write unit
	CCPage        = 4   // Capability Container page index
	DataStartPage = 5   // First data page
	ccMagic       = 0xE1
	ccVersion     = 0x10
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE

	// DefaultCapacity is the NTAG213 user memory size in bytes.
	DefaultCapacity = 144

	shortTLVMax = 254 // Largest message length the short TLV form can carry
)

// Planner errors.
var (
	ErrCapacityExceeded = errors.New("type2: message exceeds tag capacity")
	ErrInvalidCapacity  = errors.New("type2: invalid tag capacity")
	ErrEmptyMessage     = errors.New("type2: empty ndef message")
)

// PageWrite is one planned page: an absolute page index and the 4 bytes
// to store there.
type PageWrite struct {
	Index int
	Data  [PageSize]byte
}

// WritePlan is the ordered, contiguous page sequence for one message.
// Pages[0] is always the Capability Container at page 4.
type WritePlan struct {
	Pages []PageWrite
	// Bytes is the NDEF message length carried by the plan, excluding
	// TLV framing and padding.
	Bytes int
}

// PageCount returns the number of pages in the plan.
func (p *WritePlan) PageCount() int { return len(p.Pages) }

// Plan wraps an NDEF message in TLV framing and slices it into pages
// for a tag with the given user-memory capacity in bytes. The message
// must fit within capacity including TLV overhead and the terminator;
// a message that lands exactly at capacity is accepted.
func Plan(ndefMsg []byte, capacity int) (*WritePlan, error) {
	if len(ndefMsg) == 0 {
		return nil, ErrEmptyMessage
	}
	if capacity <= 0 || capacity%8 != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	// Overhead is TLV type+length plus the terminator byte.
	required := 3 + len(ndefMsg) + 1
	if len(ndefMsg) > shortTLVMax {
		required = 4 + len(ndefMsg) + 1
	}
	if required > capacity {
		return nil, fmt.Errorf("%w: need %d bytes, tag holds %d",
			ErrCapacityExceeded, required, capacity)
	}

	// TLV stream: 03 <len> ... FE, long form 03 FF <hi> <lo> ... FE.
	stream := make([]byte, 0, required)
	if len(ndefMsg) > shortTLVMax {
		stream = append(stream, tlvNDEF, 0xFF,
			byte(len(ndefMsg)>>8), byte(len(ndefMsg)&0xFF))
	} else {
		stream = append(stream, tlvNDEF, byte(len(ndefMsg)))
	}
	stream = append(stream, ndefMsg...)
	stream = append(stream, tlvTerminator)

	plan := &WritePlan{Bytes: len(ndefMsg)}
	plan.Pages = append(plan.Pages, PageWrite{
		Index: CCPage,
		Data:  [PageSize]byte{ccMagic, ccVersion, byte(capacity / 8), 0x00},
	})

	// Data pages, zero-padded to the page boundary.
	for off, page := 0, DataStartPage; off < len(stream); off, page = off+PageSize, page+1 {
		pw := PageWrite{Index: page}
		copy(pw.Data[:], stream[off:])
		plan.Pages = append(plan.Pages, pw)
	}

	return plan, nil
}
