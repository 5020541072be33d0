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

import "bytes"

// Type-4 tag application and file identifiers.
var (
	ndefAID    = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	ccFileID   = []byte{0xE1, 0x03}
	ndefFileID = []byte{0xE1, 0x04}
)

// APDU instructions served by the emulated tag.
const (
	insSelect     = 0xA4
	insReadBinary = 0xB0
)

// ISO7816 status words.
var (
	swOK              = []byte{0x90, 0x00}
	swWrongLength     = []byte{0x67, 0x00}
	swNotAllowed      = []byte{0x69, 0x86}
	swFileNotFound    = []byte{0x6A, 0x82}
	swIncorrectParams = []byte{0x6A, 0x86}
	swWrongOffset     = []byte{0x6B, 0x00}
	swInsNotSupported = []byte{0x6D, 0x00}
)

// Selected file states within a Type-4 exchange.
type selectedFile int

const (
	fileNone selectedFile = iota
	fileCC
	fileNDEF
)

// type4Session serves the read-only Type-4 tag file system for one
// activation: SELECT application by AID, SELECT the CC or NDEF file by
// ID, then READ BINARY from the selected file. Purely computational;
// the emulator moves the bytes over the wire.
type type4Session struct {
	ccFile   []byte
	ndefFile []byte
	selected selectedFile
}

// newType4Session builds the session files for one NDEF message. The
// NDEF file is the 2-byte big-endian message length followed by the
// message itself.
func newType4Session(ndefMsg []byte) *type4Session {
	ndefFile := make([]byte, 0, 2+len(ndefMsg))
	ndefFile = append(ndefFile, byte(len(ndefMsg)>>8), byte(len(ndefMsg)&0xFF))
	ndefFile = append(ndefFile, ndefMsg...)
	return &type4Session{
		ccFile:   buildCapabilityContainer(len(ndefFile)),
		ndefFile: ndefFile,
	}
}

// buildCapabilityContainer builds the 15-byte CC file: CCLEN, mapping
// version 2.0, MLe/MLc, and the NDEF File Control TLV marking the NDEF
// file readable and write-locked.
//
// MLe declares 59 bytes per R-APDU but real phones often read in
// smaller chunks; the READ BINARY handler serves whatever offset and
// length they ask for.
func buildCapabilityContainer(ndefFileSize int) []byte {
	return []byte{
		0x00, 0x0F, // CCLEN (15 bytes)
		0x20,       // Mapping version 2.0
		0x00, 0x3B, // MLe: max R-APDU data size
		0x00, 0x34, // MLc: max C-APDU data size
		0x04,       // T: NDEF File Control TLV
		0x06,       // L: 6 bytes follow
		ndefFileID[0], ndefFileID[1],
		byte(ndefFileSize >> 8), byte(ndefFileSize & 0xFF),
		0x00, // Read access: free
		0xFF, // Write access: none
	}
}

// handleAPDU processes one command APDU and returns the full response
// including the trailing status word.
func (s *type4Session) handleAPDU(apdu []byte) []byte {
	if len(apdu) < 4 {
		return swWrongLength
	}

	ins := apdu[1]
	p1 := apdu[2]
	p2 := apdu[3]

	switch ins {
	case insSelect:
		return s.handleSelect(p1, apdu)
	case insReadBinary:
		return s.handleReadBinary(p1, p2, apdu)
	default:
		Debugf("unsupported INS 0x%02X", ins)
		return swInsNotSupported
	}
}

// handleSelect handles SELECT by AID (P1=0x04) and SELECT by file ID
// (P1=0x00).
func (s *type4Session) handleSelect(p1 byte, apdu []byte) []byte {
	switch p1 {
	case 0x04:
		aid, ok := selectData(apdu)
		if !ok {
			return swWrongLength
		}
		if !bytes.Equal(aid, ndefAID) {
			Debugf("unknown AID %X", aid)
			return swFileNotFound
		}
		Debugln("NDEF application selected")
		return swOK

	case 0x00:
		fileID, ok := selectData(apdu)
		if !ok {
			return swWrongLength
		}
		switch {
		case bytes.Equal(fileID, ccFileID):
			s.selected = fileCC
			Debugln("CC file selected")
			return swOK
		case bytes.Equal(fileID, ndefFileID):
			s.selected = fileNDEF
			Debugln("NDEF file selected")
			return swOK
		default:
			Debugf("unknown file ID %X", fileID)
			return swFileNotFound
		}

	default:
		Debugf("unsupported SELECT P1 0x%02X", p1)
		return swIncorrectParams
	}
}

// handleReadBinary serves READ BINARY from the selected file. P1/P2
// carry the big-endian offset, the Lc byte the requested length.
func (s *type4Session) handleReadBinary(p1, p2 byte, apdu []byte) []byte {
	var file []byte
	switch s.selected {
	case fileCC:
		file = s.ccFile
	case fileNDEF:
		file = s.ndefFile
	default:
		Debugln("READ BINARY without file selected")
		return swNotAllowed
	}

	offset := int(p1)<<8 | int(p2)
	length := 0
	if len(apdu) > 4 {
		length = int(apdu[4])
	}
	if offset >= len(file) {
		return swWrongOffset
	}

	end := offset + length
	if end > len(file) {
		end = len(file)
	}
	response := make([]byte, 0, end-offset+2)
	response = append(response, file[offset:end]...)
	response = append(response, swOK...)
	return response
}

// selectData extracts the Lc-prefixed data field of a SELECT APDU.
func selectData(apdu []byte) ([]byte, bool) {
	if len(apdu) < 5 {
		return nil, false
	}
	dataLen := int(apdu[4])
	if len(apdu) < 5+dataLen {
		return nil, false
	}
	return apdu[5 : 5+dataLen], true
}
