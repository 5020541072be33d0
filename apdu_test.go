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
	"testing"

	"github.com/erikbuild/klippyNFC/pkg/ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectAIDAPDU() []byte {
	apdu := []byte{0x00, 0xA4, 0x04, 0x00, byte(len(ndefAID))}
	return append(apdu, ndefAID...)
}

func selectFileAPDU(fileID []byte) []byte {
	return []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, fileID[0], fileID[1]}
}

func readBinaryAPDU(offset, length int) []byte {
	return []byte{0x00, 0xB0, byte(offset >> 8), byte(offset & 0xFF), byte(length)}
}

func newSessionForURL(t *testing.T, url string) *type4Session {
	t.Helper()
	msg, err := ndef.EncodeURIMessage(url)
	require.NoError(t, err)
	return newType4Session(msg)
}

func TestType4FullReadFlow(t *testing.T) {
	session := newSessionForURL(t, "https://printer.local:7125")

	// SELECT the NDEF application by AID.
	resp := session.handleAPDU(selectAIDAPDU())
	assert.Equal(t, swOK, resp)

	// SELECT and read the capability container.
	resp = session.handleAPDU(selectFileAPDU(ccFileID))
	assert.Equal(t, swOK, resp)

	resp = session.handleAPDU(readBinaryAPDU(0, 15))
	require.Len(t, resp, 17)
	cc := resp[:15]
	assert.Equal(t, swOK, resp[15:])
	assert.Equal(t, []byte{0x00, 0x0F, 0x20}, cc[:3])
	assert.Equal(t, ndefFileID, cc[9:11])
	assert.Equal(t, byte(0x00), cc[13]) // read allowed
	assert.Equal(t, byte(0xFF), cc[14]) // write locked

	// SELECT the NDEF file, read the length prefix, then the message.
	resp = session.handleAPDU(selectFileAPDU(ndefFileID))
	assert.Equal(t, swOK, resp)

	resp = session.handleAPDU(readBinaryAPDU(0, 2))
	require.Len(t, resp, 4)
	msgLen := int(resp[0])<<8 | int(resp[1])

	resp = session.handleAPDU(readBinaryAPDU(2, msgLen))
	require.Len(t, resp, msgLen+2)
	assert.Equal(t, swOK, resp[msgLen:])

	url, err := ndef.DecodeURIMessage(resp[:msgLen])
	require.NoError(t, err)
	assert.Equal(t, "https://printer.local:7125", url)
}

func TestType4ChunkedRead(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")
	session.handleAPDU(selectAIDAPDU())
	session.handleAPDU(selectFileAPDU(ndefFileID))

	// Read the whole file in 4-byte chunks, the way some phones do.
	var file []byte
	for offset := 0; ; offset += 4 {
		resp := session.handleAPDU(readBinaryAPDU(offset, 4))
		if assert.True(t, len(resp) >= 2) {
			if string(resp) == string(swWrongOffset) {
				break
			}
			require.Equal(t, swOK, resp[len(resp)-2:])
			file = append(file, resp[:len(resp)-2]...)
			if len(resp)-2 < 4 {
				break
			}
		}
	}

	msgLen := int(file[0])<<8 | int(file[1])
	url, err := ndef.DecodeURIMessage(file[2 : 2+msgLen])
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", url)
}

func TestType4SelectUnknownAID(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")

	apdu := []byte{0x00, 0xA4, 0x04, 0x00, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05}
	assert.Equal(t, swFileNotFound, session.handleAPDU(apdu))
}

func TestType4SelectUnknownFile(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")
	assert.Equal(t, swFileNotFound, session.handleAPDU(selectFileAPDU([]byte{0xE1, 0x05})))
}

func TestType4ReadWithoutSelect(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")
	assert.Equal(t, swNotAllowed, session.handleAPDU(readBinaryAPDU(0, 15)))
}

func TestType4ReadPastEnd(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")
	session.handleAPDU(selectFileAPDU(ccFileID))
	assert.Equal(t, swWrongOffset, session.handleAPDU(readBinaryAPDU(100, 4)))
}

func TestType4ReadTruncatesAtFileEnd(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")
	session.handleAPDU(selectFileAPDU(ccFileID))

	resp := session.handleAPDU(readBinaryAPDU(10, 50))
	assert.Len(t, resp, 5+2) // 5 remaining CC bytes plus status
	assert.Equal(t, swOK, resp[5:])
}

func TestType4UnsupportedInstruction(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")

	// UPDATE BINARY: the emulated tag is read-only.
	apdu := []byte{0x00, 0xD6, 0x00, 0x00, 0x02, 0xAA, 0xBB}
	assert.Equal(t, swInsNotSupported, session.handleAPDU(apdu))
}

func TestType4ShortAPDU(t *testing.T) {
	session := newSessionForURL(t, "http://example.com")
	assert.Equal(t, swWrongLength, session.handleAPDU([]byte{0x00, 0xA4}))
}

func TestCapabilityContainerFileSize(t *testing.T) {
	cc := buildCapabilityContainer(300)
	assert.Equal(t, byte(0x01), cc[11])
	assert.Equal(t, byte(0x2C), cc[12])
}
