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

package ndef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeURIPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		uri        string
		wantCode   byte
		wantSuffix string
	}{
		{
			name:       "https www prefers longer prefix",
			uri:        "https://www.example.com",
			wantCode:   0x02,
			wantSuffix: "example.com",
		},
		{
			name:       "https bare",
			uri:        "https://example.com",
			wantCode:   0x04,
			wantSuffix: "example.com",
		},
		{
			name:       "http local printer",
			uri:        "http://printer.local:7125",
			wantCode:   0x03,
			wantSuffix: "printer.local:7125",
		},
		{
			name:       "http www",
			uri:        "http://www.example.com",
			wantCode:   0x01,
			wantSuffix: "example.com",
		},
		{
			name:       "mailto",
			uri:        "mailto:user@example.com",
			wantCode:   0x06,
			wantSuffix: "user@example.com",
		},
		{
			name:       "no matching prefix",
			uri:        "geo:48.2,16.3",
			wantCode:   0x00,
			wantSuffix: "geo:48.2,16.3",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload := EncodeURIPayload(tt.uri)
			require.NotEmpty(t, payload)
			assert.Equal(t, tt.wantCode, payload[0])
			assert.Equal(t, tt.wantSuffix, string(payload[1:]))
		})
	}
}

func TestParseURIRecord(t *testing.T) {
	t.Parallel()

	uri, err := ParseURIRecord(append([]byte{0x03}, "printer.local:7125"...))
	require.NoError(t, err)
	assert.Equal(t, "http://printer.local:7125", uri)

	_, err = ParseURIRecord(nil)
	assert.ErrorIs(t, err, ErrURIPayloadTooShort)

	_, err = ParseURIRecord([]byte{0x7F, 'x'})
	assert.ErrorIs(t, err, ErrURIInvalidPrefixCode)
}

func TestValidateURI(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateURI("http://192.168.1.50:7125"))
	assert.NoError(t, ValidateURI("https://example.com/path?q=1"))

	assert.ErrorIs(t, ValidateURI(""), ErrInvalidURI)
	assert.ErrorIs(t, ValidateURI("printer.local:7125/path"), ErrInvalidURI)
	assert.ErrorIs(t, ValidateURI("http://exa mple.com"), ErrInvalidURI)
}

func TestEncodeURIMessage(t *testing.T) {
	t.Parallel()

	msg, err := EncodeURIMessage("http://printer.local:7125")
	require.NoError(t, err)

	// Single short record: MB|ME|SR|WellKnown, type "U", compressed payload.
	require.GreaterOrEqual(t, len(msg), 5)
	assert.Equal(t, byte(0xD1), msg[0])
	assert.Equal(t, byte(0x01), msg[1])
	assert.Equal(t, byte(1+len("printer.local:7125")), msg[2])
	assert.Equal(t, byte('U'), msg[3])
	assert.Equal(t, byte(0x03), msg[4])

	_, err = EncodeURIMessage("not a uri")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

func TestURIMessageRoundTrip(t *testing.T) {
	t.Parallel()

	for _, uri := range []string{
		"http://printer.local:7125",
		"https://www.example.com/status",
		"http://10.0.0.5",
	} {
		msg, err := EncodeURIMessage(uri)
		require.NoError(t, err)

		got, err := DecodeURIMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, uri, got)
	}
}

func TestDecodeURIMessageRejectsOtherRecords(t *testing.T) {
	t.Parallel()

	rec := &Record{TNF: TNFWellKnown, Type: "T", Payload: []byte{0x02, 'e', 'n', 'h', 'i'}}
	msg := &Message{Records: []*Record{rec}}
	data, err := msg.Marshal()
	require.NoError(t, err)

	_, err = DecodeURIMessage(data)
	assert.ErrorIs(t, err, ErrNotURIRecord)
}

func TestURIPrefixString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://", URIPrefixString(0x03))
	assert.Equal(t, "", URIPrefixString(0x00))
	assert.Equal(t, "", URIPrefixString(0xFF))
}
