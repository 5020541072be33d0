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
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// URIRecordType is the NFC Forum well-known type for URI records.
const URIRecordType = "U"

// URI record errors.
var (
	ErrInvalidURI           = errors.New("ndef: invalid URI")
	ErrURIPayloadTooShort   = errors.New("ndef: URI payload too short")
	ErrURIInvalidPrefixCode = errors.New("ndef: invalid URI prefix code")
	ErrNotURIRecord         = errors.New("ndef: not a URI record")
)

// URI prefix codes as defined by NFC Forum URI RTD specification.
// Index 0 means no prefix (raw URI).
var uriPrefixes = []string{
	"",                           // 0x00 - No prepending
	"http://www.",                // 0x01
	"https://www.",               // 0x02
	"http://",                    // 0x03
	"https://",                   // 0x04
	"tel:",                       // 0x05
	"mailto:",                    // 0x06
	"ftp://anonymous:anonymous@", // 0x07
	"ftp://ftp.",                 // 0x08
	"ftps://",                    // 0x09
	"sftp://",                    // 0x0A
	"smb://",                     // 0x0B
	"nfs://",                     // 0x0C
	"ftp://",                     // 0x0D
	"dav://",                     // 0x0E
	"news:",                      // 0x0F
	"telnet://",                  // 0x10
	"imap:",                      // 0x11
	"rtsp://",                    // 0x12
	"urn:",                       // 0x13
	"pop:",                       // 0x14
	"sip:",                       // 0x15
	"sips:",                      // 0x16
	"tftp:",                      // 0x17
	"btspp://",                   // 0x18
	"btl2cap://",                 // 0x19
	"btgoep://",                  // 0x1A
	"tcpobex://",                 // 0x1B
	"irdaobex://",                // 0x1C
	"file://",                    // 0x1D
	"urn:epc:id:",                // 0x1E
	"urn:epc:tag:",               // 0x1F
	"urn:epc:pat:",               // 0x20
	"urn:epc:raw:",               // 0x21
	"urn:epc:",                   // 0x22
	"urn:nfc:",                   // 0x23
}

// ValidateURI checks that a string is a URL a phone can act on when it
// reads the tag: absolute, parseable, http or https, with a host.
func ValidateURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURI, uri)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidURI, uri)
	}
	return nil
}

// NewURIRecord creates a new NDEF URI record. The URI is compressed
// using the NFC Forum prefix table; the longest matching prefix wins.
func NewURIRecord(uri string) *Record {
	return &Record{
		TNF:     TNFWellKnown,
		Type:    URIRecordType,
		Payload: EncodeURIPayload(uri),
	}
}

// EncodeURIMessage validates a URI and returns a complete single-record
// NDEF message holding it.
func EncodeURIMessage(uri string) ([]byte, error) {
	if err := ValidateURI(uri); err != nil {
		return nil, err
	}
	msg := &Message{Records: []*Record{NewURIRecord(uri)}}
	return msg.Marshal()
}

// DecodeURIMessage parses an NDEF message and returns the URI from its
// first record.
func DecodeURIMessage(data []byte) (string, error) {
	msg := &Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return "", err
	}
	if len(msg.Records) == 0 {
		return "", ErrEmptyMessage
	}
	rec := msg.Records[0]
	if rec.TNF != TNFWellKnown || rec.Type != URIRecordType {
		return "", ErrNotURIRecord
	}
	return ParseURIRecord(rec.Payload)
}

// ParseURIRecord extracts the full URI from a URI record payload.
func ParseURIRecord(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", ErrURIPayloadTooShort
	}

	prefixCode := int(payload[0])
	if prefixCode >= len(uriPrefixes) {
		return "", ErrURIInvalidPrefixCode
	}

	return uriPrefixes[prefixCode] + string(payload[1:]), nil
}

// EncodeURIPayload creates a URI record payload with optimal prefix
// compression.
func EncodeURIPayload(uri string) []byte {
	// Search in reverse order so longer prefixes win
	// (e.g. "https://www." over "https://").
	bestMatch := 0
	bestLen := 0
	for i := len(uriPrefixes) - 1; i >= 1; i-- {
		prefix := uriPrefixes[i]
		if strings.HasPrefix(uri, prefix) && len(prefix) > bestLen {
			bestMatch = i
			bestLen = len(prefix)
		}
	}

	suffix := uri[bestLen:]
	payload := make([]byte, 1+len(suffix))
	payload[0] = byte(bestMatch)
	copy(payload[1:], suffix)

	return payload
}

// URIPrefixString returns the prefix string for a given code.
// Returns empty string for invalid codes.
func URIPrefixString(code byte) string {
	if int(code) < len(uriPrefixes) {
		return uriPrefixes[code]
	}
	return ""
}
