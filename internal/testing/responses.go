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

// Package testing provides canned PN532 responses for unit tests.
// Responses follow the transport convention: the TFI is stripped and
// the first byte is the response code (command + 1).
package testing

// Command bytes for reference
const (
	CmdGetFirmwareVersion  = 0x02
	CmdSAMConfiguration    = 0x14
	CmdRFConfiguration     = 0x32
	CmdInDataExchange      = 0x40
	CmdInListPassiveTarget = 0x4A
	CmdInRelease           = 0x52
	CmdTgGetData           = 0x86
	CmdTgInitAsTarget      = 0x8C
	CmdTgSetData           = 0x8E
)

// BuildFirmwareVersionResponse creates a GetFirmwareVersion response
func BuildFirmwareVersionResponse() []byte {
	// IC, Ver, Rev, Support: PN532 version 1.6 revision 7, ISO14443A/B + DEP
	return []byte{0x03, 0x32, 0x01, 0x06, 0x07}
}

// BuildSAMConfigurationResponse creates a SAMConfiguration response
func BuildSAMConfigurationResponse() []byte {
	return []byte{0x15}
}

// BuildRFConfigurationResponse creates an RFConfiguration response
func BuildRFConfigurationResponse() []byte {
	return []byte{0x33}
}

// BuildTagDetectionResponse creates an InListPassiveTarget response for
// one NTAG-style ISO14443A target with the given UID.
func BuildTagDetectionResponse(uid []byte) []byte {
	response := make([]byte, 0, 8+len(uid))
	// NbTg=1, Tg=1, SENS_RES, SAK, UID length
	response = append(response, 0x4B, 0x01, 0x01, 0x00, 0x44, 0x00, byte(len(uid)))
	response = append(response, uid...)
	return response
}

// BuildNoTagResponse creates an empty InListPassiveTarget response
func BuildNoTagResponse() []byte {
	return []byte{0x4B, 0x00} // No targets found
}

// BuildDataExchangeResponse creates a successful InDataExchange response
func BuildDataExchangeResponse(data []byte) []byte {
	response := make([]byte, 0, 2+len(data))
	response = append(response, 0x41, 0x00)
	response = append(response, data...)
	return response
}

// BuildWriteAckResponse creates the InDataExchange response for an
// acknowledged page write.
func BuildWriteAckResponse() []byte {
	return []byte{0x41, 0x00}
}

// BuildInReleaseResponse creates an InRelease response
func BuildInReleaseResponse() []byte {
	return []byte{0x53, 0x00}
}

// BuildStatusErrorResponse creates a response carrying a controller
// status error for the given command.
func BuildStatusErrorResponse(cmd, errorCode byte) []byte {
	return []byte{cmd + 1, errorCode}
}

// BuildTargetActivationResponse creates a TgInitAsTarget response: mode
// byte (ISO14443-4 PICC at 106 kbps) followed by the initiator's first
// command.
func BuildTargetActivationResponse(initiatorCmd []byte) []byte {
	response := make([]byte, 0, 2+len(initiatorCmd))
	response = append(response, 0x8D, 0x04)
	response = append(response, initiatorCmd...)
	return response
}

// BuildTgGetDataResponse creates a TgGetData response carrying a
// command APDU from the initiator.
func BuildTgGetDataResponse(apdu []byte) []byte {
	response := make([]byte, 0, 2+len(apdu))
	response = append(response, 0x87, 0x00)
	response = append(response, apdu...)
	return response
}

// BuildTgGetDataReleasedResponse creates a TgGetData response with the
// "target released by initiator" status.
func BuildTgGetDataReleasedResponse() []byte {
	return []byte{0x87, 0x29}
}

// BuildTgSetDataResponse creates a successful TgSetData response
func BuildTgSetDataResponse() []byte {
	return []byte{0x8F, 0x00}
}

// Common UIDs for testing
var (
	// TestNTAG213UID is a sample NTAG213 UID
	TestNTAG213UID = []byte{0x04, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56}
)
