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

// PN532 Command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSamConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdTgGetData           = 0x86
	cmdTgInitAsTarget      = 0x8C
	cmdTgSetData           = 0x8E
)

// NTAG/Type-2 commands tunneled through InDataExchange
const (
	ntagCmdWrite = 0xA2 // Write one 4-byte page
)

// responseCode returns the expected first response byte for a command.
func responseCode(cmd byte) byte { return cmd + 1 }
