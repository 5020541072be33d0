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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "klippynfc.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "emulate", cfg.NFC.Mode)
	assert.Equal(t, 7125, cfg.NFC.Port)
	assert.Equal(t, 144, cfg.NFC.TagCapacity)

	uid, err := cfg.NFC.UIDBytes()
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0x01, 0x02, 0x03}, uid)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[nfc]
mode = "write"
device = "/dev/spidev0.0"
port = 80
uid = "aabbcc"
tag_capacity = 504
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "write", cfg.NFC.Mode)
	assert.Equal(t, "/dev/spidev0.0", cfg.NFC.Device)
	assert.Equal(t, 80, cfg.NFC.Port)
	assert.Equal(t, 504, cfg.NFC.TagCapacity)

	uid, err := cfg.NFC.UIDBytes()
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0xAA, 0xBB, 0xCC}, uid)
}

func TestLoadPartialOverride(t *testing.T) {
	path := writeConfig(t, `
[nfc]
url = "http://octopi.local:5000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://octopi.local:5000", cfg.NFC.URL)
	assert.Equal(t, "emulate", cfg.NFC.Mode)
	assert.Equal(t, 7125, cfg.NFC.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "[nfc]\nmode = \"erase\"\n"},
		{"bad port", "[nfc]\nport = 0\n"},
		{"capacity not multiple of 8", "[nfc]\ntag_capacity = 100\n"},
		{"uid not hex", "[nfc]\nuid = \"zzzzzz\"\n"},
		{"uid wrong length", "[nfc]\nuid = \"0102\"\n"},
		{"unknown key", "[nfc]\nspeed = 9600\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
