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

// Package config handles configuration loading and validation for klippynfc.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the complete daemon configuration.
type Config struct {
	NFC NFCConfig `toml:"nfc"`
}

// NFCConfig configures the PN532 module.
type NFCConfig struct {
	// Mode is "emulate" or "write".
	Mode string `toml:"mode"`

	// Device is the transport device path, e.g. /dev/ttyAMA0 or
	// /dev/spidev0.0.
	Device string `toml:"device"`

	// Port is the web interface port used when composing the default
	// URL. Ignored when URL is set.
	Port int `toml:"port"`

	// URL overrides the automatically resolved URL when non-empty.
	URL string `toml:"url"`

	// UID is the emulated tag identity as 6 hex digits.
	UID string `toml:"uid"`

	// TagCapacity is the assumed Type-2 data area size in bytes.
	TagCapacity int `toml:"tag_capacity"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		NFC: NFCConfig{
			Mode:        "emulate",
			Device:      "/dev/ttyAMA0",
			Port:        7125,
			UID:         "010203",
			TagCapacity: 144,
		},
	}
}

// Load reads and parses the configuration file at path, layering it
// over the defaults. A missing file is not an error: the defaults are
// returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.NFC.Mode {
	case "emulate", "write":
	default:
		return fmt.Errorf("nfc.mode must be \"emulate\" or \"write\", got %q", c.NFC.Mode)
	}
	if c.NFC.Port <= 0 || c.NFC.Port > 65535 {
		return fmt.Errorf("nfc.port %d out of range", c.NFC.Port)
	}
	if c.NFC.TagCapacity <= 0 || c.NFC.TagCapacity%8 != 0 {
		return fmt.Errorf("nfc.tag_capacity %d must be a positive multiple of 8", c.NFC.TagCapacity)
	}
	if _, err := c.NFC.UIDBytes(); err != nil {
		return err
	}
	return nil
}

// UIDBytes decodes the configured UID into its 3-byte wire form.
func (c *NFCConfig) UIDBytes() ([3]byte, error) {
	var uid [3]byte
	raw, err := hex.DecodeString(c.UID)
	if err != nil {
		return uid, fmt.Errorf("nfc.uid %q is not valid hex: %w", c.UID, err)
	}
	if len(raw) != len(uid) {
		return uid, fmt.Errorf("nfc.uid %q must be exactly %d bytes", c.UID, len(uid))
	}
	copy(uid[:], raw)
	return uid, nil
}
