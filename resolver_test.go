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
	"strings"
	"testing"

	"github.com/erikbuild/klippyNFC/pkg/ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeURL(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"standard port elided", "10.0.0.5", 80, "http://10.0.0.5"},
		{"moonraker port", "10.0.0.5", 7125, "http://10.0.0.5:7125"},
		{"hostname", "printer.local", 7125, "http://printer.local:7125"},
		{"ipv6 bracketed", "fe80::1", 7125, "http://[fe80::1]:7125"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, composeURL(tt.host, tt.port))
		})
	}
}

func TestResolveDefaultURLOverride(t *testing.T) {
	assert.Equal(t, "http://octopi.local:5000",
		ResolveDefaultURL(7125, "http://octopi.local:5000"))
}

func TestResolveDefaultURL(t *testing.T) {
	url := ResolveDefaultURL(0, "")

	// Whatever address resolution produced, the result is a servable
	// http URL on the default port.
	require.True(t, strings.HasPrefix(url, "http://"), url)
	assert.True(t, strings.HasSuffix(url, ":7125"), url)
	assert.NoError(t, ndef.ValidateURI(url))
}
