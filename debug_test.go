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
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLogLifecycle(t *testing.T) {
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { require.NoError(t, os.Chdir(oldWD)) }()

	require.Empty(t, GetSessionLogPath())

	path, err := InitSessionLog()
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.Equal(t, path, GetSessionLogPath())
	assert.True(t, strings.HasPrefix(path, "klippynfc_"))
	assert.True(t, strings.HasSuffix(path, ".log"))

	Debugf("exchange %02X complete", 0x40)
	Debugln("tag released")

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	contents, err := os.ReadFile(path) //nolint:gosec // path created by this test
	require.NoError(t, err)
	text := string(contents)
	assert.Contains(t, text, "=== klippyNFC Debug Session Log ===")
	assert.Contains(t, text, "exchange 40 complete")
	assert.Contains(t, text, "tag released")
	assert.Contains(t, text, "=== Session ended ===")
}

func TestCloseSessionLogWithoutInit(t *testing.T) {
	require.NoError(t, CloseSessionLog())
}
