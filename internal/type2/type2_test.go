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

package type2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanLayout(t *testing.T) {
	t.Parallel()

	// 6-byte message: TLV stream is 03 06 <msg> FE = 9 bytes = 3 pages.
	msg := []byte{0xD1, 0x01, 0x02, 'U', 0x04, 'x'}
	plan, err := Plan(msg, DefaultCapacity)
	require.NoError(t, err)

	require.Len(t, plan.Pages, 4)
	assert.Equal(t, len(msg), plan.Bytes)

	// CC page first.
	assert.Equal(t, CCPage, plan.Pages[0].Index)
	assert.Equal(t, [4]byte{0xE1, 0x10, 0x12, 0x00}, plan.Pages[0].Data)

	// Data pages carry TLV header, message, terminator, zero padding.
	assert.Equal(t, [4]byte{0x03, 0x06, 0xD1, 0x01}, plan.Pages[1].Data)
	assert.Equal(t, [4]byte{0x02, 'U', 0x04, 'x'}, plan.Pages[2].Data)
	assert.Equal(t, [4]byte{0xFE, 0x00, 0x00, 0x00}, plan.Pages[3].Data)
}

func TestPlanPageInvariants(t *testing.T) {
	t.Parallel()

	for _, msgLen := range []int{1, 3, 4, 5, 17, 100, 140} {
		msg := bytes.Repeat([]byte{0xAB}, msgLen)
		plan, err := Plan(msg, DefaultCapacity)
		require.NoError(t, err, "msgLen=%d", msgLen)

		require.NotEmpty(t, plan.Pages)
		assert.Equal(t, CCPage, plan.Pages[0].Index)
		for i, pw := range plan.Pages {
			assert.GreaterOrEqual(t, pw.Index, CCPage, "msgLen=%d page %d", msgLen, i)
			if i > 0 {
				assert.Equal(t, plan.Pages[i-1].Index+1, pw.Index,
					"msgLen=%d pages must be contiguous", msgLen)
			}
		}
	}
}

func TestPlanCapacityBoundary(t *testing.T) {
	t.Parallel()

	// 3 + 140 + 1 = 144: exactly at capacity succeeds.
	msg := bytes.Repeat([]byte{0x01}, 140)
	plan, err := Plan(msg, DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, 140, plan.Bytes)

	// One byte more overflows.
	msg = bytes.Repeat([]byte{0x01}, 141)
	_, err = Plan(msg, DefaultCapacity)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestPlanLongTLV(t *testing.T) {
	t.Parallel()

	// 300-byte message needs the long TLV form on a larger tag.
	msg := bytes.Repeat([]byte{0x55}, 300)
	plan, err := Plan(msg, 504)
	require.NoError(t, err)

	assert.Equal(t, [4]byte{0x03, 0xFF, 0x01, 0x2C}, plan.Pages[1].Data)

	// Long form on a 144-byte tag is rejected up front.
	_, err = Plan(msg, DefaultCapacity)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestPlanInvalidInput(t *testing.T) {
	t.Parallel()

	_, err := Plan(nil, DefaultCapacity)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = Plan([]byte{0x01}, 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = Plan([]byte{0x01}, 100)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}
