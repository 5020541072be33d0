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
	"context"
	"strings"
	"testing"
	"time"

	testutil "github.com/erikbuild/klippyNFC/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*TagWriter, *MockTransport) {
	t.Helper()
	device, mock := newInitializedDevice(t)
	writer := NewTagWriter(device, &WriterConfig{
		ScanTimeout:  100 * time.Millisecond,
		ScanInterval: 10 * time.Millisecond,
	})
	return writer, mock
}

func TestWriteURL(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.SetResponse(testutil.CmdInListPassiveTarget,
		testutil.BuildTagDetectionResponse(testutil.TestNTAG213UID))
	mock.SetResponse(testutil.CmdInDataExchange, testutil.BuildWriteAckResponse())

	result, err := writer.WriteURL(context.Background(), "http://example.com")
	require.NoError(t, err)

	// "http://example.com" encodes to a 16-byte message: 19 TLV bytes,
	// 5 data pages, plus the CC page.
	assert.True(t, result.Success)
	assert.Equal(t, 6, result.PagesWritten)
	assert.Equal(t, 24, result.BytesWritten)
	assert.Equal(t, "04abcdef123456", result.UID)
	assert.Zero(t, result.FailingPage)
	assert.Equal(t, StateDone, writer.State())

	// CC page first, then contiguous data pages from page 5.
	calls := mock.CallsFor(testutil.CmdInDataExchange)
	require.Len(t, calls, 6)
	assert.Equal(t, []byte{0x01, 0xA2, 0x04, 0xE1, 0x10, 0x12, 0x00}, calls[0].Args)
	for i := 1; i < len(calls); i++ {
		assert.Equal(t, byte(4+i), calls[i].Args[2])
	}

	// Target released after a successful write.
	assert.Equal(t, 1, mock.GetCallCount(testutil.CmdInRelease))
}

func TestWriteURLTagAppearsLate(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.QueueResponse(testutil.CmdInListPassiveTarget, testutil.BuildNoTagResponse())
	mock.QueueResponse(testutil.CmdInListPassiveTarget, testutil.BuildNoTagResponse())
	mock.SetResponse(testutil.CmdInListPassiveTarget,
		testutil.BuildTagDetectionResponse(testutil.TestNTAG213UID))
	mock.SetResponse(testutil.CmdInDataExchange, testutil.BuildWriteAckResponse())

	result, err := writer.WriteURL(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, mock.GetCallCount(testutil.CmdInListPassiveTarget), 3)
}

func TestWriteURLScanTimeout(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.SetResponse(testutil.CmdInListPassiveTarget, testutil.BuildNoTagResponse())

	result, err := writer.WriteURL(context.Background(), "http://example.com")
	require.ErrorIs(t, err, ErrNoTagDetected)
	require.NotNil(t, result)

	assert.False(t, result.Success)
	assert.Zero(t, result.PagesWritten)
	assert.Zero(t, mock.GetCallCount(testutil.CmdInDataExchange))
	assert.Equal(t, StateFailed, writer.State())
}

func TestWriteURLScanRetriesTransientFault(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.QueueError(testutil.CmdInListPassiveTarget, NewFrameCorruptedError("receiveFrame", "mock"))
	mock.SetResponse(testutil.CmdInListPassiveTarget,
		testutil.BuildTagDetectionResponse(testutil.TestNTAG213UID))
	mock.SetResponse(testutil.CmdInDataExchange, testutil.BuildWriteAckResponse())

	result, err := writer.WriteURL(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.GreaterOrEqual(t, mock.GetCallCount(testutil.CmdInListPassiveTarget), 2)
}

func TestWriteURLScanAbortsOnPermanentFault(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.SetError(testutil.CmdInListPassiveTarget, NewInvalidResponseError("receiveFrame", "mock"))

	_, err := writer.WriteURL(context.Background(), "http://example.com")
	require.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, 1, mock.GetCallCount(testutil.CmdInListPassiveTarget))
	assert.Zero(t, mock.GetCallCount(testutil.CmdInDataExchange))
	assert.Equal(t, StateFailed, writer.State())
}

func TestWriteURLPageFailureAborts(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.SetResponse(testutil.CmdInListPassiveTarget,
		testutil.BuildTagDetectionResponse(testutil.TestNTAG213UID))

	// First two page writes acknowledged, the third fails.
	mock.QueueResponse(testutil.CmdInDataExchange, testutil.BuildWriteAckResponse())
	mock.QueueResponse(testutil.CmdInDataExchange, testutil.BuildWriteAckResponse())
	mock.QueueResponse(testutil.CmdInDataExchange,
		testutil.BuildStatusErrorResponse(testutil.CmdInDataExchange, 0x01))

	result, err := writer.WriteURL(context.Background(), "http://example.com")
	require.Error(t, err)

	var pageErr *WritePageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, 3, pageErr.Page)
	assert.Equal(t, 6, pageErr.TagPage) // CC on page 4, so the third write hits tag page 6

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.PagesWritten)
	assert.Equal(t, 8, result.BytesWritten)
	assert.Equal(t, 3, result.FailingPage)
	assert.Equal(t, StateFailed, writer.State())

	// No retries: exactly three exchanges happened.
	assert.Equal(t, 3, mock.GetCallCount(testutil.CmdInDataExchange))
}

func TestWriteURLInvalidURI(t *testing.T) {
	writer, mock := newTestWriter(t)

	result, err := writer.WriteURL(context.Background(), "not a url")
	require.ErrorIs(t, err, ErrInvalidURI)
	require.NotNil(t, result)

	// Rejected before any device I/O.
	assert.Zero(t, mock.GetCallCount(testutil.CmdInListPassiveTarget))
	assert.Zero(t, mock.GetCallCount(testutil.CmdInDataExchange))
	assert.Equal(t, StateFailed, writer.State())
}

func TestWriteURLCapacityExceeded(t *testing.T) {
	writer, mock := newTestWriter(t)

	url := "http://example.com/" + strings.Repeat("a", 300)
	result, err := writer.WriteURL(context.Background(), url)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NotNil(t, result)

	assert.Zero(t, mock.GetCallCount(testutil.CmdInListPassiveTarget))
	assert.Zero(t, mock.GetCallCount(testutil.CmdInDataExchange))
}

func TestWriteURLDeviceBusy(t *testing.T) {
	writer, _ := newTestWriter(t)
	require.NoError(t, writer.device.acquire())
	defer writer.device.release()

	result, err := writer.WriteURL(context.Background(), "http://example.com")
	assert.ErrorIs(t, err, ErrDeviceBusy)
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestWriteURLExactlyAtCapacity(t *testing.T) {
	writer, mock := newTestWriter(t)
	mock.SetResponse(testutil.CmdInListPassiveTarget,
		testutil.BuildTagDetectionResponse(testutil.TestNTAG213UID))
	mock.SetResponse(testutil.CmdInDataExchange, testutil.BuildWriteAckResponse())

	// Message of exactly 140 bytes fills a 144-byte tag: 3 + 140 + 1.
	// Record overhead is 4 bytes plus the 1-byte prefix code, so a
	// 135-byte URI suffix lands exactly on the boundary.
	url := "https://" + strings.Repeat("a", 135)
	result, err := writer.WriteURL(context.Background(), url)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1+36, result.PagesWritten) // CC plus 144/4 data pages
}

func TestWriterStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}
