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
	"errors"
	"fmt"
	"time"

	"github.com/erikbuild/klippyNFC/internal/syncutil"
	"github.com/erikbuild/klippyNFC/internal/type2"
)

// FirmwareVersion describes the PN532 firmware
type FirmwareVersion struct {
	Version          string
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

// DetectedTag represents a tag found in the RF field
type DetectedTag struct {
	DetectedAt   time.Time
	UID          string // Hex-encoded UID
	UIDBytes     []byte
	ATQ          []byte
	SAK          byte
	TargetNumber byte
}

// Device drives a PN532 over a Transport. The controller link is
// half-duplex: exactly one request may be in flight, and the tag writer
// and card emulator must never hold the device at the same time.
//
// Two levels of locking enforce this. The internal mutex serializes
// individual commands. The ownership semaphore (acquire/release) gives
// one session, either a write attempt or an emulation run, the device
// for its whole duration; a second session started while one is active
// fails fast with ErrDeviceBusy instead of queueing.
type Device struct {
	transport   Transport
	firmware    *FirmwareVersion
	owner       chan struct{}
	mu          syncutil.Mutex
	initialized bool
}

// New creates a new PN532 device with the given transport
func New(transport Transport) (*Device, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	return &Device{
		transport: transport,
		owner:     make(chan struct{}, 1),
	}, nil
}

// Init initializes the device using a background context
func (d *Device) Init() error {
	return d.InitContext(context.Background())
}

// InitContext wakes the controller, confirms it responds, and puts it
// in normal SAM mode. Any failure here means the NFC feature is
// unusable and is reported as ErrTransportUnavailable.
func (d *Device) InitContext(ctx context.Context) error {
	fw, err := d.GetFirmwareVersionContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	d.firmware = fw
	Debugf("PN532 firmware %s", fw.Version)

	if err := d.SAMConfigurationContext(ctx, SAMModeNormal, 0x00, 0x00); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	// Single retry on passive activation so InListPassiveTarget returns
	// promptly when the field is empty; the writer's scan loop owns the
	// actual timeout.
	if err := d.setMaxRetriesContext(ctx, 0x01); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}

	d.initialized = true
	return nil
}

// Initialized reports whether InitContext completed successfully.
func (d *Device) Initialized() bool { return d.initialized }

// Firmware returns the firmware version read during initialization.
func (d *Device) Firmware() *FirmwareVersion { return d.firmware }

// Close closes the underlying transport
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// SetTimeout sets the transport read timeout
func (d *Device) SetTimeout(timeout time.Duration) error {
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set transport timeout: %w", err)
	}
	return nil
}

// acquire takes exclusive session ownership of the device, failing
// immediately with ErrDeviceBusy if another session holds it.
func (d *Device) acquire() error {
	select {
	case d.owner <- struct{}{}:
		return nil
	default:
		return ErrDeviceBusy
	}
}

// release gives up session ownership.
func (d *Device) release() {
	select {
	case <-d.owner:
	default:
	}
}

// call sends one command and validates the response code, returning the
// payload that follows it.
func (d *Device) call(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	d.mu.Lock()
	res, err := d.transport.SendCommandWithContext(ctx, cmd, args)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 || res[0] != responseCode(cmd) {
		return nil, NewInvalidResponseError(fmt.Sprintf("command 0x%02X", cmd), "")
	}
	return res[1:], nil
}

// SAMMode represents the SAM configuration mode
type SAMMode byte

const (
	// SAMModeNormal - normal mode (default)
	SAMModeNormal SAMMode = 0x01
	// SAMModeVirtualCard - Virtual Card mode
	SAMModeVirtualCard SAMMode = 0x02
)

// SAMConfigurationContext configures the SAM with context support
func (d *Device) SAMConfigurationContext(ctx context.Context, mode SAMMode, timeout, irq byte) error {
	if _, err := d.call(ctx, cmdSamConfiguration, []byte{byte(mode), timeout, irq}); err != nil {
		return fmt.Errorf("SAM configuration failed: %w", err)
	}
	return nil
}

// setMaxRetriesContext sets MxRtyPassiveActivation via RFConfiguration
// item 5 (MxRtyATR and MxRtyPSL stay at their defaults).
func (d *Device) setMaxRetriesContext(ctx context.Context, passiveRetries byte) error {
	if _, err := d.call(ctx, cmdRFConfiguration, []byte{0x05, 0xFF, 0x01, passiveRetries}); err != nil {
		return fmt.Errorf("RF configuration failed: %w", err)
	}
	return nil
}

// GetFirmwareVersionContext reads and parses the controller firmware version
func (d *Device) GetFirmwareVersionContext(ctx context.Context) (*FirmwareVersion, error) {
	payload, err := d.call(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("GetFirmwareVersion failed: %w", err)
	}
	if len(payload) < 4 {
		return nil, NewInvalidResponseError("GetFirmwareVersion", "")
	}
	if payload[0] != 0x32 {
		return nil, fmt.Errorf("unexpected IC: %x", payload[0])
	}
	return &FirmwareVersion{
		Version:          fmt.Sprintf("%d.%d", payload[1], payload[2]),
		SupportIso14443a: payload[3]&0x01 == 0x01,
		SupportIso14443b: payload[3]&0x02 == 0x02,
		SupportIso18092:  payload[3]&0x04 == 0x04,
	}, nil
}

// DetectTagContext performs a single InListPassiveTarget poll for one
// ISO14443A target. Returns ErrNoTagDetected when the field is empty.
func (d *Device) DetectTagContext(ctx context.Context) (*DetectedTag, error) {
	payload, err := d.call(ctx, cmdInListPassiveTarget, []byte{0x01, 0x00})
	if err != nil {
		return nil, fmt.Errorf("InListPassiveTarget failed: %w", err)
	}
	if len(payload) < 1 || payload[0] == 0 {
		return nil, ErrNoTagDetected
	}

	// Tg, SENS_RES (2 bytes), SEL_RES, UID length, UID
	if len(payload) < 6 {
		return nil, NewInvalidResponseError("InListPassiveTarget", "")
	}
	uidLen := int(payload[5])
	if len(payload) < 6+uidLen {
		return nil, NewInvalidResponseError("InListPassiveTarget", "")
	}
	uid := make([]byte, uidLen)
	copy(uid, payload[6:6+uidLen])

	tag := &DetectedTag{
		UID:          fmt.Sprintf("%x", uid),
		UIDBytes:     uid,
		ATQ:          []byte{payload[2], payload[3]},
		SAK:          payload[4],
		TargetNumber: payload[1],
		DetectedAt:   time.Now(),
	}
	Debugf("Detected tag UID=%s ATQ=%X SAK=0x%02X", tag.UID, tag.ATQ, tag.SAK)
	return tag, nil
}

// WritePageContext writes one 4-byte page to a Type-2 tag through
// InDataExchange. Pages below the CC are refused locally; the first
// four pages hold the UID and lock bytes.
func (d *Device) WritePageContext(ctx context.Context, target byte, page int, data [type2.PageSize]byte) error {
	if page < type2.CCPage {
		return fmt.Errorf("page %d is read-only", page)
	}
	args := []byte{target, ntagCmdWrite, byte(page), data[0], data[1], data[2], data[3]}
	payload, err := d.call(ctx, cmdInDataExchange, args)
	if err != nil {
		return fmt.Errorf("InDataExchange failed: %w", err)
	}
	if len(payload) < 1 {
		return NewInvalidResponseError("InDataExchange", "")
	}
	if status := payload[0] & 0x3F; status != 0 {
		return &PN532Error{Command: "InDataExchange", ErrorCode: status}
	}
	return nil
}

// ReleaseTargetContext releases a selected target (0 releases all)
func (d *Device) ReleaseTargetContext(ctx context.Context, target byte) error {
	payload, err := d.call(ctx, cmdInRelease, []byte{target})
	if err != nil {
		return fmt.Errorf("InRelease failed: %w", err)
	}
	if len(payload) >= 1 {
		if status := payload[0] & 0x3F; status != 0 {
			return &PN532Error{Command: "InRelease", ErrorCode: status}
		}
	}
	return nil
}

// TargetParams configures the identity the controller advertises in
// target (card emulation) mode.
type TargetParams struct {
	// UID is the 3-byte NFCID1 tail presented to readers (a leading
	// cascade byte is added by the controller).
	UID [3]byte
}

// TgInitAsTargetContext puts the controller in passive target mode as
// an ISO14443-4 (Type-4) card and blocks until a reader activates it or
// the transport times out. Returns the activation mode byte followed by
// the first command received from the initiator.
func (d *Device) TgInitAsTargetContext(ctx context.Context, params TargetParams) ([]byte, error) {
	args := make([]byte, 0, 37)
	args = append(args, 0x01) // passive only
	// Mifare params: SENS_RES, NFCID1t, SEL_RES (0x60 = ISO14443-4 compliant)
	args = append(args, 0x00, 0x40)
	args = append(args, params.UID[0], params.UID[1], params.UID[2])
	args = append(args, 0x60)
	// FeliCa params (unused) and NFCID3t
	args = append(args, make([]byte, 18)...)
	args = append(args, make([]byte, 10)...)
	// No general or historical bytes
	args = append(args, 0x00, 0x00)

	payload, err := d.call(ctx, cmdTgInitAsTarget, args)
	if err != nil {
		return nil, fmt.Errorf("TgInitAsTarget failed: %w", err)
	}
	if len(payload) < 1 {
		return nil, NewInvalidResponseError("TgInitAsTarget", "")
	}
	Debugf("TgInitAsTarget activated, mode=0x%02X", payload[0])
	return payload, nil
}

// TgGetDataContext reads the next command APDU from the initiator.
// ErrTargetReleased is returned when the reader deselects or leaves.
func (d *Device) TgGetDataContext(ctx context.Context) ([]byte, error) {
	payload, err := d.call(ctx, cmdTgGetData, nil)
	if err != nil {
		return nil, fmt.Errorf("TgGetData failed: %w", err)
	}
	if len(payload) < 1 {
		return nil, NewInvalidResponseError("TgGetData", "")
	}
	if status := payload[0] & 0x3F; status != 0 {
		perr := &PN532Error{Command: "TgGetData", ErrorCode: status}
		if perr.IsTargetReleased() {
			return nil, fmt.Errorf("%w: %w", ErrTargetReleased, perr)
		}
		return nil, perr
	}
	return payload[1:], nil
}

// TgSetDataContext sends a response APDU back to the initiator.
func (d *Device) TgSetDataContext(ctx context.Context, data []byte) error {
	payload, err := d.call(ctx, cmdTgSetData, data)
	if err != nil {
		return fmt.Errorf("TgSetData failed: %w", err)
	}
	if len(payload) < 1 {
		return NewInvalidResponseError("TgSetData", "")
	}
	if status := payload[0] & 0x3F; status != 0 {
		perr := &PN532Error{Command: "TgSetData", ErrorCode: status}
		if perr.IsTargetReleased() {
			return fmt.Errorf("%w: %w", ErrTargetReleased, perr)
		}
		return perr
	}
	return nil
}
