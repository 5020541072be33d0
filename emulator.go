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
	"sync"
	"sync/atomic"
	"time"

	"github.com/erikbuild/klippyNFC/internal/syncutil"
	"github.com/erikbuild/klippyNFC/pkg/ndef"
)

// EmulatorStatus is a point-in-time snapshot of the emulator.
type EmulatorStatus struct {
	URL               string
	ConsecutiveErrors int
	Activations       uint64
	Running           bool
}

// EmulatorConfig configures a Emulator.
type EmulatorConfig struct {
	// UID is the 3-byte identity advertised to readers.
	UID [3]byte
	// ListenTimeout bounds one TgInitAsTarget wait for a reader. Short
	// enough that stop requests are noticed promptly.
	ListenTimeout time.Duration
	// ErrorPause is the backoff after a failed emulation cycle.
	ErrorPause time.Duration
}

// DefaultEmulatorConfig returns the emulator defaults.
func DefaultEmulatorConfig() *EmulatorConfig {
	return &EmulatorConfig{
		UID:           [3]byte{0x01, 0x02, 0x03},
		ListenTimeout: time.Second,
		ErrorPause:    time.Second,
	}
}

// Emulator advertises a Type-4 tag identity and serves the configured
// URL to any phone that taps the module. The responder loop runs until
// explicitly stopped: transient hardware errors are counted and paused
// on, never fatal. A failed Start, by contrast, is never self-healed
// and requires an explicit Restart.
//
// Known limitation: some phone readers abort the read around 47 bytes
// of NDEF payload. The cause is undetermined (link framing versus
// reader firmware); keep served URLs short when targeting such phones.
type Emulator struct {
	device *Device
	config EmulatorConfig

	urlMu syncutil.RWMutex
	url   string

	running     atomic.Bool
	errorCount  atomic.Int64
	activations atomic.Uint64

	loopMu   sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewEmulator creates an emulator serving url. A nil config uses the
// defaults; zero fields in a non-nil config are filled in from them.
func NewEmulator(device *Device, url string, config *EmulatorConfig) *Emulator {
	cfg := *DefaultEmulatorConfig()
	if config != nil {
		if config.UID != [3]byte{} {
			cfg.UID = config.UID
		}
		if config.ListenTimeout > 0 {
			cfg.ListenTimeout = config.ListenTimeout
		}
		if config.ErrorPause > 0 {
			cfg.ErrorPause = config.ErrorPause
		}
	}
	return &Emulator{device: device, config: cfg, url: url}
}

// Start validates the URL, takes ownership of the device, and launches
// the responder loop. Failures to bring the controller into target-
// serving shape report ErrEmulationStartFailed and leave the emulator
// stopped until an explicit Restart.
func (e *Emulator) Start(ctx context.Context) error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.running.Load() {
		return errors.New("emulator already running")
	}

	if err := ndef.ValidateURI(e.URL()); err != nil {
		return err
	}

	if !e.device.Initialized() {
		return fmt.Errorf("%w: device not initialized", ErrEmulationStartFailed)
	}
	if err := e.device.acquire(); err != nil {
		return fmt.Errorf("%w: %w", ErrEmulationStartFailed, err)
	}

	// Reset the controller state before the first target cycle.
	if err := e.device.SAMConfigurationContext(ctx, SAMModeNormal, 0x00, 0x00); err != nil {
		e.device.release()
		return fmt.Errorf("%w: %w", ErrEmulationStartFailed, err)
	}
	if err := e.device.SetTimeout(e.config.ListenTimeout); err != nil {
		e.device.release()
		return fmt.Errorf("%w: %w", ErrEmulationStartFailed, err)
	}

	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.errorCount.Store(0)
	e.running.Store(true)
	go e.run(ctx, e.stopChan, e.doneChan)

	Debugf("emulation started: %s", e.URL())
	return nil
}

// Stop halts the responder loop and releases the device. Safe to call
// when already stopped.
func (e *Emulator) Stop() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	e.stopLocked()
}

func (e *Emulator) stopLocked() {
	if !e.running.Load() {
		return
	}
	close(e.stopChan)
	<-e.doneChan
	e.running.Store(false)
	e.device.release()
	Debugln("emulation stopped")
}

// Restart tears the responder down and starts it fresh, clearing the
// error count. This is the only way back after a failed Start.
func (e *Emulator) Restart(ctx context.Context) error {
	e.loopMu.Lock()
	e.stopLocked()
	e.loopMu.Unlock()
	return e.Start(ctx)
}

// SetURL validates and stores a new URL. The running loop picks it up
// on its next activation cycle; an invalid URL is rejected and the
// previous one stays in effect.
func (e *Emulator) SetURL(url string) error {
	if err := ndef.ValidateURI(url); err != nil {
		return err
	}
	e.urlMu.Lock()
	e.url = url
	e.urlMu.Unlock()
	Debugf("emulation URL updated to: %s", url)
	return nil
}

// URL returns the currently configured URL.
func (e *Emulator) URL() string {
	e.urlMu.RLock()
	defer e.urlMu.RUnlock()
	return e.url
}

// Status returns a snapshot of the emulator state.
func (e *Emulator) Status() EmulatorStatus {
	return EmulatorStatus{
		URL:               e.URL(),
		ConsecutiveErrors: int(e.errorCount.Load()),
		Activations:       e.activations.Load(),
		Running:           e.running.Load(),
	}
}

// run is the responder loop. One iteration is one emulation cycle:
// wait for a reader to activate the emulated tag, then serve its APDUs
// until it leaves. The loop only exits on stop or context cancel;
// errors are counted, paused on, and lived with.
func (e *Emulator) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		// Re-encode each cycle so SetURL takes effect on the next tap.
		msg, err := ndef.EncodeURIMessage(e.URL())
		if err != nil {
			e.recordCycleError(stop, fmt.Errorf("encode failed: %w", err))
			continue
		}

		payload, err := e.device.TgInitAsTargetContext(ctx, TargetParams{UID: e.config.UID})
		if err != nil {
			// A quiet field is not an error: nobody tapped during this
			// listen window.
			if isListenTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			e.recordCycleError(stop, err)
			continue
		}
		_ = payload // Activation data is not needed; APDUs come via TgGetData.

		if err := e.serveSession(ctx, newType4Session(msg)); err != nil {
			e.recordCycleError(stop, err)
			continue
		}

		// A completed exchange proves the link healthy again.
		e.errorCount.Store(0)
		e.activations.Add(1)
	}
}

// serveSession answers APDUs for one activation until the reader
// deselects or leaves the field.
func (e *Emulator) serveSession(ctx context.Context, session *type4Session) error {
	Debugln("NFC target activated")
	for {
		apdu, err := e.device.TgGetDataContext(ctx)
		if err != nil {
			if errors.Is(err, ErrTargetReleased) || isListenTimeout(err) {
				// Normal end of exchange: the phone read what it wanted.
				return nil
			}
			return err
		}

		response := session.handleAPDU(apdu)
		if err := e.device.TgSetDataContext(ctx, response); err != nil {
			if errors.Is(err, ErrTargetReleased) {
				return nil
			}
			return err
		}
	}
}

// recordCycleError counts a failed cycle and backs off before the next
// attempt. The loop itself keeps going regardless of the count.
func (e *Emulator) recordCycleError(stop <-chan struct{}, err error) {
	count := e.errorCount.Add(1)
	Debugf("NFC emulation error (consecutive %d): %v", count, err)

	select {
	case <-stop:
	case <-time.After(e.config.ErrorPause):
	}
}

// isListenTimeout reports whether an error is a transport read timeout,
// which in target mode just means no reader activity.
func isListenTimeout(err error) bool {
	if errors.Is(err, ErrTransportTimeout) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te) && te.Type == ErrorTypeTimeout
}
