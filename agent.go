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
	"github.com/erikbuild/klippyNFC/pkg/ndef"
)

// AgentMode selects how the module uses the PN532.
type AgentMode string

const (
	// ModeWrite keeps the device idle until a write command arrives.
	ModeWrite AgentMode = "write"
	// ModeEmulate runs the Type-4 emulator continuously.
	ModeEmulate AgentMode = "emulate"
)

// AgentConfig configures an Agent.
type AgentConfig struct {
	Mode AgentMode
	// URL overrides the resolved default URL when non-empty.
	URL string
	// Port feeds the default URL when no override is given.
	Port int
	// UID is the emulated tag identity.
	UID [3]byte
	// TagCapacity is the assumed Type-2 data area size for writes.
	TagCapacity int
	// ScanTimeout and ScanInterval tune the tag writer.
	ScanTimeout  time.Duration
	ScanInterval time.Duration
}

// AgentStatus is a point-in-time snapshot of the agent.
type AgentStatus struct {
	Mode      AgentMode
	URL       string
	Disabled  bool
	Emulator  EmulatorStatus
	LastWrite *WriteResult
}

// Agent owns a PN532 device and exposes the module's command surface:
// write a tag, change the served URL, report status, restart. If the
// device cannot be initialized the agent stays disabled: every command
// reports the failure instead of touching the hardware, and only a
// restart retries initialization.
type Agent struct {
	device   *Device
	writer   *TagWriter
	emulator *Emulator
	mode     AgentMode

	mu            syncutil.Mutex
	url           string
	lastResult    *WriteResult
	disabled      bool
	disabledCause error
}

// NewAgent builds an agent on transport and attempts device
// initialization. An initialization failure does not fail construction:
// the agent comes up disabled and remembers why.
func NewAgent(ctx context.Context, transport Transport, config AgentConfig) (*Agent, error) {
	if config.Mode == "" {
		config.Mode = ModeEmulate
	}
	if config.Mode != ModeWrite && config.Mode != ModeEmulate {
		return nil, fmt.Errorf("unknown mode %q", config.Mode)
	}

	url := ResolveDefaultURL(config.Port, config.URL)
	if err := ndef.ValidateURI(url); err != nil {
		return nil, fmt.Errorf("serving URL %q: %w", url, err)
	}

	device, err := New(transport)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		device: device,
		mode:   config.Mode,
		url:    url,
	}

	writerCfg := &WriterConfig{
		ScanTimeout:  config.ScanTimeout,
		ScanInterval: config.ScanInterval,
		TagCapacity:  config.TagCapacity,
	}
	a.writer = NewTagWriter(device, writerCfg)

	emulatorCfg := DefaultEmulatorConfig()
	if config.UID != [3]byte{} {
		emulatorCfg.UID = config.UID
	}
	a.emulator = NewEmulator(device, url, emulatorCfg)

	if err := device.InitContext(ctx); err != nil {
		// Stay constructed but disabled, so status still answers.
		a.disabled = true
		a.disabledCause = err
		Debugf("device initialization failed, NFC disabled: %v", err)
	}
	return a, nil
}

// Start brings the agent into its configured mode. In emulate mode this
// launches the responder loop; in write mode the device stays idle
// until WriteTag is called.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.checkEnabled(); err != nil {
		return err
	}
	if a.mode == ModeEmulate {
		return a.emulator.Start(ctx)
	}
	return nil
}

// Stop halts any running emulation and closes the device.
func (a *Agent) Stop() error {
	a.emulator.Stop()
	return a.device.Close()
}

// WriteTag writes url, or the agent's current URL when url is empty,
// to a physically presented Type-2 tag. The override applies to this
// write only and does not change the served URL. In emulate mode the
// emulator holds the device, so this reports ErrDeviceBusy until
// emulation is stopped.
func (a *Agent) WriteTag(ctx context.Context, url string) (*WriteResult, error) {
	if err := a.checkEnabled(); err != nil {
		return nil, err
	}
	if url == "" {
		url = a.CurrentURL()
	}

	result, err := a.writer.WriteURL(ctx, url)
	if errors.Is(err, ErrDeviceBusy) {
		// The attempt never touched a tag; keep the previous result.
		return result, err
	}

	a.mu.Lock()
	a.lastResult = result
	a.mu.Unlock()
	return result, err
}

// SetURL validates and installs a new URL for both writing and
// emulation. A running emulator serves it from its next activation.
func (a *Agent) SetURL(url string) error {
	if err := a.emulator.SetURL(url); err != nil {
		return err
	}
	a.mu.Lock()
	a.url = url
	a.mu.Unlock()
	return nil
}

// CurrentURL returns the URL the agent is serving or writing.
func (a *Agent) CurrentURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.url
}

// Restart reinitializes the device and, in emulate mode, relaunches the
// responder loop. This clears a disabled state if the hardware has
// come back.
func (a *Agent) Restart(ctx context.Context) error {
	a.emulator.Stop()

	if err := a.device.InitContext(ctx); err != nil {
		a.mu.Lock()
		a.disabled = true
		a.disabledCause = err
		a.mu.Unlock()
		return err
	}
	a.mu.Lock()
	a.disabled = false
	a.disabledCause = nil
	a.mu.Unlock()

	if a.mode == ModeEmulate {
		return a.emulator.Restart(ctx)
	}
	return nil
}

// Status returns a snapshot of the agent, its emulator, and the last
// write attempt.
func (a *Agent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AgentStatus{
		Mode:      a.mode,
		URL:       a.url,
		Disabled:  a.disabled,
		Emulator:  a.emulator.Status(),
		LastWrite: a.lastResult,
	}
}

// Writer exposes the tag writer, mainly so callers can watch its state.
func (a *Agent) Writer() *TagWriter { return a.writer }

// Device exposes the underlying device.
func (a *Agent) Device() *Device { return a.device }

func (a *Agent) checkEnabled() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disabled {
		if errors.Is(a.disabledCause, ErrTransportUnavailable) {
			return a.disabledCause
		}
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, a.disabledCause)
	}
	return nil
}
