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

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	klippynfc "github.com/erikbuild/klippyNFC"
)

// controller is the slice of the agent the console needs.
type controller interface {
	WriteTag(ctx context.Context, url string) (*klippynfc.WriteResult, error)
	SetURL(url string) error
	Restart(ctx context.Context) error
	Status() klippynfc.AgentStatus
}

// console reads G-code style commands, one per line, and dispatches
// them to the agent. Lines look like NFC_SET_URL URL=http://host:7125;
// parameters are KEY=VALUE pairs and command names are case
// insensitive.
type console struct {
	agent controller
	out   io.Writer
}

func newConsole(agent controller, out io.Writer) *console {
	return &console{agent: agent, out: out}
}

// Run processes commands from r until EOF or context cancel.
func (c *console) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.dispatch(ctx, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}
	return nil
}

func (c *console) dispatch(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	fields := strings.Fields(line)
	cmd := strings.ToUpper(fields[0])
	params := parseParams(fields[1:])

	switch cmd {
	case "NFC_WRITE_TAG":
		c.writeTag(ctx, params["URL"])
	case "NFC_STATUS":
		c.status()
	case "NFC_SET_URL":
		c.setURL(params["URL"])
	case "NFC_RESTART":
		c.restart(ctx)
	case "HELP":
		c.printf("Commands: NFC_WRITE_TAG [URL=<url>], NFC_STATUS, NFC_SET_URL URL=<url>, NFC_RESTART")
	default:
		c.printf("Unknown command: %s", cmd)
	}
}

// parseParams splits KEY=VALUE fields, uppercasing keys.
func parseParams(fields []string) map[string]string {
	params := make(map[string]string, len(fields))
	for _, f := range fields {
		key, value, found := strings.Cut(f, "=")
		if !found {
			continue
		}
		params[strings.ToUpper(key)] = value
	}
	return params
}

// writeTag runs one write attempt. A non-empty url overrides the
// configured URL for this write only.
func (c *console) writeTag(ctx context.Context, url string) {
	c.printf("Place a tag on the reader...")

	result, err := c.agent.WriteTag(ctx, url)
	if err != nil {
		switch {
		case errors.Is(err, klippynfc.ErrDeviceBusy):
			c.printf("Write failed: device busy (stop emulation first with NFC_RESTART in write mode)")
		case errors.Is(err, klippynfc.ErrNoTagDetected):
			c.printf("Write failed: no tag detected")
		default:
			c.printf("Write failed: %v", err)
		}
		if result != nil && result.PagesWritten > 0 {
			c.printf("Partial write: %d pages (%d bytes) before failure",
				result.PagesWritten, result.BytesWritten)
		}
		return
	}

	c.printf("Tag written: UID=%s, %d pages, %d bytes", result.UID, result.PagesWritten, result.BytesWritten)
}

func (c *console) status() {
	st := c.agent.Status()
	if st.Disabled {
		c.printf("NFC: disabled (device unavailable)")
		return
	}

	c.printf("NFC mode: %s", st.Mode)
	c.printf("NFC URL: %s", st.URL)
	if st.Mode == klippynfc.ModeEmulate {
		state := "stopped"
		if st.Emulator.Running {
			state = "running"
		}
		c.printf("Emulation: %s, %d activations, %d consecutive errors",
			state, st.Emulator.Activations, st.Emulator.ConsecutiveErrors)
	}
	switch {
	case st.LastWrite != nil:
		outcome := "failed"
		if st.LastWrite.Success {
			outcome = "ok"
		}
		c.printf("Last write: %s at %s, UID=%s, %d pages",
			outcome, st.LastWrite.When.Format(time.RFC3339), st.LastWrite.UID, st.LastWrite.PagesWritten)
	case st.Mode == klippynfc.ModeWrite:
		c.printf("Last write: not written yet")
	}
}

func (c *console) setURL(url string) {
	if url == "" {
		c.printf("NFC_SET_URL requires URL=<url>")
		return
	}
	if err := c.agent.SetURL(url); err != nil {
		c.printf("Invalid URL: %v", err)
		return
	}
	c.printf("URL set to %s", url)
}

func (c *console) restart(ctx context.Context) {
	if err := c.agent.Restart(ctx); err != nil {
		c.printf("Restart failed: %v", err)
		return
	}
	c.printf("NFC restarted")
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}
