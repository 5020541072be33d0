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

// klippynfc serves a 3D printer's web interface URL over NFC, either
// by emulating a Type-4 tag or by writing physical Type-2 tags, and
// accepts G-code style commands on stdin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	klippynfc "github.com/erikbuild/klippyNFC"
	"github.com/erikbuild/klippyNFC/internal/config"
	"github.com/erikbuild/klippyNFC/transport/spi"
	"github.com/erikbuild/klippyNFC/transport/uart"
)

var (
	flagConfig = flag.String("config", "", "Path to TOML configuration file")
	flagDevice = flag.String("device", "", "Transport device path (overrides config)")
	flagMode   = flag.String("mode", "", "Operating mode: emulate or write (overrides config)")
	flagURL    = flag.String("url", "", "URL to serve (overrides config and auto-resolution)")
	flagDebug  = flag.Bool("debug", false, "Enable debug output")
)

// newTransport picks a transport by device path pattern: spidev paths
// get SPI, everything else is treated as a serial port.
func newTransport(path string) (klippynfc.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	if strings.Contains(strings.ToLower(path), "spi") {
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	}
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return nil, err
	}
	if *flagDevice != "" {
		cfg.NFC.Device = *flagDevice
	}
	if *flagMode != "" {
		cfg.NFC.Mode = *flagMode
	}
	if *flagURL != "" {
		cfg.NFC.URL = *flagURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	uid, err := cfg.NFC.UIDBytes()
	if err != nil {
		return err
	}

	transport, err := newTransport(cfg.NFC.Device)
	if err != nil {
		return err
	}

	agent, err := klippynfc.NewAgent(ctx, transport, klippynfc.AgentConfig{
		Mode:        klippynfc.AgentMode(cfg.NFC.Mode),
		URL:         cfg.NFC.URL,
		Port:        cfg.NFC.Port,
		UID:         uid,
		TagCapacity: cfg.NFC.TagCapacity,
	})
	if err != nil {
		_ = transport.Close()
		return err
	}
	defer func() {
		if err := agent.Stop(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to stop agent: %v\n", err)
		}
	}()

	if st := agent.Status(); st.Disabled {
		_, _ = fmt.Fprintln(os.Stderr, "Warning: NFC device unavailable, commands will fail until NFC_RESTART succeeds")
	} else {
		if fw := agent.Device().Firmware(); fw != nil {
			_, _ = fmt.Printf("PN532 firmware %s on %s\n", fw.Version, cfg.NFC.Device)
		}
		if err := agent.Start(ctx); err != nil {
			return err
		}
		_, _ = fmt.Printf("NFC %s mode, serving %s\n", cfg.NFC.Mode, agent.CurrentURL())
	}

	return newConsole(agent, os.Stdout).Run(ctx, os.Stdin)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if *flagDebug {
		klippynfc.SetDebugEnabled(true)
		if path, err := klippynfc.InitSessionLog(); err == nil {
			defer func() { _ = klippynfc.CloseSessionLog() }()
			_, _ = fmt.Printf("Session log: %s\n", path)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
