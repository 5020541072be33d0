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
	"fmt"
	"net"
	"strings"
)

// DefaultWebPort is the port the printer web interface usually listens on.
const DefaultWebPort = 7125

// fallbackHost is used when the machine's outward-facing address cannot
// be determined, relying on mDNS resolution on the phone side.
const fallbackHost = "printer.local"

// ResolveDefaultURL builds the URL the module serves when none is
// configured. A non-empty override wins as-is. Otherwise the URL points
// at this machine's outward-facing IP on the given port, falling back
// to printer.local when the address cannot be determined. A port of 0
// means DefaultWebPort.
func ResolveDefaultURL(port int, override string) string {
	if override != "" {
		return override
	}
	if port == 0 {
		port = DefaultWebPort
	}
	return composeURL(localIP(), port)
}

// localIP returns the machine's outward-facing IPv4 address. No packet
// is sent: dialing UDP only selects the route and source address.
func localIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return fallbackHost
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return fallbackHost
	}
	return addr.IP.String()
}

// composeURL joins host and port into an http URL, omitting the
// default http port.
func composeURL(host string, port int) string {
	if port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	if strings.Contains(host, ":") {
		// Bare IPv6 literals need brackets before a port.
		host = "[" + host + "]"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}
