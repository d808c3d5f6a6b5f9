package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Identity is what the worker announces about itself on its first output line.
type Identity struct {
	PID     int
	Address string // empty when the worker did not advertise a socket
	Port    int
}

// HasAddress reports whether the handshake carried an address/port token.
func (id Identity) HasAddress() bool {
	return id.Address != ""
}

// HostPort returns the advertised address in host:port form.
func (id Identity) HostPort() string {
	if !id.HasAddress() {
		return ""
	}
	return net.JoinHostPort(id.Address, strconv.Itoa(id.Port))
}

// HandshakeError is returned when the first worker line is not a valid handshake.
type HandshakeError struct {
	Line   string
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("invalid worker handshake %q: %s", truncate(e.Line, 120), e.Reason)
}

// ParseHandshake parses a line of the form "pid=<int>[, a=<address>:<port>]".
// Unknown tokens are ignored. A malformed address token leaves the address
// empty rather than failing; only the pid is mandatory.
func ParseHandshake(line string) (Identity, error) {
	var id Identity
	pidSeen := false

	for _, token := range strings.Split(line, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(token), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "pid":
			pid, err := strconv.Atoi(value)
			if err != nil {
				return Identity{}, &HandshakeError{Line: line, Reason: fmt.Sprintf("pid %q is not numeric", value)}
			}
			if pid <= 0 {
				return Identity{}, &HandshakeError{Line: line, Reason: fmt.Sprintf("pid %d is not positive", pid)}
			}
			id.PID = pid
			pidSeen = true
		case "a":
			host, port, ok := splitAddress(value)
			if ok {
				id.Address = host
				id.Port = port
			}
		}
	}

	if !pidSeen {
		return Identity{}, &HandshakeError{Line: line, Reason: "missing pid token"}
	}
	return id, nil
}

// splitAddress splits "host:port" or "[v6]:port".
func splitAddress(s string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
