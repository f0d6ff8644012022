// Package netutil picks the HTTP bind address for the agent.
package netutil

import (
	"fmt"
	"net"
)

// SelectBindAddr returns the first address the agent can listen on. A
// free preferred address always wins; when it is busy, autoFallback
// walks the candidate list in order, otherwise the busy address is an
// error.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	tried := make([]string, 0, len(candidates)+1)

	if preferred != "" {
		free, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if free {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
		tried = append(tried, preferred)
	}

	for _, addr := range candidates {
		free, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if free {
			return addr, nil
		}
		tried = append(tried, addr)
	}

	return "", fmt.Errorf("no free bind address among %v", tried)
}

// IsAddrAvailable reports whether addr can be listened on right now. A
// failed listen means busy, not an error; only a failed close of the
// probe socket is surfaced.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
