// Package netutil picks the HTTP listen address.
package netutil

import (
	"errors"
	"fmt"
	"net"
)

// ErrNoAddr is returned when neither the preferred address nor any
// candidate can be bound.
var ErrNoAddr = errors.New("no available bind address")

// Listen binds preferred, or when it is taken and autoFallback is set, the
// first free candidate. The listener is returned open so the port cannot be
// taken between probing and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("binding %s: %w", preferred, err)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		if ln, err := net.Listen("tcp", addr); err == nil {
			return ln, nil
		}
	}
	return nil, ErrNoAddr
}
