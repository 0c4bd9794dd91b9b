package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// SelectBindAddr returns preferred if it can be listened on. Otherwise, when
// autoFallback is set, it tries each candidate port on preferred's host and
// finally an ephemeral port.
func SelectBindAddr(preferred string, candidatePorts []int, autoFallback bool) (string, error) {
	host := "127.0.0.1"
	if preferred != "" {
		h, _, err := net.SplitHostPort(preferred)
		if err != nil {
			return "", fmt.Errorf("invalid bind address %q: %w", preferred, err)
		}
		if h != "" {
			host = h
		}
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, port := range candidatePorts {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	if autoFallback {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err == nil {
			addr := ln.Addr().String()
			if closeErr := ln.Close(); closeErr != nil {
				return "", closeErr
			}
			return addr, nil
		}
	}
	return "", errors.New("no available controller bind addresses")
}

// IsAddrAvailable returns true when an address can be listened on.
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
