// SPDX-License-Identifier: GPL-3.0-or-later

// Package errclass classifies errors surfaced by the underlying fabric
// connections into the short categorical strings used by NNTI's
// structured-logging fields such as errClass=...
//
// The classification is platform-specific because it inspects the raw
// errno carried by a wrapped [syscall.Errno] (unix.go / windows.go provide
// the platform's errno constants); the dispatch in this file is shared.
package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
)

// Classify maps err to a short categorical string, or "" for a nil error.
//
// The result is stable across platforms even though the underlying errno
// values it dispatches on are not (see unix.go / windows.go).
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	case errors.Is(err, io.EOF):
		return "EOF"
	case errors.Is(err, net.ErrClosed):
		return "ECONNCLOSED"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "ETIMEDOUT"
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return "ETIMEDOUT"
	}
	if class := classifyErrno(err); class != "" {
		return class
	}
	return "EGENERIC"
}
