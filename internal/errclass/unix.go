//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package errclass

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// classifyErrno unwraps a [syscall.Errno] and maps it to a short category.
func classifyErrno(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	switch unix.Errno(errno) {
	case unix.EADDRNOTAVAIL:
		return "EADDRNOTAVAIL"
	case unix.EADDRINUSE:
		return "EADDRINUSE"
	case unix.ECONNABORTED:
		return "ECONNABORTED"
	case unix.ECONNREFUSED:
		return "ECONNREFUSED"
	case unix.ECONNRESET:
		return "ECONNRESET"
	case unix.EHOSTUNREACH:
		return "EHOSTUNREACH"
	case unix.EINVAL:
		return "EINVAL"
	case unix.EINTR:
		return "EINTR"
	case unix.ENETDOWN:
		return "ENETDOWN"
	case unix.ENETUNREACH:
		return "ENETUNREACH"
	case unix.ENOBUFS:
		return "ENOBUFS"
	case unix.ENOTCONN:
		return "ENOTCONN"
	case unix.EPROTONOSUPPORT:
		return "EPROTONOSUPPORT"
	case unix.ETIMEDOUT:
		return "ETIMEDOUT"
	default:
		return ""
	}
}
