// SPDX-License-Identifier: GPL-3.0-or-later

package fabric

import (
	"sync"
	"time"
)

// Observer receives structured frame-level I/O events from an
// [ObserveConn]. Its method set mirrors internal/logx.Logger so callers
// typically pass a logx.Logger directly without an adapter.
type Observer interface {
	Debug(msg string, args ...any)
}

// ObserveConn wraps a [Conn] to log every SendFrame/RecvFrame/Close call,
// recording byte counts, error classification, and timing. Frame
// contents are never logged.
//
// All fields must be set before first use and not mutated concurrently
// with calls to SendFrame/RecvFrame/Close.
type ObserveConn struct {
	Conn
	Logger      Observer
	ClassifyErr func(error) string
	TimeNow     func() time.Time

	closeOnce sync.Once
}

var _ Conn = &ObserveConn{}

func (c *ObserveConn) classify(err error) string {
	if c.ClassifyErr == nil || err == nil {
		return ""
	}
	return c.ClassifyErr(err)
}

func (c *ObserveConn) now() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}

func (c *ObserveConn) SendFrame(b []byte) error {
	t0 := c.now()
	c.Logger.Debug("fabric.send_start", "remoteAddr", c.Conn.RemoteAddr(), "frameBytes", len(b), "t", t0)
	err := c.Conn.SendFrame(b)
	c.Logger.Debug("fabric.send_done", "remoteAddr", c.Conn.RemoteAddr(), "err", err, "errClass", c.classify(err), "t0", t0, "t", c.now())
	return err
}

func (c *ObserveConn) RecvFrame() ([]byte, error) {
	t0 := c.now()
	c.Logger.Debug("fabric.recv_start", "remoteAddr", c.Conn.RemoteAddr(), "t", t0)
	b, err := c.Conn.RecvFrame()
	c.Logger.Debug("fabric.recv_done", "remoteAddr", c.Conn.RemoteAddr(), "frameBytes", len(b), "err", err, "errClass", c.classify(err), "t0", t0, "t", c.now())
	return b, err
}

func (c *ObserveConn) Close() (err error) {
	c.closeOnce.Do(func() {
		t0 := c.now()
		c.Logger.Debug("fabric.close_start", "remoteAddr", c.Conn.RemoteAddr(), "t", t0)
		err = c.Conn.Close()
		c.Logger.Debug("fabric.close_done", "remoteAddr", c.Conn.RemoteAddr(), "err", err, "errClass", c.classify(err), "t0", t0, "t", c.now())
	})
	return err
}
