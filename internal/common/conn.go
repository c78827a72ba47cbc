package common

import (
	"net"
	"sync/atomic"
)

// CountingConn counts every byte that passes through the wrapped connection.
type CountingConn struct {
	net.Conn
	sent     atomic.Int64
	received atomic.Int64
}

func NewCountingConn(conn net.Conn) *CountingConn {
	return &CountingConn{Conn: conn}
}

func (c *CountingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.received.Add(int64(n))
	return n, err
}

func (c *CountingConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.sent.Add(int64(n))
	return n, err
}

func (c *CountingConn) BytesSent() int64 {
	return c.sent.Load()
}

func (c *CountingConn) BytesReceived() int64 {
	return c.received.Load()
}
