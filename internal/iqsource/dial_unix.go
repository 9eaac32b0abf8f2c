//go:build unix

package iqsource

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// DialTuned opens a TCP connection to a net-mode producer the same way
// net.Dial does, but reaches into the raw socket first to enable kernel
// receive timestamping and grow the receive buffer: a live 2 MS/s I/Q
// stream arrives in a steady drip of small frames, and the default
// buffer is sized for bursty request/response traffic, not that.
func DialTuned(address string) (net.Conn, error) {
	d := net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1); err != nil {
					sockErr = err
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, dialRecvBufBytes); err != nil {
					sockErr = err
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return d.Dial("tcp", address)
}

const dialRecvBufBytes = 1 << 20
