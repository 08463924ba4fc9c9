//go:build linux

package transport

import (
	"net"
	"syscall"
)

// bindToInterface pins the outgoing socket to a named interface via
// SO_BINDTODEVICE, mirroring the original client's
// setsockopt(SOL_SOCKET, 25, iface) call.
func bindToInterface(dialer *net.Dialer, iface string) error {
	dialer.Control = func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = syscall.SetsockoptString(int(fd), syscall.SOL_SOCKET, syscall.SO_BINDTODEVICE, iface)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
	return nil
}
