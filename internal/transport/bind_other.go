//go:build !linux

package transport

import "net"

// bindToInterface is a no-op on platforms without SO_BINDTODEVICE. Binding
// to a named interface on Windows/macOS requires resolving the interface's
// local address and setting dialer.LocalAddr instead; left unimplemented
// since none of the retrieved examples exercise that path and no supported
// deployment target needs it.
func bindToInterface(_ *net.Dialer, _ string) error {
	return nil
}
