//go:build !unix

package broadcast

import "syscall"

func broadcastControl(network, address string, c syscall.RawConn) error {
	return nil
}

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
