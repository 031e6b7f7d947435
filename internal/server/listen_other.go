//go:build !linux

package server

import "net"

func listen(host string, port, _ int) (net.Listener, error) {
	return listenStd(host, port)
}
