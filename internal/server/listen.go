package server

import (
	"net"
	"strconv"
)

func listenStd(host string, port int) (net.Listener, error) {
	return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}
