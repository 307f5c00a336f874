//go:build !linux

package transport

import (
	"context"
	"net"
)

// listen opens a TCP listener. The backlog is left to the operating system
// on platforms without a raw socket path.
func listen(addr string, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", addr)
}
