//go:build linux

package transport

import (
	"fmt"
	"net"
	"net/netip"
	"os"

	"golang.org/x/sys/unix"
)

// listen opens a TCP listener with an explicit accept backlog. The net
// package always uses the kernel's somaxconn, so the socket is built by hand
// and handed to net.FileListener.
func listen(addr string, backlog int) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	ip, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		ip = netip.IPv4Unspecified()
	}
	ip = ip.Unmap()

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip.Is4() {
		sa = &unix.SockaddrInet4{Port: tcpAddr.Port, Addr: ip.As4()}
	} else {
		domain = unix.AF_INET6
		sa = &unix.SockaddrInet6{Port: tcpAddr.Port, Addr: ip.As16()}
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	file := os.NewFile(uintptr(fd), "tcp:"+addr)
	defer file.Close()

	// FileListener dups the descriptor; the original is closed above
	return net.FileListener(file)
}
