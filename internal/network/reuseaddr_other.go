//go:build !linux && !windows

package network

import "net"

// ReuseAddrListenConfig returns the default ListenConfig.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
