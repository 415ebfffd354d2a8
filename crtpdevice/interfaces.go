// Package crtpdevice describes a link able to carry CRTP packets to one or
// more copters, each addressed by radio channel and address.
package crtpdevice

import (
	"github.com/mikehamer/crazypilot/crtp"
)

type CrtpDevice interface {
	ClientRegister(channel uint8, address uint64, responseCallback func([]byte))
	ClientRemove(channel uint8, address uint64)
	ClientWaitUntilAllPacketsHaveBeenSent(channel uint8, address uint64)

	PacketSend(channel uint8, address uint64, request crtp.RequestPacketPtr) error
	PacketSendPriority(channel uint8, address uint64, request crtp.RequestPacketPtr) error
}
