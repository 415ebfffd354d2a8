package crazyradio

// Functions implementing the CrtpDevice interface

import (
	"time"

	"github.com/mikehamer/crazypilot/crtp"
)

func (cr *Radio) ClientRegister(channel uint8, address uint64, callback func([]byte)) {
	cr.lock.Lock()
	cr.clientGet(channel, address).callback = callback
	cr.lock.Unlock()

	cr.logger.Debug("new client", "channel", channel, "address", hclogHex(address))
}

// ClientSetDatarate changes the datarate used to reach a client.
func (cr *Radio) ClientSetDatarate(channel uint8, address uint64, datarate Datarate) {
	cr.lock.Lock()
	cr.clientGet(channel, address).datarate = datarate
	cr.lock.Unlock()
}

func (cr *Radio) ClientRemove(channel uint8, address uint64) {
	cr.lock.Lock()
	cr.clientRemove(channel, address)
	cr.lock.Unlock()

	cr.logger.Debug("removed client", "channel", channel, "address", hclogHex(address))
}

func (cr *Radio) ClientWaitUntilAllPacketsHaveBeenSent(channel uint8, address uint64) {
	queue := cr.clientQueue(channel, address)
	if queue == nil {
		return
	}

	for queue.priorityQueue.Len() != 0 || queue.setpoint.pending() || queue.standardQueue.Len() != 0 {
		if queue.priorityQueue.Disposed() {
			return
		}
		select {
		case <-queue.packetDequeued: // the worker dequeued one of our packets, check again
		case <-cr.threadShouldStop:
			return
		case <-time.After(100 * time.Millisecond): // a removed client never signals
		}
	}
}

func (cr *Radio) PacketSend(channel uint8, address uint64, request crtp.RequestPacketPtr) error {
	if cr.stopped() {
		return ErrorClosed
	}
	queue := cr.clientQueue(channel, address)
	if queue == nil {
		return ErrorUnknownClient
	}
	return clientPacketEnqueue(queue.standardQueue, request)
}

// PacketSendPriority sends ahead of the standard queue. Setpoints only keep
// the newest one per client; anything older not yet acknowledged is stale.
func (cr *Radio) PacketSendPriority(channel uint8, address uint64, request crtp.RequestPacketPtr) error {
	if cr.stopped() {
		return ErrorClosed
	}
	queue := cr.clientQueue(channel, address)
	if queue == nil {
		return ErrorUnknownClient
	}
	if request.Port() == crtp.PortSetpoint {
		queue.setpoint.store(crtp.Encode(request))
		return nil
	}
	return clientPacketEnqueue(queue.priorityQueue, request)
}
