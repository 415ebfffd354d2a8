package crazyradio

import (
	"github.com/Workiva/go-datastructures/queue"
	"github.com/mikehamer/crazypilot/crtp"
)

// clientGet returns the client for a channel/address, creating it (with
// the radio's default datarate) if needed. Callers must hold cr.lock.
func (cr *Radio) clientGet(channel uint8, address uint64) *client {
	key := clientKey{channel, address}
	if c, ok := cr.clients[key]; ok {
		return c
	}

	c := &client{
		packetQueue: &packetQueue{
			standardQueue:  queue.New(10),
			priorityQueue:  queue.New(10),
			setpoint:       &latestPacket{},
			packetDequeued: make(chan bool),
		},
		datarate:    cr.options.Datarate,
	}
	cr.clients[key] = c
	cr.order = append(cr.order, key)
	return c
}

func (cr *Radio) clientRemove(channel uint8, address uint64) {
	key := clientKey{channel, address}
	c, ok := cr.clients[key]
	if !ok {
		return
	}

	c.standardQueue.Dispose()
	c.priorityQueue.Dispose()
	delete(cr.clients, key)

	for i, k := range cr.order {
		if k == key {
			cr.order = append(cr.order[:i], cr.order[i+1:]...)
			break
		}
	}
}

// clientQueue returns nil for a client that was never registered or has
// been removed.
func (cr *Radio) clientQueue(channel uint8, address uint64) *packetQueue {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	if c, ok := cr.clients[clientKey{channel, address}]; ok {
		return c.packetQueue
	}
	return nil
}

func clientPacketEnqueue(queue *queue.Queue, request crtp.RequestPacketPtr) error {
	return queue.Put(crtp.Encode(request))
}
