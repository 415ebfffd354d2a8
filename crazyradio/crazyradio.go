// Package crazyradio drives a Crazyradio USB dongle: it multiplexes the
// packet queues of every registered copter onto the single radio and scans
// the air for copters answering on the default address.
package crazyradio

import (
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/crtp"
)

const idlePeriod = 10 * time.Millisecond

// transceiver is the subset of RadioDevice the worker needs. Tests swap in
// a fake.
type transceiver interface {
	Lock()
	Unlock()
	SetChannel(channel uint8) error
	SetDatarate(datarate Datarate) error
	SetAddress(address uint64) error
	SendPacket(data []byte) error
	ReadResponse() (bool, []byte, error)
	ScanChannels(start, stop uint8, packet []byte) ([]uint8, error)
	Close()
}

type Options struct {
	// Index selects which attached radio to open.
	Index int
	// Datarate used for clients that never set one.
	Datarate Datarate
	// ScanDatarates are tried in order by FindCopters.
	ScanDatarates []Datarate
	// ScanAddress is the copter address FindCopters pings.
	ScanAddress uint64
	Power       Power
	Logger      hclog.Logger
}

func DefaultOptions() Options {
	return Options{
		Datarate:      Datarate2MPS,
		Power:         Power0DBM,
		ScanDatarates: []Datarate{Datarate250KPS, Datarate1MPS, Datarate2MPS},
		ScanAddress:   DefaultAddress,
	}
}

type clientKey struct {
	channel uint8
	address uint64
}

type packetQueue struct {
	standardQueue  *queue.Queue
	priorityQueue  *queue.Queue
	setpoint       *latestPacket
	packetDequeued chan bool
}

// latestPacket holds at most one packet. Storing a new one replaces the
// old, so a link that stops acknowledging never builds a backlog.
type latestPacket struct {
	lock       sync.Mutex
	packet     []byte
	generation uint64
}

func (l *latestPacket) store(packet []byte) {
	l.lock.Lock()
	l.packet = packet
	l.generation++
	l.lock.Unlock()
}

func (l *latestPacket) peek() ([]byte, uint64, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.packet, l.generation, l.packet != nil
}

// clear drops the packet unless it was replaced after generation was read.
func (l *latestPacket) clear(generation uint64) {
	l.lock.Lock()
	if l.generation == generation {
		l.packet = nil
	}
	l.lock.Unlock()
}

func (l *latestPacket) pending() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.packet != nil
}

type client struct {
	*packetQueue
	callback func([]byte)
	datarate Datarate
}

// Radio serves every registered client in turn, sending its queued packets
// (or a ping when it has none) and handing the acknowledgement payload to
// the client's callback.
type Radio struct {
	device  transceiver
	options Options
	logger  hclog.Logger

	lock    sync.Mutex
	clients map[clientKey]*client
	order   []clientKey

	threadShouldStop chan struct{}
	waitGroup        sync.WaitGroup
	closeOnce        sync.Once
}

// Open opens the radio selected by options.Index and starts its worker.
func Open(options Options) (*Radio, error) {
	device, err := OpenRadio(options.Index)
	if err != nil {
		return nil, err
	}
	if options.Power != Power0DBM {
		if err := device.SetPower(options.Power); err != nil {
			device.Close()
			return nil, err
		}
	}
	return newRadio(device, options), nil
}

func newRadio(device transceiver, options Options) *Radio {
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}
	if len(options.ScanDatarates) == 0 {
		options.ScanDatarates = DefaultOptions().ScanDatarates
	}
	if options.ScanAddress == 0 {
		options.ScanAddress = DefaultAddress
	}

	cr := &Radio{
		device:           device,
		options:          options,
		logger:           options.Logger,
		clients:          make(map[clientKey]*client),
		threadShouldStop: make(chan struct{}),
	}

	cr.waitGroup.Add(1)
	go cr.workerThread()

	return cr
}

// Close stops the worker and releases the USB device.
func (cr *Radio) Close() {
	cr.closeOnce.Do(func() {
		close(cr.threadShouldStop)
		cr.waitGroup.Wait()

		cr.lock.Lock()
		for _, c := range cr.clients {
			c.standardQueue.Dispose()
			c.priorityQueue.Dispose()
		}
		cr.clients = make(map[clientKey]*client)
		cr.order = nil
		cr.lock.Unlock()

		cr.device.Close()
	})
}

// Index is the position of this radio among the attached radios.
func (cr *Radio) Index() int {
	return cr.options.Index
}

func (cr *Radio) stopped() bool {
	select {
	case <-cr.threadShouldStop:
		return true
	default:
		return false
	}
}

type clientSnapshot struct {
	key clientKey
	client
}

func (cr *Radio) snapshot() []clientSnapshot {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	clients := make([]clientSnapshot, 0, len(cr.order))
	for _, key := range cr.order {
		if c, ok := cr.clients[key]; ok {
			clients = append(clients, clientSnapshot{key, *c})
		}
	}
	return clients
}

func (cr *Radio) workerThread() {
	defer cr.waitGroup.Done()

	for {
		if cr.stopped() {
			return
		}

		clients := cr.snapshot()
		if len(clients) == 0 {
			select {
			case <-cr.threadShouldStop:
				return
			case <-time.After(idlePeriod):
			}
			continue
		}

		for _, c := range clients {
			if cr.stopped() {
				return
			}
			cr.service(c)
		}
	}
}

// service performs one send/acknowledge exchange with a client.
func (cr *Radio) service(c clientSnapshot) {
	var currentQueue *queue.Queue
	var setpointGeneration uint64
	sendingSetpoint := false
	packet := crtp.Ping

	if front, err := c.priorityQueue.Peek(); err == nil {
		currentQueue = c.priorityQueue
		packet = front.([]byte)
	} else if latest, generation, ok := c.setpoint.peek(); ok {
		sendingSetpoint = true
		setpointGeneration = generation
		packet = latest
	} else if front, err := c.standardQueue.Peek(); err == nil {
		currentQueue = c.standardQueue
		packet = front.([]byte)
	}

	cr.device.Lock()
	ackReceived, resp, err := cr.transfer(c.key, c.datarate, packet)
	cr.device.Unlock() // want to unlock the radio ASAP such that the scanner can take it

	if err != nil {
		cr.logger.Trace("transfer failed", "channel", c.key.channel, "address", hclog.Fmt("%010X", c.key.address), "error", err)
		return
	}
	if !ackReceived {
		return // the packet stays queued and is retransmitted on the next pass
	}

	if sendingSetpoint {
		c.setpoint.clear(setpointGeneration)
	}
	if currentQueue != nil || sendingSetpoint {
		if currentQueue != nil {
			currentQueue.Get(1) // remove the acknowledged packet, since it was successfully transmitted
		}

		select { // if not already triggered, wake anyone waiting for the queue to drain
		case c.packetDequeued <- true:
		default:
		}
	}

	if c.callback != nil {
		c.callback(resp)
	}
}

func (cr *Radio) transfer(key clientKey, datarate Datarate, packet []byte) (bool, []byte, error) {
	if err := cr.device.SetDatarate(datarate); err != nil {
		return false, nil, err
	}
	if err := cr.device.SetChannel(key.channel); err != nil {
		return false, nil, err
	}
	if err := cr.device.SetAddress(key.address); err != nil {
		return false, nil, err
	}
	if err := cr.device.SendPacket(packet); err != nil {
		return false, nil, err
	}
	return cr.device.ReadResponse()
}
