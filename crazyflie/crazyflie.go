// Package crazyflie speaks the Crazyflie side of CRTP over a crtpdevice: it
// performs the connection handshake, sends setpoints, and streams log
// variables (telemetry) back to subscribers.
package crazyflie

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/cache"
	"github.com/mikehamer/crazypilot/crtp"
	"github.com/mikehamer/crazypilot/crtpdevice"
)

const DEFAULT_RESPONSE_TIMEOUT = 500 * time.Millisecond

type CrazyflieStatus uint8

const (
	StatusDisconnected CrazyflieStatus = iota
	StatusConnected
	StatusNoResponse
)

func (s CrazyflieStatus) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusNoResponse:
		return "no response"
	default:
		return "disconnected"
	}
}

type Options struct {
	Logger hclog.Logger
	// Cache holds log TOCs between connections. Nil disables caching.
	Cache           *cache.Cache
	ResponseTimeout time.Duration
}

type Crazyflie struct {
	address    uint64
	channel    uint8
	crtpDevice crtpdevice.CrtpDevice
	logger     hclog.Logger
	cache      *cache.Cache
	timeout    time.Duration

	statusLock sync.RWMutex
	status     CrazyflieStatus

	// communication loop
	firstResponse     chan struct{}
	firstResponseOnce sync.Once
	disconnect        chan struct{}
	disconnectOnce    sync.Once
	statusTimeout     *time.Timer
	waitGroup         sync.WaitGroup

	// callbacks for packet reception
	callbackLock      sync.Mutex
	responseCallbacks map[crtp.Port]*list.List

	// console printing
	accumulatedConsolePrint string

	// log variables
	logLock        sync.Mutex
	logCount       int
	logCRC         uint32
	logMaxPacket   uint8
	logMaxOps      uint8
	logNameToIndex map[string]logItem
	logIndexToName map[uint8]string
	logBlocks      map[uint8]*logBlock
}

// Connect registers the copter with the device and waits until it answers.
func Connect(ctx context.Context, crtpDevice crtpdevice.CrtpDevice, channel uint8, address uint64, options Options) (*Crazyflie, error) {
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}
	if options.ResponseTimeout <= 0 {
		options.ResponseTimeout = DEFAULT_RESPONSE_TIMEOUT
	}

	cf := &Crazyflie{
		address:    address,
		channel:    channel,
		crtpDevice: crtpDevice,
		logger:     options.Logger,
		cache:      options.Cache,
		timeout:    options.ResponseTimeout,
		status:     StatusDisconnected,
	}

	// initialize the structures required for communication and packet handling
	cf.communicationSystemInit()
	cf.consoleSystemInit()
	cf.logSystemInit()

	cf.crtpDevice.ClientRegister(cf.channel, cf.address, cf.responseHandler)

	// now we wait for something to happen...
	select {
	case <-cf.firstResponse:
		cf.logger.Debug("connected", "channel", cf.channel, "address", hclog.Fmt("%010X", cf.address))
		return cf, nil
	case <-ctx.Done():
		cf.DisconnectImmediately()
		return nil, ctx.Err()
	case <-time.After(cf.timeout):
		cf.DisconnectImmediately()
		return nil, ErrorNoResponse
	}
}

func (cf *Crazyflie) Address() uint64 {
	return cf.address
}

func (cf *Crazyflie) Channel() uint8 {
	return cf.channel
}

func (cf *Crazyflie) Status() CrazyflieStatus {
	cf.statusLock.RLock()
	defer cf.statusLock.RUnlock()
	return cf.status
}

func (cf *Crazyflie) setStatus(status CrazyflieStatus) {
	cf.statusLock.Lock()
	cf.status = status
	cf.statusLock.Unlock()
}

// DisconnectImmediately drops any queued packets and stops the
// communication goroutines. Safe to call more than once.
func (cf *Crazyflie) DisconnectImmediately() {
	cf.disconnectOnce.Do(func() {
		cf.crtpDevice.ClientRemove(cf.channel, cf.address)
		close(cf.disconnect)
		cf.waitGroup.Wait()
		cf.setStatus(StatusDisconnected)
	})
}

// DisconnectOnEmpty waits up to the response timeout for queued packets to
// be sent, then disconnects.
func (cf *Crazyflie) DisconnectOnEmpty() {
	drained := make(chan struct{})
	go func() {
		cf.PacketQueueWaitForEmpty()
		close(drained)
	}()

	select {
	case <-drained:
	case <-cf.disconnect:
	case <-time.After(cf.timeout):
		cf.logger.Warn("packet queue did not drain, disconnecting anyway")
	}
	cf.DisconnectImmediately()
}
