package crazyflie

import (
	"container/list"
	"sync"
	"time"

	"github.com/mikehamer/crazypilot/crtp"
)

const statusTimeoutDuration time.Duration = 1 * time.Second

func (cf *Crazyflie) communicationSystemInit() {
	cf.firstResponse = make(chan struct{})
	cf.disconnect = make(chan struct{})
	cf.statusTimeout = time.NewTimer(statusTimeoutDuration)

	// setup the communication callbacks
	cf.responseCallbacks = map[crtp.Port]*list.List{
		crtp.PortConsole:  list.New(),
		crtp.PortParam:    list.New(),
		crtp.PortSetpoint: list.New(),
		crtp.PortMem:      list.New(),
		crtp.PortLog:      list.New(),
		crtp.PortPosition: list.New(),
		crtp.PortPlatform: list.New(),
		crtp.PortLink:     list.New(),
		crtp.PortGreedy:   list.New(),
	}

	cf.waitGroup.Add(1)
	go cf.statusTimeoutThread()
}

func (cf *Crazyflie) statusTimeoutThread() {
	defer cf.waitGroup.Done()
	defer cf.statusTimeout.Stop()

	for {
		select {
		case <-cf.disconnect:
			return
		case <-cf.statusTimeout.C:
			if cf.Status() == StatusConnected {
				cf.logger.Warn("copter stopped responding", "channel", cf.channel)
			}
			cf.setStatus(StatusNoResponse)
			cf.statusTimeout.Reset(statusTimeoutDuration)
		}
	}
}

func (cf *Crazyflie) PacketSend(request crtp.RequestPacketPtr) error {
	return cf.crtpDevice.PacketSend(cf.channel, cf.address, request)
}

func (cf *Crazyflie) PacketSendPriority(request crtp.RequestPacketPtr) error {
	return cf.crtpDevice.PacketSendPriority(cf.channel, cf.address, request)
}

// PacketStartAwaiting registers response to be filled by the next matching
// packet. The returned channel yields the decoding result once; stop must
// be called to release the registration.
func (cf *Crazyflie) PacketStartAwaiting(response crtp.ResponsePacketPtr) (<-chan error, func()) {
	errorChannel := make(chan error, 1)
	var lock sync.Mutex
	done := false

	callback := func(resp []byte) {
		lock.Lock()
		defer lock.Unlock()
		if done {
			return
		}

		header := crtp.Header(resp[0])
		if response.Port() != crtp.PortGreedy && (header.Port() != response.Port() || header.Channel() != response.Channel()) {
			return
		}

		err := response.LoadFromBytes(resp)
		if err == crtp.ErrorPacketIncorrectType || err == crtp.ErrorPacketTooShort {
			return // some other response on the same port and channel
		}

		done = true
		errorChannel <- err
	}

	port := response.Port()
	cf.callbackLock.Lock()
	e := cf.responseCallbacks[port].PushBack(callback)
	cf.callbackLock.Unlock()

	stop := func() {
		cf.callbackLock.Lock()
		cf.responseCallbacks[port].Remove(e)
		cf.callbackLock.Unlock()
	}
	return errorChannel, stop
}

func (cf *Crazyflie) PacketSendAndAwaitResponse(request crtp.RequestPacketPtr, response crtp.ResponsePacketPtr, timeout time.Duration) error {
	return cf.packetCustomSendAndAwaitResponse(request, response, timeout, cf.PacketSend)
}

func (cf *Crazyflie) PacketSendPriorityAndAwaitResponse(request crtp.RequestPacketPtr, response crtp.ResponsePacketPtr, timeout time.Duration) error {
	return cf.packetCustomSendAndAwaitResponse(request, response, timeout, cf.PacketSendPriority)
}

func (cf *Crazyflie) packetCustomSendAndAwaitResponse(request crtp.RequestPacketPtr, response crtp.ResponsePacketPtr, timeout time.Duration, sendFunction func(crtp.RequestPacketPtr) error) error {
	responseErrorChannel, stopAwaiting := cf.PacketStartAwaiting(response)
	defer stopAwaiting() // and remove it once we're done

	if err := sendFunction(request); err != nil { // schedule transmission of the packet
		return err
	}

	select {
	case err := <-responseErrorChannel:
		return err
	case <-cf.disconnect:
		return ErrorDisconnected
	case <-time.After(timeout):
		return ErrorNoResponse
	}
}

// Waits for the packet queues to be empty
func (cf *Crazyflie) PacketQueueWaitForEmpty() {
	cf.crtpDevice.ClientWaitUntilAllPacketsHaveBeenSent(cf.channel, cf.address)
}

// responseHandler runs on the device's worker goroutine for every
// acknowledgement the copter sends.
func (cf *Crazyflie) responseHandler(resp []byte) {
	cf.setStatus(StatusConnected)
	cf.statusTimeout.Reset(statusTimeoutDuration)
	cf.firstResponseOnce.Do(func() { close(cf.firstResponse) })

	if len(resp) == 0 {
		return
	}

	header := crtp.Header(resp[0])
	if header.IsEmpty() {
		return // CF has nothing to report
	}

	// copy the callbacks so they can (un)register callbacks themselves
	cf.callbackLock.Lock()
	var callbacks []func([]byte)
	for _, port := range []crtp.Port{header.Port(), crtp.PortGreedy} {
		if l, ok := cf.responseCallbacks[port]; ok {
			for e := l.Front(); e != nil; e = e.Next() {
				callbacks = append(callbacks, e.Value.(func([]byte)))
			}
		}
	}
	cf.callbackLock.Unlock()

	for _, f := range callbacks {
		f(resp)
	}
}
