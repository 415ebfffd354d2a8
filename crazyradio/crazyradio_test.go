package crazyradio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/crtp"
)

type fakeTransceiver struct {
	sync.Mutex

	mu       sync.Mutex
	channel  uint8
	datarate Datarate
	address  uint64
	sent     [][]byte
	scan     map[Datarate][]uint8
	closed   bool
	nack     bool
}

func (f *fakeTransceiver) SetChannel(channel uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channel
	return nil
}

func (f *fakeTransceiver) SetDatarate(datarate Datarate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.datarate = datarate
	return nil
}

func (f *fakeTransceiver) SetAddress(address uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.address = address
	return nil
}

func (f *fakeTransceiver) SendPacket(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransceiver) ReadResponse() (bool, []byte, error) {
	time.Sleep(time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nack {
		return false, nil, nil
	}
	return true, []byte{byte(crtp.HeaderEmpty1)}, nil
}

func (f *fakeTransceiver) setNack(nack bool) {
	f.mu.Lock()
	f.nack = nack
	f.mu.Unlock()
}

func (f *fakeTransceiver) ScanChannels(start, stop uint8, packet []byte) ([]uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scan[f.datarate], nil
}

func (f *fakeTransceiver) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransceiver) sentNonPing() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, p := range f.sent {
		if len(p) == 1 && p[0] == crtp.Ping[0] {
			continue
		}
		out = append(out, p)
	}
	return out
}

type testRequest struct {
	port crtp.Port
	body []byte
}

func (r testRequest) Port() crtp.Port       { return r.port }
func (r testRequest) Channel() crtp.Channel { return 0 }
func (r testRequest) Bytes() []byte         { return r.body }

func newIdleRadio(dev transceiver) *Radio {
	return &Radio{
		device:           dev,
		options:          DefaultOptions(),
		logger:           hclog.NewNullLogger(),
		clients:          make(map[clientKey]*client),
		threadShouldStop: make(chan struct{}),
	}
}

func TestRadio_ServicePriorityFirst(t *testing.T) {
	dev := &fakeTransceiver{}
	radio := newIdleRadio(dev)

	var responses int
	radio.ClientRegister(80, DefaultAddress, func(resp []byte) { responses++ })

	if err := radio.PacketSend(80, DefaultAddress, testRequest{crtp.PortSetpoint, []byte{1}}); err != nil {
		t.Fatalf("PacketSend: %v", err)
	}
	if err := radio.PacketSendPriority(80, DefaultAddress, testRequest{crtp.PortSetpoint, []byte{2}}); err != nil {
		t.Fatalf("PacketSendPriority: %v", err)
	}

	for i := 0; i < 3; i++ {
		radio.service(radio.snapshot()[0])
	}

	sent := dev.sentNonPing()
	if len(sent) != 2 {
		t.Fatalf("sent %d packets, want 2", len(sent))
	}
	if sent[0][1] != 2 || sent[1][1] != 1 {
		t.Errorf("send order = %v, want priority packet first", sent)
	}
	if len(dev.sent) != 3 {
		t.Errorf("transfers = %d, want 3 (two packets and a ping)", len(dev.sent))
	}
	if responses != 3 {
		t.Errorf("callbacks = %d, want 3", responses)
	}
	if dev.channel != 80 || dev.address != DefaultAddress || dev.datarate != Datarate2MPS {
		t.Errorf("radio tuned to %d/%s/%X", dev.channel, dev.datarate, dev.address)
	}
}

func TestRadio_SetpointsKeepOnlyNewest(t *testing.T) {
	dev := &fakeTransceiver{nack: true}
	radio := newIdleRadio(dev)
	radio.ClientRegister(80, DefaultAddress, nil)

	for i := byte(0); i < 200; i++ {
		if err := radio.PacketSendPriority(80, DefaultAddress, testRequest{crtp.PortSetpoint, []byte{i}}); err != nil {
			t.Fatalf("PacketSendPriority: %v", err)
		}
		if i%20 == 0 {
			radio.service(radio.snapshot()[0])
		}
	}

	queue := radio.clientQueue(80, DefaultAddress)
	if n := queue.priorityQueue.Len(); n != 0 {
		t.Errorf("priority queue holds %d setpoints", n)
	}

	if err := radio.PacketSendPriority(80, DefaultAddress, testRequest{crtp.PortLog, []byte{0xAA}}); err != nil {
		t.Fatalf("PacketSendPriority: %v", err)
	}
	if n := queue.priorityQueue.Len(); n != 1 {
		t.Errorf("priority queue holds %d packets, want the log packet", n)
	}

	dev.setNack(false)
	radio.service(radio.snapshot()[0])
	radio.service(radio.snapshot()[0])
	radio.service(radio.snapshot()[0])

	sent := dev.sentNonPing()
	last := sent[len(sent)-2:]
	if last[0][1] != 0xAA {
		t.Errorf("first acked packet = %v, want the log packet", last[0])
	}
	if last[1][1] != 199 {
		t.Errorf("setpoint sent = %v, want the newest (199)", last[1])
	}
	if queue.setpoint.pending() {
		t.Error("acknowledged setpoint still pending")
	}
	if len(dev.sent) == 0 || len(dev.sent[len(dev.sent)-1]) != 1 {
		t.Errorf("last transfer = %v, want a ping once drained", dev.sent[len(dev.sent)-1])
	}
}

func TestRadio_WorkerDrainsQueues(t *testing.T) {
	dev := &fakeTransceiver{}
	radio := newRadio(dev, DefaultOptions())
	defer radio.Close()

	responses := make(chan []byte, 1)
	radio.ClientRegister(80, DefaultAddress, func(resp []byte) {
		select {
		case responses <- resp:
		default:
		}
	})

	for i := byte(0); i < 5; i++ {
		if err := radio.PacketSend(80, DefaultAddress, testRequest{crtp.PortSetpoint, []byte{i}}); err != nil {
			t.Fatalf("PacketSend: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		radio.ClientWaitUntilAllPacketsHaveBeenSent(80, DefaultAddress)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queues never drained")
	}

	if sent := dev.sentNonPing(); len(sent) != 5 {
		t.Errorf("sent %d packets, want 5", len(sent))
	}

	select {
	case <-responses:
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
}

func TestRadio_PacketSendUnknownClient(t *testing.T) {
	radio := newRadio(&fakeTransceiver{}, DefaultOptions())
	defer radio.Close()

	err := radio.PacketSend(10, DefaultAddress, testRequest{crtp.PortSetpoint, nil})
	if err != ErrorUnknownClient {
		t.Errorf("err = %v, want %v", err, ErrorUnknownClient)
	}
}

func TestRadio_ClosedRejectsPackets(t *testing.T) {
	dev := &fakeTransceiver{}
	radio := newRadio(dev, DefaultOptions())
	radio.ClientRegister(10, DefaultAddress, nil)
	radio.Close()
	radio.Close()

	if err := radio.PacketSend(10, DefaultAddress, testRequest{crtp.PortSetpoint, nil}); err != ErrorClosed {
		t.Errorf("err = %v, want %v", err, ErrorClosed)
	}
	if !dev.closed {
		t.Error("device not closed")
	}
}

func TestRadio_FindCopters(t *testing.T) {
	dev := &fakeTransceiver{scan: map[Datarate][]uint8{
		Datarate250KPS: {10},
		Datarate2MPS:   {80, 100},
	}}
	options := DefaultOptions()
	options.Index = 1
	radio := newRadio(dev, options)
	defer radio.Close()

	links, err := radio.FindCopters(context.Background())
	if err != nil {
		t.Fatalf("FindCopters: %v", err)
	}

	want := []string{
		"radio://1/10/250K/E7E7E7E7E7",
		"radio://1/80/2M/E7E7E7E7E7",
		"radio://1/100/2M/E7E7E7E7E7",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i, l := range links {
		if l.String() != want[i] {
			t.Errorf("links[%d] = %s, want %s", i, l, want[i])
		}
	}
}

func TestRadio_FindCoptersCancelled(t *testing.T) {
	radio := newRadio(&fakeTransceiver{}, DefaultOptions())
	defer radio.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := radio.FindCopters(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}
