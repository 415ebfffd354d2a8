package copter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikehamer/crazypilot/crazyradio"
)

type fakeSession struct {
	mu        sync.Mutex
	setpoints [][4]float64
	handlers  map[Channel]func(map[string]float64)
	closed    bool
}

func (s *fakeSession) SetpointSend(roll, pitch, yaw float64, thrust uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setpoints = append(s.setpoints, [4]float64{roll, pitch, yaw, float64(thrust)})
	return nil
}

func (s *fakeSession) Subscribe(channel Channel, fn func(map[string]float64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[Channel]func(map[string]float64))
	}
	s.handlers[channel] = fn
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) report(channel Channel, data map[string]float64) {
	s.mu.Lock()
	fn := s.handlers[channel]
	s.mu.Unlock()
	fn(data)
}

type fakeDriver struct {
	mu      sync.Mutex
	calls   int
	session *fakeSession
	err     error
	release chan struct{}
}

func (d *fakeDriver) Connect(ctx context.Context, link crazyradio.Link) (Session, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func testLink() crazyradio.Link {
	return crazyradio.Link{Channel: 80, Datarate: crazyradio.Datarate2MPS, Address: crazyradio.DefaultAddress}
}

func waitConnected(t *testing.T, c *Copter) {
	t.Helper()
	connected := make(chan struct{})
	sub := c.OnConnected(func(*Copter) { close(connected) })
	defer sub.Close()

	if c.State() == StateConnected {
		return
	}
	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatalf("copter never connected, state %s", c.State())
	}
}

func TestCopter_Key(t *testing.T) {
	c := New(testLink(), &fakeDriver{}, nil)
	if c.Key() != "radio://0/80/2M/E7E7E7E7E7" {
		t.Errorf("Key = %s", c.Key())
	}
}

func TestCopter_ConnectSubscribesTelemetry(t *testing.T) {
	session := &fakeSession{}
	driver := &fakeDriver{session: session, release: make(chan struct{})}
	c := New(testLink(), driver, nil)

	connected := make(chan struct{})
	c.OnConnected(func(*Copter) { close(connected) })

	c.Connect(context.Background())
	if c.State() != StateConnecting {
		t.Errorf("state = %s, want connecting", c.State())
	}
	c.Connect(context.Background()) // no-op while connecting
	close(driver.release)

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("never connected")
	}

	if driver.calls != 1 {
		t.Errorf("driver called %d times, want 1", driver.calls)
	}
	if len(session.handlers) != len(Channels) {
		t.Errorf("subscribed to %d channels, want %d", len(session.handlers), len(Channels))
	}

	var got []Telemetry
	c.OnTelemetry(func(tm Telemetry) { got = append(got, tm) })

	if _, ok := c.Stabilizer(); ok {
		t.Error("stabilizer reported before telemetry")
	}
	session.report(ChannelStabilizer, map[string]float64{"roll": 1, "pitch": 2, "yaw": 3, "thrust": 4})
	session.report(ChannelGyro, map[string]float64{"x": 1})

	s, ok := c.Stabilizer()
	if !ok || s != (Stabilizer{1, 2, 3, 4}) {
		t.Errorf("stabilizer = %+v, %v", s, ok)
	}
	if len(got) != 2 || got[0].Channel != ChannelStabilizer || got[1].Channel != ChannelGyro {
		t.Errorf("telemetry = %+v", got)
	}
}

func TestCopter_FailedConnectReturnsToDisconnected(t *testing.T) {
	driver := &fakeDriver{err: errors.New("no ack"), release: make(chan struct{})}
	c := New(testLink(), driver, nil)

	c.Connect(context.Background())
	close(driver.release)

	deadline := time.Now().Add(time.Second)
	for c.State() != StateDisconnected {
		if time.Now().After(deadline) {
			t.Fatal("state never returned to disconnected")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCopter_SetpointWithoutSessionIsDropped(t *testing.T) {
	c := New(testLink(), &fakeDriver{}, nil)
	if err := c.Setpoint(1, 2, 3, 10001); err != nil {
		t.Errorf("Setpoint = %v, want nil", err)
	}
}

func TestCopter_SetpointAndDisconnect(t *testing.T) {
	session := &fakeSession{}
	c := New(testLink(), &fakeDriver{session: session}, nil)
	c.Connect(context.Background())
	waitConnected(t, c)

	if err := c.Setpoint(1, 2, 3, 35000); err != nil {
		t.Fatalf("Setpoint: %v", err)
	}
	if len(session.setpoints) != 1 || session.setpoints[0] != [4]float64{1, 2, 3, 35000} {
		t.Errorf("setpoints = %v", session.setpoints)
	}

	disconnected := 0
	c.OnDisconnected(func(*Copter) { disconnected++ })
	c.Disconnect()
	c.Disconnect()

	if !session.closed {
		t.Error("session not closed")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s", c.State())
	}
	if disconnected != 1 {
		t.Errorf("disconnected events = %d, want 1", disconnected)
	}
}

func TestCopter_DisconnectWhileConnecting(t *testing.T) {
	session := &fakeSession{}
	driver := &fakeDriver{session: session, release: make(chan struct{})}
	c := New(testLink(), driver, nil)

	c.Connect(context.Background())
	c.Disconnect()
	close(driver.release)

	deadline := time.Now().Add(time.Second)
	for {
		session.mu.Lock()
		closed := session.closed
		session.mu.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("late session was not closed")
		}
		time.Sleep(time.Millisecond)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}
}
