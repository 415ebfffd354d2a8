package crtp

import "testing"

type setpointRequest struct{}

func (setpointRequest) Port() Port       { return PortSetpoint }
func (setpointRequest) Channel() Channel { return 0 }
func (setpointRequest) Bytes() []byte    { return []byte{1, 2} }

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		port    Port
		channel Channel
	}{
		{PortConsole, 0},
		{PortSetpoint, 0},
		{PortLog, 1},
		{PortLog, 2},
		{PortLink, 3},
	}

	for _, c := range cases {
		h := Header(HeaderBytes(c.port, c.channel))
		if h.Port() != c.port {
			t.Errorf("port = %#x, want %#x", h.Port(), c.port)
		}
		if h.Channel() != c.channel {
			t.Errorf("channel = %d, want %d", h.Channel(), c.channel)
		}
	}
}

func TestEncode(t *testing.T) {
	data := Encode(setpointRequest{})
	if len(data) != 3 {
		t.Fatalf("len = %d, want 3", len(data))
	}
	if data[0] != 0x3C {
		t.Errorf("header = %#x, want 0x3c", data[0])
	}
	if data[1] != 1 || data[2] != 2 {
		t.Errorf("body = %v", data[1:])
	}
}

func TestHeaderIsEmpty(t *testing.T) {
	if !HeaderEmpty1.IsEmpty() || !HeaderEmpty2.IsEmpty() {
		t.Error("empty headers not recognised")
	}
	if Header(HeaderBytes(PortLog, 2)).IsEmpty() {
		t.Error("log header reported as empty")
	}
}
