package crtp

const (
	PortConsole  Port = 0x00
	PortParam    Port = 0x02
	PortSetpoint Port = 0x03
	PortMem      Port = 0x04
	PortLog      Port = 0x05
	PortPosition Port = 0x06
	PortPlatform Port = 0x0D
	PortLink     Port = 0x0F
	PortGreedy   Port = 0xFF
)

// Headers the copter sends back when it has nothing queued for us.
const (
	HeaderEmpty1 Header = 0xF3
	HeaderEmpty2 Header = 0xF7
)

// Ping is an empty link packet used to poll the copter for queued responses.
var Ping = []byte{0xFF}

type Header byte
type Port byte
type Channel byte

// HeaderBytes encodes the CRTP header byte for a port and channel.
func HeaderBytes(port Port, channel Channel) byte {
	var link byte = 3
	return ((byte(port) & 0x0F) << 4) |
		((link & 0x03) << 2) |
		((byte(channel) & 0x03) << 0)
}

func (header Header) Channel() Channel {
	return Channel((byte(header) >> 0) & 0x03)
}

func (header Header) Port() Port {
	return Port((byte(header) >> 4) & 0x0F)
}

// IsEmpty reports whether the header marks an empty acknowledgement.
func (header Header) IsEmpty() bool {
	return header == HeaderEmpty1 || header == HeaderEmpty2
}

// Encode prepends the header byte to the request body.
func Encode(request RequestPacketPtr) []byte {
	body := request.Bytes()
	data := make([]byte, len(body)+1)
	data[0] = HeaderBytes(request.Port(), request.Channel())
	copy(data[1:], body)
	return data
}
