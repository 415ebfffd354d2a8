package crazyradio

import (
	"fmt"
	"strconv"
	"strings"
)

// Link is the radio path of one copter. Its URI form is the copter's
// identity, e.g. radio://0/80/2M/E7E7E7E7E7.
type Link struct {
	Index    int
	Channel  uint8
	Datarate Datarate
	Address  uint64
}

const linkScheme = "radio://"

func (l Link) String() string {
	return fmt.Sprintf("%s%d/%d/%s/%010X", linkScheme, l.Index, l.Channel, l.Datarate, l.Address)
}

// ParseLink parses a radio URI. The address is optional and defaults to
// DefaultAddress.
func ParseLink(uri string) (Link, error) {
	if !strings.HasPrefix(uri, linkScheme) {
		return Link{}, ErrorInvalidLink
	}
	parts := strings.Split(strings.TrimPrefix(uri, linkScheme), "/")
	if len(parts) < 3 || len(parts) > 4 {
		return Link{}, ErrorInvalidLink
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 0 {
		return Link{}, ErrorInvalidLink
	}

	channel, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || uint8(channel) > MaxChannel {
		return Link{}, ErrorInvalidChannel
	}

	datarate, err := ParseDatarate(strings.ToUpper(parts[2]))
	if err != nil {
		return Link{}, err
	}

	address := DefaultAddress
	if len(parts) == 4 {
		address, err = strconv.ParseUint(strings.TrimPrefix(parts[3], "0x"), 16, 40) // trim any leading hex prefix
		if err != nil {
			return Link{}, ErrorInvalidLink
		}
	}

	return Link{Index: index, Channel: uint8(channel), Datarate: datarate, Address: address}, nil
}
