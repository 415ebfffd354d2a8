package control

import (
	"fmt"
	"strings"
)

type controlError uint8

func (e controlError) Error() string {
	return fmt.Sprintf("control: %s", controlErrorString[e])
}

const (
	ErrorUnsupportedScheme controlError = iota
	ErrorUnknownScheme
)

var controlErrorString = map[controlError]string{
	ErrorUnsupportedScheme: "mapping scheme has no defined behaviour",
	ErrorUnknownScheme:     "unknown mapping scheme",
}

// Scheme selects how controller axes map onto a setpoint.
type Scheme uint8

const (
	OneStick    Scheme = 1
	TwoStick    Scheme = 2
	Three       Scheme = 3
	Dave        Scheme = 4
	ReverseDave Scheme = 5
)

const DefaultScheme = ReverseDave

var schemeNames = map[Scheme]string{
	OneStick:    "one-stick",
	TwoStick:    "two-stick",
	Three:       "three",
	Dave:        "dave",
	ReverseDave: "reverse-dave",
}

func (s Scheme) String() string {
	if name, ok := schemeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scheme(%d)", uint8(s))
}

// ParseScheme accepts the scheme names, ignoring case, with - or _.
func ParseScheme(name string) (Scheme, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for s, n := range schemeNames {
		if n == normalized {
			return s, nil
		}
	}
	return 0, ErrorUnknownScheme
}

// Supported reports whether the scheme has a mapping.
func (s Scheme) Supported() bool {
	switch s {
	case OneStick, TwoStick, Dave, ReverseDave:
		return true
	default:
		return false
	}
}

func (s Scheme) MarshalText() ([]byte, error) {
	if _, ok := schemeNames[s]; !ok {
		return nil, ErrorUnknownScheme
	}
	return []byte(s.String()), nil
}

func (s *Scheme) UnmarshalText(text []byte) error {
	parsed, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
