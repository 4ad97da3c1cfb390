package config

import (
	"strconv"
	"strings"
)

// Pin is a parsed GPIO specification such as "17", "gpio17" or "!17".
type Pin struct {
	Number int
	Invert bool
}

func (p Pin) String() string {
	if p.Invert {
		return "!" + strconv.Itoa(p.Number)
	}
	return strconv.Itoa(p.Number)
}

// MaxPin is the highest GPIO number the controller exposes.
const MaxPin = 53

// ParsePin parses a pin specification. Format: [!][gpio]number
func ParsePin(desc string) (Pin, error) {
	d := strings.TrimSpace(desc)
	if d == "" {
		return Pin{}, NewConfigError("", "", "empty pin specification")
	}

	var p Pin
	if d[0] == '!' {
		p.Invert = true
		d = strings.TrimSpace(d[1:])
	}
	if len(d) > 4 && strings.EqualFold(d[:4], "gpio") {
		d = d[4:]
	}
	n, err := strconv.Atoi(d)
	if err != nil {
		return Pin{}, NewConfigError("", "", "invalid pin name in specification: "+desc)
	}
	if n < 0 || n > MaxPin {
		return Pin{}, NewConfigError("", "", "pin out of range in specification: "+desc)
	}
	p.Number = n
	return p, nil
}

// GetPin returns a Pin option value from the section.
func (s *Section) GetPin(option string, fallback ...Pin) (Pin, error) {
	if v, ok := s.lookup(option, len(fallback) > 0); ok {
		pin, err := ParsePin(v)
		if err != nil {
			return Pin{}, WrapError(s.name, option, err)
		}
		return pin, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return Pin{}, ErrMissingOption(s.name, option)
}
