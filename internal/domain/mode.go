package domain

import (
	"fmt"
	"strings"
)

// Mode is a transportation category
type Mode string

const (
	ModeTaxiYellow Mode = "taxi_yellow"
	ModeTaxiGreen  Mode = "taxi_green"
	ModeFHV        Mode = "fhv"
	ModeSubway     Mode = "subway"
	ModeBikeshare  Mode = "bikeshare"
)

// AllModes lists every supported mode in a fixed order
var AllModes = []Mode{ModeTaxiYellow, ModeTaxiGreen, ModeFHV, ModeSubway, ModeBikeshare}

// ParseMode accepts canonical names plus the short aliases used by the dashboard
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "taxi_yellow", "yellow":
		return ModeTaxiYellow, nil
	case "taxi_green", "green":
		return ModeTaxiGreen, nil
	case "fhv":
		return ModeFHV, nil
	case "subway":
		return ModeSubway, nil
	case "bikeshare", "bike":
		return ModeBikeshare, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

func (m Mode) String() string {
	return string(m)
}
