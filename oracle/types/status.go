package types

import "fmt"

// StatusCode is the flight status reported by oracles.
type StatusCode uint8

const (
	StatusUnknown       StatusCode = 0
	StatusCheckInClosed StatusCode = 10
	StatusOnTime        StatusCode = 20
	StatusLateAirline   StatusCode = 30
	StatusLateWeather   StatusCode = 40
	StatusLateTechnical StatusCode = 50
	StatusLateOther     StatusCode = 60
)

// UnrecognizedStatusLabel is shown for codes outside the defined set.
const UnrecognizedStatusLabel = "Unrecognized status"

var statusLabels = map[StatusCode]string{
	StatusUnknown:       "Unknown",
	StatusCheckInClosed: "Check-in Closed",
	StatusOnTime:        "On Time",
	StatusLateAirline:   "Late (Airline)",
	StatusLateWeather:   "Late (Weather)",
	StatusLateTechnical: "Late (Technical)",
	StatusLateOther:     "Late (Other)",
}

// StatusCodes lists every defined code in ascending order.
func StatusCodes() []StatusCode {
	return []StatusCode{
		StatusUnknown,
		StatusCheckInClosed,
		StatusOnTime,
		StatusLateAirline,
		StatusLateWeather,
		StatusLateTechnical,
		StatusLateOther,
	}
}

// Valid reports whether s is one of the defined codes.
func (s StatusCode) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label maps s to its display text, falling back to UnrecognizedStatusLabel.
func (s StatusCode) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}

	return UnrecognizedStatusLabel
}

func (s StatusCode) String() string {
	return fmt.Sprintf("%d (%s)", uint8(s), s.Label())
}

// ParseStatusCode converts an integer into a defined status code.
func ParseStatusCode(v int64) (StatusCode, error) {
	if v < 0 || v > 255 {
		return 0, fmt.Errorf("status code %d out of range", v)
	}
	s := StatusCode(v)
	if !s.Valid() {
		return 0, fmt.Errorf("undefined status code %d", v)
	}

	return s, nil
}
