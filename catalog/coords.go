package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatHours formats an hour angle or right ascension as HH:MM:SS.SS.
func FormatHours(hours float64) string {
	hours = math.Mod(hours, 24)
	if hours < 0 {
		hours += 24
	}
	total := int64(math.Round(hours * 360000))
	if total >= 24*360000 {
		total = 0
	}
	h := total / 360000
	m := total / 6000 % 60
	cs := total % 6000
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, cs/100, cs%100)
}

// FormatDegrees formats a declination as sDD*MM:SS.S.
func FormatDegrees(degrees float64) string {
	sign := '+'
	if degrees < 0 {
		sign = '-'
		degrees = -degrees
	}
	total := int64(math.Round(degrees * 36000))
	d := total / 36000
	m := total / 600 % 60
	ds := total % 600
	return fmt.Sprintf("%c%02d*%02d:%02d.%d", sign, d, m, ds/10, ds%10)
}

// ParseHours parses HH:MM:SS.SS (or HH:MM.T) into hours.
func ParseHours(reply string) (float64, error) {
	_, v, err := parseSexagesimal(reply)
	return v, err
}

// ParseDegrees parses sDD*MM:SS.S into degrees.
func ParseDegrees(reply string) (float64, error) {
	neg, v, err := parseSexagesimal(reply)
	if neg {
		v = -v
	}
	return v, err
}

func parseSexagesimal(reply string) (bool, float64, error) {
	s := trim(reply)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == '*' || r == '\xdf' || r == '\''
	})
	if len(fields) < 2 || len(fields) > 3 {
		return false, 0, fmt.Errorf("%w: %q", ErrMalformed, reply)
	}
	var v float64
	scale := 1.0
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil || x < 0 || (i > 0 && x >= 60) {
			return false, 0, fmt.Errorf("%w: %q", ErrMalformed, reply)
		}
		v += x / scale
		scale *= 60
	}
	return neg, v, nil
}
