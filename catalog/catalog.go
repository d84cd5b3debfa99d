// Package catalog maps logical mount operations to 10micron/LX200 command
// strings and parses the mount's replies.
//
// Every reply from the mount is terminated by '#'. Parsers accept the
// terminator being present or absent.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a reply cannot be converted.
var ErrMalformed = errors.New("malformed reply")

// Polled reads. The U2 prefix selects high precision coordinates.
const (
	GetTargetRA     = ":U2#:Gr#"
	GetTargetDec    = ":U2#:Gd#"
	GetTelescopeRA  = ":U2#:GR#"
	GetTelescopeDec = ":U2#:GD#"
	GetStatus       = ":Gstat#"
	GetDomeAzimuth  = ":GDA#"
	GetShutter      = ":GDS#"
	GetTrackingTime = ":Gmte#"
)

// Movement and parameter commands.
const (
	Slew           = ":MS#"
	Stop           = ":STOP#"
	Park           = ":hP#"
	Unpark         = ":PO#"
	Flip           = ":FLIP#"
	OpenShutter    = ":SDS2#"
	CloseShutter   = ":SDS1#"
	TrackingOn     = ":AP#"
	TrackingOff    = ":RT9#"
	GetMeridianLim = ":Glmt#"
)

// Shutter states as reported by GetShutter.
const (
	ShutterClosed = 1
	ShutterOpen   = 2
)

// noReply lists commands the mount never answers.
var noReply = map[string]bool{
	Stop:        true,
	Park:        true,
	Unpark:      true,
	TrackingOn:  true,
	TrackingOff: true,
}

// NoReply reports whether the mount sends nothing back for command.
func NoReply(command string) bool {
	if noReply[command] {
		return true
	}
	return strings.HasPrefix(command, ":Sw")
}

// SetTargetRA returns the command setting the target right ascension, in hours.
func SetTargetRA(hours float64) string {
	return ":Sr" + FormatHours(hours) + "#"
}

// SetTargetDec returns the command setting the target declination, in degrees.
func SetTargetDec(degrees float64) string {
	return ":Sd" + FormatDegrees(degrees) + "#"
}

// SetMeridianLimit sets the meridian limit for tracking in degrees.
func SetMeridianLimit(degrees int) string {
	return fmt.Sprintf(":Slmt%02d#", degrees)
}

// SetUnattendedFlip enables or disables the unattended flip.
func SetUnattendedFlip(enabled bool) string {
	if enabled {
		return ":Suaf1#"
	}
	return ":Suaf0#"
}

// SetSlewRate sets the maximum slew rate in degrees per second (2..15).
func SetSlewRate(rate int) string {
	return fmt.Sprintf(":Sw%02d#", rate)
}

func trim(reply string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(reply), "#"))
}

// ParseInt parses integer replies such as "5#".
func ParseInt(reply string) (int, error) {
	v, err := strconv.Atoi(trim(reply))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, reply)
	}
	return v, nil
}

// ParseDomeAzimuth converts the dome azimuth reply, in tenths of a degree,
// to degrees. An empty reply is the mount's "no dome" marker.
func ParseDomeAzimuth(reply string) (float64, error) {
	s := trim(reply)
	if s == "" {
		return DomeUnknown, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, reply)
	}
	return v / 10, nil
}

// DomeUnknown is the azimuth reported when no dome is connected.
const DomeUnknown = 999.9

// ParseAccepted interprets the "1#"/"0#" replies of set commands.
func ParseAccepted(reply string) bool {
	return trim(reply) == "1"
}

// ParseSlew interprets the reply of Slew. "0" means the slew started;
// anything else is a reason string such as "1Object Below Horizon".
func ParseSlew(reply string) error {
	s := trim(reply)
	if s == "0" {
		return nil
	}
	if s == "" {
		return fmt.Errorf("%w: empty slew reply", ErrMalformed)
	}
	return fmt.Errorf("slew rejected (%s): %s", s[:1], strings.TrimSpace(s[1:]))
}
