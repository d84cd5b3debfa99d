package catalog

// Status codes reported by GetStatus.
const (
	CodeDisconnected  = -1
	CodeTracking      = 0
	CodeStopped       = 1
	CodeParking       = 2
	CodeUnparking     = 3
	CodeHoming        = 4
	CodeParked        = 5
	CodeSlewing       = 6
	CodeIdle          = 7
	CodeInhibited     = 8
	CodeOutsideLimits = 9
	CodeSatellite     = 10
	CodeNeedsUserOK   = 11
	CodeUnknownStatus = 98
	CodeError         = 99
)

// Status is the coarse classification exposed to observers.
type Status string

const (
	Disconnected Status = "disconnected"
	Parked       Status = "parked"
	Slewing      Status = "slewing"
	Tracking     Status = "tracking"
	Unknown      Status = "unknown"
)

// Classify maps a status code onto a Status.
func Classify(code int) Status {
	switch code {
	case CodeDisconnected:
		return Disconnected
	case CodeParked:
		return Parked
	case CodeParking, CodeUnparking, CodeHoming, CodeSlewing:
		return Slewing
	case CodeTracking, CodeOutsideLimits, CodeSatellite:
		return Tracking
	}
	return Unknown
}
