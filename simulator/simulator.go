// Package simulator runs an in-process mount that speaks the command
// protocol of package catalog over a net.Pipe.
package simulator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/mount_interface/catalog"
	"golang.org/x/sync/errgroup"
)

const (
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
	// Sidereal hours per solar hour
	siderealRate = 1.00273790935
	// Site latitude in degrees, used for the horizon check
	latitude = 50
	// Hour angle in hours up to which the mount tracks on the west pier
	westLimit = 6
	// Dome rotation speed in degrees/second
	domeRate = 5
	// Seconds to open or close the shutter
	shutterTime = 10
)

// model is the simulated mount. Right ascensions and hour angles are in
// hours, declinations and azimuths in degrees.
type model struct {
	lst                 float64
	targetRA, targetDec float64
	ra, dec             float64
	status              int
	tracking            bool
	// pierWest is set when the telescope points west of the meridian.
	pierWest bool

	// Slew in progress
	goalRA, goalDec float64
	goalWest        bool
	remaining       float64

	domeAz      float64
	shutter     int
	shutterGoal int
	shutterLeft float64

	limit          int
	unattendedFlip bool
	slewRate       float64
}

type Simulator struct {
	conn  io.ReadWriteCloser
	mu    sync.Mutex
	speed float64
	mount model
}

// New returns a parked simulator and the connection to talk to it.
func New() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	s := &Simulator{
		conn:  a,
		speed: 1,
		mount: model{
			lst:         6,
			ra:          6,
			dec:         90,
			status:      catalog.CodeParked,
			domeAz:      180,
			shutter:     catalog.ShutterClosed,
			shutterGoal: catalog.ShutterClosed,
			limit:       10,
			slewRate:    15,
		},
	}
	s.mount.targetRA, s.mount.targetDec = s.mount.ra, s.mount.dec
	return s, b
}

// SetSpeed runs simulated time factor times faster than wall time.
func (s *Simulator) SetSpeed(factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = factor
}

// SiderealTime returns the simulated local sidereal time in hours.
func (s *Simulator) SiderealTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mount.lst
}

func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer s.conn.Close()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step()
		}
	})
	g.Go(s.reader)
	return g.Wait()
}

// scanCommands splits the input stream after every '#'.
func scanCommands(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '#'); i >= 0 {
		return i + 1, bytes.TrimSpace(data[:i]), nil
	}
	if atEOF && len(data) > 0 {
		return len(data), nil, nil
	}
	return 0, nil, nil
}

func (s *Simulator) reader() error {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(scanCommands)
	for scanner.Scan() {
		input := scanner.Text()
		if input == "" {
			continue
		}
		reply, ok := s.handle(input)
		if !ok {
			continue
		}
		if _, err := io.WriteString(s.conn, reply); err != nil {
			return fmt.Errorf("writing reply to %q: %w", input, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading port: %w", err)
	}
	return nil
}

// handle executes one command, given without its '#' terminator, and
// returns the reply if the mount sends one.
func (s *Simulator) handle(cmd string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &s.mount
	switch cmd {
	case ":U2":
		return "", false
	case ":Gr":
		return catalog.FormatHours(m.targetRA) + "#", true
	case ":Gd":
		return catalog.FormatDegrees(m.targetDec) + "#", true
	case ":GR":
		return catalog.FormatHours(m.ra) + "#", true
	case ":GD":
		return catalog.FormatDegrees(m.dec) + "#", true
	case ":Gstat":
		return fmt.Sprintf("%d#", m.status), true
	case ":GDA":
		return fmt.Sprintf("%04d#", int(math.Round(m.domeAz*10))), true
	case ":GDS":
		return fmt.Sprintf("%d#", m.shutter), true
	case ":Gmte":
		return fmt.Sprintf("%04d#", m.minutesToLimit()), true
	case ":Glmt":
		return fmt.Sprintf("%02d#", m.limit), true
	case ":MS":
		return m.slew(), true
	case ":STOP":
		log.Printf("sim: stop")
		m.remaining = 0
		m.tracking = false
		m.status = catalog.CodeStopped
		return "", false
	case ":hP":
		log.Printf("sim: park")
		m.tracking = false
		m.goalRA, m.goalDec, m.goalWest = m.lst, 90, false
		m.start(catalog.CodeParking)
		return "", false
	case ":PO":
		if m.status == catalog.CodeParked {
			log.Printf("sim: unpark")
			m.tracking = true
			m.status = catalog.CodeTracking
		}
		return "", false
	case ":FLIP":
		if m.status != catalog.CodeTracking || m.pierWest {
			return "0#", true
		}
		m.goalRA, m.goalDec, m.goalWest = m.ra, m.dec, true
		m.start(catalog.CodeSlewing)
		return "1#", true
	case ":SDS2":
		m.moveShutter(catalog.ShutterOpen)
		return "1#", true
	case ":SDS1":
		m.moveShutter(catalog.ShutterClosed)
		return "1#", true
	case ":AP":
		if m.status != catalog.CodeParked {
			m.tracking = true
			m.status = catalog.CodeTracking
		}
		return "", false
	case ":RT9":
		if m.status == catalog.CodeTracking {
			m.tracking = false
			m.status = catalog.CodeIdle
		}
		return "", false
	}

	switch {
	case strings.HasPrefix(cmd, ":Sr"):
		v, err := catalog.ParseHours(cmd[3:])
		if err != nil {
			return "0#", true
		}
		m.targetRA = v
		return "1#", true
	case strings.HasPrefix(cmd, ":Sd"):
		v, err := catalog.ParseDegrees(cmd[3:])
		if err != nil || math.Abs(v) > 90 {
			return "0#", true
		}
		m.targetDec = v
		return "1#", true
	case strings.HasPrefix(cmd, ":Slmt"):
		v, err := strconv.Atoi(cmd[5:])
		if err != nil || v < 0 || v > 30 {
			return "0#", true
		}
		m.limit = v
		return "1#", true
	case strings.HasPrefix(cmd, ":Suaf"):
		m.unattendedFlip = cmd[5:] == "1"
		return "1#", true
	case strings.HasPrefix(cmd, ":Sw"):
		if v, err := strconv.Atoi(cmd[3:]); err == nil && v >= 2 && v <= 15 {
			m.slewRate = float64(v)
		}
		return "", false
	}
	log.Printf("sim: unknown command %q", cmd)
	return "", false
}

func (m *model) hourAngle(ra float64) float64 {
	return hourDiff(m.lst, ra)
}

func (m *model) slew() string {
	switch {
	case m.status == catalog.CodeParked:
		return "4Mount Parked                #"
	case m.targetDec < latitude-90:
		return "1Object Below Horizon        #"
	}
	m.goalRA, m.goalDec = m.targetRA, m.targetDec
	m.goalWest = m.hourAngle(m.goalRA) >= 0
	m.start(catalog.CodeSlewing)
	log.Printf("sim: slewing to %s %s", catalog.FormatHours(m.goalRA), catalog.FormatDegrees(m.goalDec))
	return "0#"
}

// start begins a move to the goal position. A change of pier side turns
// the RA axis by half a revolution.
func (m *model) start(status int) {
	dist := math.Max(math.Abs(hourDiff(m.goalRA, m.ra))*15, math.Abs(m.goalDec-m.dec))
	if m.goalWest != m.pierWest {
		dist += 180
	}
	m.remaining = dist / m.slewRate
	m.status = status
}

func (m *model) moveShutter(goal int) {
	if m.shutter != goal {
		m.shutterGoal = goal
		m.shutterLeft = shutterTime
	}
}

// minutesToLimit estimates the tracking time left before the meridian
// limit on the east pier, or the west limit after a flip.
func (m *model) minutesToLimit() int {
	limit := float64(m.limit) / 15
	if m.pierWest {
		limit = westLimit
	}
	minutes := (limit - m.hourAngle(m.ra)) * 60
	return int(math.Max(0, math.Min(9999, minutes)))
}

func (s *Simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := &s.mount
	dt := stepSize.Seconds() * s.speed
	dLST := dt / 3600 * siderealRate
	m.lst = wrapHours(m.lst + dLST)

	switch m.status {
	case catalog.CodeSlewing, catalog.CodeParking:
		if dt >= m.remaining {
			m.ra, m.dec, m.pierWest = m.goalRA, m.goalDec, m.goalWest
			m.remaining = 0
			if m.status == catalog.CodeParking {
				m.status = catalog.CodeParked
				m.tracking = false
			} else {
				m.status = catalog.CodeTracking
				m.tracking = true
			}
			log.Printf("sim: reached %s %s, status %d", catalog.FormatHours(m.ra), catalog.FormatDegrees(m.dec), m.status)
			break
		}
		f := dt / m.remaining
		m.ra = wrapHours(m.ra + hourDiff(m.goalRA, m.ra)*f)
		m.dec += (m.goalDec - m.dec) * f
		m.remaining -= dt
		if m.status == catalog.CodeParking {
			m.goalRA = wrapHours(m.goalRA + dLST)
		}
	default:
		if !m.tracking {
			// The axes are at rest, so the sky moves past.
			m.ra = wrapHours(m.ra + dLST)
		} else if m.minutesToLimit() == 0 {
			log.Printf("sim: tracking limit reached")
			m.tracking = false
			m.status = catalog.CodeOutsideLimits
		}
	}

	// The dome is slaved to the telescope's hour angle.
	az := math.Mod(180+m.hourAngle(m.ra)*15+360, 360)
	move := math.Remainder(az-m.domeAz, 360)
	if limit := domeRate * dt; math.Abs(move) > limit {
		move = math.Copysign(limit, move)
	}
	m.domeAz = math.Mod(m.domeAz+move+360, 360)

	if m.shutterLeft > 0 {
		m.shutterLeft -= dt
		if m.shutterLeft <= 0 {
			m.shutter = m.shutterGoal
		}
	}
}

// hourDiff returns a-b wrapped into [-12, 12).
func hourDiff(a, b float64) float64 {
	d := math.Mod(a-b+12, 24)
	if d < 0 {
		d += 24
	}
	return d - 12
}

func wrapHours(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}
