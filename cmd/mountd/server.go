package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/mount_interface/catalog"
	"github.com/w1xm/mount_interface/dome"
	"github.com/w1xm/mount_interface/mount"
)

type Server struct {
	m      *mount.Mount
	relays *dome.Relays

	statusMu sync.RWMutex
	dome     *dome.Status
}

type Message struct {
	Text   string    `json:"text"`
	Posted time.Time `json:"posted"`
	Read   bool      `json:"read"`
}

func newMessage(m mount.Message) Message {
	return Message{Text: m.Text, Posted: m.Posted, Read: m.Read}
}

type Status struct {
	Status          catalog.Status `json:"status"`
	Code            int            `json:"code"`
	TargetRA        float64        `json:"target_ra"`
	TargetDec       float64        `json:"target_dec"`
	TelescopeRA     float64        `json:"telescope_ra"`
	TelescopeDec    float64        `json:"telescope_dec"`
	DomeAzimuth     float64        `json:"dome_azimuth"`
	Shutter         int            `json:"shutter"`
	TrackingMinutes int            `json:"tracking_minutes"`
	Updated         time.Time      `json:"updated"`
	Correction      bool           `json:"correction"`
	Warning         Message        `json:"warning"`
	Information     Message        `json:"information"`
	Relays          *dome.Status   `json:"relays,omitempty"`
}

func (s *Server) Status() Status {
	st := s.m.State()
	status := Status{
		Status:          s.m.Status(),
		Code:            st.Status,
		TargetRA:        st.TargetRA,
		TargetDec:       st.TargetDec,
		TelescopeRA:     st.TelescopeRA,
		TelescopeDec:    st.TelescopeDec,
		DomeAzimuth:     st.DomeAzimuth,
		Shutter:         st.Shutter,
		TrackingMinutes: st.TrackingMinutes,
		Updated:         st.Updated,
		Correction:      s.m.Correction.Enabled(),
		Warning:         newMessage(s.m.Warning()),
		Information:     newMessage(s.m.Information()),
	}
	s.statusMu.RLock()
	status.Relays = s.dome
	s.statusMu.RUnlock()
	return status
}

func (s *Server) domeCallback(status dome.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.dome = &status
}

func (s *Server) Router(staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	r.HandleFunc("/api/command", s.CommandHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/messages/{kind}/read", s.MessageReadHandler).Methods(http.MethodPost)
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Status())
}

func (s *Server) MessageReadHandler(w http.ResponseWriter, r *http.Request) {
	switch kind := mux.Vars(r)["kind"]; kind {
	case "warning":
		writeJSON(w, newMessage(s.m.ReadWarning()))
	case "information":
		writeJSON(w, newMessage(s.m.ReadInformation()))
	default:
		http.Error(w, fmt.Sprintf("unknown message kind %q", kind), http.StatusNotFound)
	}
}

type Command struct {
	Command string  `json:"command"`
	RA      float64 `json:"ra"`
	Dec     float64 `json:"dec"`
	// DRA (hours) and DDec (degrees) are a measured slew error at RA, Dec.
	DRA     float64 `json:"d_ra"`
	DDec    float64 `json:"d_dec"`
	Enabled bool    `json:"enabled"`
	Degrees int     `json:"degrees"`
	Rate    int     `json:"rate"`
	Raw     string  `json:"raw"`
}

type CommandResult struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

var (
	errUnknownCommand = errors.New("unknown command")
	errNoDome         = errors.New("no dome relays configured")
)

// execute runs one command against the mount. Only raw commands and
// get_meridian_limit return a reply.
func (s *Server) execute(ctx context.Context, cmd Command) (string, error) {
	m := s.m
	switch cmd.Command {
	case "slew":
		return "", m.Slew(ctx, cmd.RA, cmd.Dec)
	case "park":
		return "", m.Park(ctx)
	case "unpark":
		return "", m.Unpark(ctx)
	case "stop":
		return "", m.Stop(ctx)
	case "flip":
		return "", m.Flip(ctx)
	case "open_shutter":
		return "", m.OpenShutter(ctx)
	case "close_shutter":
		return "", m.CloseShutter(ctx)
	case "tracking":
		return "", m.SetTracking(ctx, cmd.Enabled)
	case "set_meridian_limit":
		return "", m.SetMeridianLimit(ctx, cmd.Degrees)
	case "get_meridian_limit":
		degrees, err := m.MeridianLimit(ctx)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(degrees), nil
	case "slew_rate":
		return "", m.SetSlewRate(ctx, cmd.Rate)
	case "set_unattended_flip":
		return "", m.SetUnattendedFlip(ctx, cmd.Enabled)
	case "correction":
		m.Correction.SetEnabled(cmd.Enabled)
		return "", nil
	case "correction_sample":
		m.Correction.Add(cmd.RA, cmd.Dec, cmd.DRA, cmd.DDec, time.Now())
		return "", nil
	case "lights", "humidifier":
		if s.relays == nil {
			return "", errNoDome
		}
		if cmd.Command == "lights" {
			return "", s.relays.SetLights(cmd.Enabled)
		}
		return "", s.relays.SetHumidifier(cmd.Enabled)
	case "raw":
		if cmd.Raw == "" {
			return "", errors.New("raw: empty command")
		}
		return m.Send(ctx, cmd.Raw)
	}
	return "", fmt.Errorf("%w %q", errUnknownCommand, cmd.Command)
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.execute(r.Context(), cmd)
	if err != nil {
		log.Printf("%s: %v", cmd.Command, err)
		code := http.StatusBadGateway
		if errors.Is(err, errUnknownCommand) {
			code = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(CommandResult{Error: err.Error()})
		return
	}
	writeJSON(w, CommandResult{Reply: reply})
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if _, err := s.execute(ctx, msg); err != nil {
				log.Printf("%s: %v", msg.Command, err)
			}
		}
	}()

	watcher := s.m.Subscribe()
	for {
		if err := conn.WriteJSON(s.Status()); err != nil {
			log.Print(err)
			return
		}
		if _, err := watcher.Next(ctx); err != nil {
			return
		}
	}
}
