// Command modbus_server shares the dome relay bus over HTTP so that mountd
// can run on a different machine from the serial port.
package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gorilla/mux"
	"github.com/spf13/pflag"
	"github.com/w1xm/mount_interface/internal/modbus/modbushttp"
)

var (
	addr       = pflag.String("addr", "127.0.0.1:8503", "address to listen on")
	password   = pflag.String("password", "", "password to require on remote connections")
	serialPort = pflag.String("dome_serial", "", "dome relay serial port name")
	baud       = pflag.Int("dome_baud", 19200, "dome relay baud rate")
	slaveID    = pflag.Uint8("slave_id", 1, "modbus slave id of the relay box")
)

// sender is the part of a modbus transporter the bridge forwards frames to.
type sender interface {
	Send(aduRequest []byte) (aduResponse []byte, err error)
}

type Server struct {
	bus      sender
	password string
}

func newHandler(port string, baud int, slaveID byte) *modbus.RTUClientHandler {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = slaveID
	return handler
}

func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	_, pass, ok := r.BasicAuth()
	if s.password != "" && (!ok || pass != s.password) {
		http.Error(w, "wrong password", http.StatusUnauthorized)
		return
	}
	err := func() error {
		aduRequest, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		aduResponse, err := s.bus.Send(aduRequest)
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&modbushttp.SendResponse{
			ADUResponse: aduResponse,
			Error:       errString,
		})
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		log.Printf("SendHandler: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/send", http.HandlerFunc(s.SendHandler)).Methods(http.MethodPost)
	r.PathPrefix("/debug").Handler(http.DefaultServeMux)
	return r
}

func main() {
	pflag.Parse()
	handler := newHandler(*serialPort, *baud, *slaveID)
	if err := handler.Connect(); err != nil {
		log.Fatal(err)
	}
	defer handler.Close()
	server := &Server{bus: handler, password: *password}
	srv := &http.Server{
		Handler:      server.Router(),
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
