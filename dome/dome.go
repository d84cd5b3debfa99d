// Package dome drives the observatory's modbus relay box. Coil 0 switches
// the dome lights and coil 1 the humidifier; the discrete inputs report the
// state of the relay contacts.
package dome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/w1xm/mount_interface/internal/modbus"
)

const (
	coilLights = iota
	coilHumidifier
	numCoils
)

type Status struct {
	Connected bool

	CommandLights     bool
	CommandHumidifier bool

	LightsActive     bool
	HumidifierActive bool
}

type StatusCallback func(status Status)

type Config struct {
	Port     string
	BaudRate int
	SlaveId  byte
	// URL selects a remote bus served by modbus_server.
	URL string
	// Interval between polls. Defaults to 1s.
	Interval time.Duration
}

type Relays struct {
	statusCallback StatusCallback
	mu             sync.Mutex
	client         *modbus.Client
	coils          []bool
	inputs         []bool
}

func Connect(ctx context.Context, cfg Config, statusCallback StatusCallback) (*Relays, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	r := &Relays{
		client: &modbus.Client{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			SlaveId:  cfg.SlaveId,
			URL:      cfg.URL,
			Interval: cfg.Interval,
		},
		statusCallback: statusCallback,
	}
	r.client.Poll = r.pollOnce
	return r, r.client.Connect(ctx)
}

func (r *Relays) pollOnce() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coils, err := r.client.ReadCoils(0, numCoils)
	if err != nil {
		r.notifyDisconnected()
		return err
	}
	inputs, err := r.client.ReadDiscreteInputs(0, numCoils)
	if err != nil {
		r.notifyDisconnected()
		return err
	}
	r.coils = modbus.BytesToBits(coils)
	r.inputs = modbus.BytesToBits(inputs)
	if len(r.coils) < numCoils || len(r.inputs) < numCoils {
		return fmt.Errorf("short relay reply: %d coils, %d inputs", len(r.coils), len(r.inputs))
	}
	r.notifyStatus()
	return nil
}

func (r *Relays) notifyDisconnected() {
	r.coils, r.inputs = nil, nil
	if r.statusCallback != nil {
		r.statusCallback(Status{})
	}
}

func (r *Relays) notifyStatus() {
	if r.statusCallback != nil {
		r.statusCallback(r.parseRegisters())
	}
}

func (r *Relays) parseRegisters() Status {
	return Status{
		Connected: true,

		CommandLights:     r.coils[coilLights],
		CommandHumidifier: r.coils[coilHumidifier],

		LightsActive:     r.inputs[coilLights],
		HumidifierActive: r.inputs[coilHumidifier],
	}
}

// SetLights switches the dome lights.
func (r *Relays) SetLights(on bool) error {
	return r.write(coilLights, on)
}

func (r *Relays) SetHumidifier(on bool) error {
	return r.write(coilHumidifier, on)
}

func (r *Relays) write(coil int, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.client.WriteCoil(coil, on); err != nil {
		return fmt.Errorf("relay %d: %w", coil, err)
	}
	return nil
}
