package dome

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/mount_interface/internal/modbus/modbushttp"
	"github.com/w1xm/mount_interface/mount"
)

var _ mount.Lights = (*Relays)(nil)

func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func rtuFrame(pdu ...byte) []byte {
	crc := crc16(pdu)
	return append(pdu, byte(crc), byte(crc>>8))
}

// relayBox emulates the relay box behind a modbus_server bridge. Its inputs
// follow its coils.
type relayBox struct {
	mu    sync.Mutex
	coils byte
}

func (b *relayBox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := io.ReadAll(r.Body)
	if err != nil || len(req) < 8 {
		http.Error(w, "bad frame", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var resp modbushttp.SendResponse
	switch req[1] {
	case 1, 2:
		resp.ADUResponse = rtuFrame(req[0], req[1], 1, b.coils)
	case 5:
		bit := byte(1) << binary.BigEndian.Uint16(req[2:4])
		if binary.BigEndian.Uint16(req[4:6]) == 0xFF00 {
			b.coils |= bit
		} else {
			b.coils &^= bit
		}
		resp.ADUResponse = req
	default:
		resp.Error = "illegal function"
	}
	json.NewEncoder(w).Encode(&resp)
}

func TestRelays(t *testing.T) {
	box := &relayBox{}
	srv := httptest.NewServer(box)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var last Status
	relays, err := Connect(ctx, Config{URL: srv.URL, Interval: 5 * time.Millisecond}, func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	wait := func(want Status) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			mu.Lock()
			got := last
			mu.Unlock()
			diff := cmp.Diff(want, got)
			if diff == "" {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("status mismatch (-want +got):\n%s", diff)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	wait(Status{Connected: true})
	if err := relays.SetLights(true); err != nil {
		t.Fatalf("SetLights: %v", err)
	}
	wait(Status{Connected: true, CommandLights: true, LightsActive: true})
	if err := relays.SetHumidifier(true); err != nil {
		t.Fatalf("SetHumidifier: %v", err)
	}
	if err := relays.SetLights(false); err != nil {
		t.Fatalf("SetLights: %v", err)
	}
	wait(Status{Connected: true, CommandHumidifier: true, HumidifierActive: true})
}

func TestRelaysBusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&modbushttp.SendResponse{Error: "no response from slave"})
	}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statuses := make(chan Status, 16)
	relays, err := Connect(ctx, Config{URL: srv.URL}, func(s Status) {
		select {
		case statuses <- s:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	select {
	case s := <-statuses:
		if s.Connected {
			t.Errorf("status %+v reports connected on a failing bus", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no status reported")
	}
	if err := relays.SetLights(true); err == nil {
		t.Error("SetLights succeeded on a failing bus")
	}
}
