package main

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/mount_interface/internal/modbus/modbushttp"
)

type echoBus struct {
	got []byte
	err error
}

func (b *echoBus) Send(aduRequest []byte) ([]byte, error) {
	b.got = aduRequest
	if b.err != nil {
		return nil, b.err
	}
	return append([]byte{0xff}, aduRequest...), nil
}

func TestSendHandler(t *testing.T) {
	for _, test := range []struct {
		name     string
		password string
		creds    string
		busErr   error
		want     []byte
		wantErr  string
	}{
		{name: "open", want: []byte{0xff, 1, 5, 0, 0}},
		{name: "password", password: "hunter2", creds: "dome:hunter2@", want: []byte{0xff, 1, 5, 0, 0}},
		{name: "wrong password", password: "hunter2", creds: "dome:guess@", wantErr: "401 Unauthorized"},
		{name: "bus error", busErr: errors.New("serial: timeout"), wantErr: "serial: timeout"},
	} {
		t.Run(test.name, func(t *testing.T) {
			bus := &echoBus{err: test.busErr}
			srv := httptest.NewServer((&Server{bus: bus, password: test.password}).Router())
			defer srv.Close()

			url := strings.Replace(srv.URL, "http://", "http://"+test.creds, 1) + "/api/send"
			got, err := modbushttp.NewClient(url, 1).Send([]byte{1, 5, 0, 0})
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("Send() = %v, want error containing %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("response mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]byte{1, 5, 0, 0}, bus.got); diff != "" {
				t.Errorf("forwarded frame mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
