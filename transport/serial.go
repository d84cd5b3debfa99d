package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/tarm/serial"
)

// DialSerial connects to a mount on a local serial port.
func DialSerial(ctx context.Context, port string, baud int, cfg Config) *Line {
	if baud == 0 {
		baud = 9600
	}
	return Dial(ctx, port, cfg, func(context.Context) (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	})
}

// DialTCP connects to a mount's command port, e.g. "192.168.1.20:3490".
func DialTCP(ctx context.Context, addr string, cfg Config) *Line {
	return Dial(ctx, addr, cfg, func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := &net.Dialer{
			Timeout: 3 * time.Second,
		}
		return dialer.DialContext(ctx, "tcp", addr)
	})
}
