// Package modbushttp carries dome relay RTU frames over HTTP to the bus
// shared by cmd/modbus_server.
package modbushttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goburrow/modbus"
)

// ContentType is the media type of request bodies, which are raw ADU frames.
const ContentType = "application/octet-stream"

// ErrBridge marks failures reaching the bridge itself, as opposed to the
// device behind it.
var ErrBridge = errors.New("modbus bridge")

// SendResponse is the body returned by the bridge for each request frame.
type SendResponse struct {
	ADUResponse []byte
	Error       string
}

// BusError is a failure reported by the bridge for the frame it forwarded.
type BusError struct {
	Message string
}

func (e *BusError) Error() string { return e.Message }

// Client is a modbus RTU handler whose transport is an HTTP bridge. The
// embedded handler only packages and verifies frames; its serial port is
// never opened.
type Client struct {
	*modbus.RTUClientHandler

	url  string
	http *http.Client
}

// NewClient sends frames for slaveID to url, the bridge's /api/send
// endpoint. Credentials in the URL's user info are sent as basic auth.
func NewClient(url string, slaveID byte) *Client {
	handler := modbus.NewRTUClientHandler("/dev/null")
	handler.SlaveId = slaveID
	return &Client{
		RTUClientHandler: handler,
		url:              url,
		http:             &http.Client{Timeout: 5 * time.Second},
	}
}

// Send implements modbus.Transporter.
func (c *Client) Send(aduRequest []byte) ([]byte, error) {
	resp, err := c.http.Post(c.url, ContentType, bytes.NewReader(aduRequest))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridge, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrBridge, resp.Status, bytes.TrimSpace(body))
	}
	var sendResponse SendResponse
	if err := json.Unmarshal(body, &sendResponse); err != nil {
		return nil, fmt.Errorf("%w: decoding reply: %v", ErrBridge, err)
	}
	if sendResponse.Error != "" {
		return sendResponse.ADUResponse, &BusError{Message: sendResponse.Error}
	}
	return sendResponse.ADUResponse, nil
}

// Connect and Close are no-ops; every Send is its own HTTP request.
func (c *Client) Connect() error { return nil }
func (c *Client) Close() error   { return nil }
