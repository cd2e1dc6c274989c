// Package importer drives an invoice upload through the invoices gateway:
// request a slot over the websocket, upload the file, then wait for the
// pushed status changes.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Statuses pushed by the gateway.
const (
	StatusReceived         = "RECEIVED"
	StatusProcessed        = "PROCESSED"
	StatusFailedValidation = "FAILED_VALIDATION"
)

// ErrTimeout is returned when no terminal status arrives in time.
var ErrTimeout = errors.New("timed out waiting for a final status")

// Slot is the gateway's reply to getImportUrl.
type Slot struct {
	TransactionKey string    `json:"transactionId"`
	URL            string    `json:"url"`
	Method         string    `json:"method"`
	ExpiresAt      time.Time `json:"expires"`
}

// StatusMessage is one pushed status change.
type StatusMessage struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// Terminal reports whether no further status follows.
func (m StatusMessage) Terminal() bool {
	return m.Status == StatusProcessed || m.Status == StatusFailedValidation
}

// Result summarizes an import.
type Result struct {
	Key      string          `json:"key" yaml:"key"`
	Final    string          `json:"final" yaml:"final"`
	Statuses []StatusMessage `json:"statuses" yaml:"statuses"`
}

type reply struct {
	Slot
	Error string `json:"error"`
}

// Client imports invoices.
type Client struct {
	dialer *websocket.Dialer
	http   *http.Client
}

// New returns a Client. A nil httpClient uses http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		http:   httpClient,
	}
}

// Import uploads data through the gateway at wsURL and blocks until a
// terminal status is pushed or ctx ends. onSlot and onStatus may be nil.
func (c *Client) Import(ctx context.Context, wsURL string, data []byte, onSlot func(Slot), onStatus func(StatusMessage)) (*Result, error) {
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to gateway: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(map[string]string{"action": "getImportUrl"}); err != nil {
		return nil, fmt.Errorf("request upload slot: %w", err)
	}

	var r reply
	if err := conn.ReadJSON(&r); err != nil {
		return nil, readErr(ctx, "read upload slot", err)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("gateway refused upload slot: %s", r.Error)
	}
	if r.URL == "" || r.TransactionKey == "" {
		return nil, errors.New("gateway returned an incomplete upload slot")
	}
	if onSlot != nil {
		onSlot(r.Slot)
	}

	if err := c.upload(ctx, r.Slot, data); err != nil {
		return nil, err
	}

	res := &Result{Key: r.TransactionKey}
	for {
		var msg StatusMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return res, readErr(ctx, "read status", err)
		}
		// Replies to other requests share the socket.
		if msg.Key != r.TransactionKey || msg.Status == "" {
			continue
		}
		res.Statuses = append(res.Statuses, msg)
		if onStatus != nil {
			onStatus(msg)
		}
		if msg.Terminal() {
			res.Final = msg.Status
			return res, nil
		}
	}
}

func (c *Client) upload(ctx context.Context, slot Slot, data []byte) error {
	method := slot.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, slot.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload invoice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload rejected: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return nil
}

func readErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ErrTimeout
	}
	return fmt.Errorf("%s: %w", op, err)
}
