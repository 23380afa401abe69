// Package report streams per-row outcomes to an operator-run
// collector. The channel is outbound-only and optional: HTTPS POST for
// https:// endpoints and a single authenticated WebSocket stream for
// wss:// endpoints. Nothing here is retried or persisted; the
// authoritative record of a run is its log file and the summary.
package report

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nragusa/tm-rapid7-uninstall/internal/run"
)

// Options configure the collector connection.
type Options struct {
	// Endpoint is an https:// or wss:// URL.
	Endpoint string
	// RunID identifies this run in every envelope.
	RunID string
	// CABundlePath optionally names a PEM file of CAs to trust for the
	// collector's TLS certificate.
	CABundlePath string
}

// envelope is the JSON wire format sent to the collector.
type envelope struct {
	RunID      string `json:"run_id"`
	Type       string `json:"type"` // "auth", "row" or "summary"
	Time       int64  `json:"ts"`
	Row        int    `json:"row,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CommandID  string `json:"command_id,omitempty"`

	Total      int `json:"total,omitempty"`
	Malformed  int `json:"malformed,omitempty"`
	Invalid    int `json:"invalid,omitempty"`
	Failed     int `json:"failed,omitempty"`
	Dispatched int `json:"dispatched,omitempty"`
}

// Client implements run.Reporter against one collector endpoint.
type Client struct {
	endpoint string
	runID    string
	http     *http.Client
	ws       *websocket.Conn
}

var _ run.Reporter = (*Client)(nil)

// Dial prepares the collector connection. For wss:// endpoints it
// connects immediately and sends an auth envelope carrying the run
// code; for https:// it only configures the POST client.
func Dial(opts Options) (*Client, error) {
	tlsConfig := &tls.Config{}
	if opts.CABundlePath != "" {
		data, err := os.ReadFile(opts.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("parse CA bundle PEM")
		}
		tlsConfig.RootCAs = pool
	}

	c := &Client{endpoint: opts.Endpoint, runID: opts.RunID}

	if strings.HasPrefix(opts.Endpoint, "ws://") || strings.HasPrefix(opts.Endpoint, "wss://") {
		dialer := websocket.Dialer{TLSClientConfig: tlsConfig, HandshakeTimeout: 10 * time.Second}
		conn, resp, err := dialer.Dial(opts.Endpoint, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial collector: status %s: %w", resp.Status, err)
			}
			return nil, fmt.Errorf("dial collector: %w", err)
		}
		auth := envelope{RunID: opts.RunID, Type: "auth", Time: time.Now().Unix()}
		if err := conn.WriteJSON(auth); err != nil {
			conn.Close()
			return nil, fmt.Errorf("collector auth: %w", err)
		}
		c.ws = conn
		return c, nil
	}

	c.http = &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}
	return c, nil
}

// Row sends one per-row outcome envelope.
func (c *Client) Row(row int, instanceID, outcome, detail, commandID string) error {
	return c.send(envelope{
		RunID:      c.runID,
		Type:       "row",
		Time:       time.Now().Unix(),
		Row:        row,
		InstanceID: instanceID,
		Outcome:    outcome,
		Detail:     detail,
		CommandID:  commandID,
	})
}

// Done sends the final summary envelope.
func (c *Client) Done(s run.Summary) error {
	return c.send(envelope{
		RunID:      c.runID,
		Type:       "summary",
		Time:       time.Now().Unix(),
		Total:      s.Total,
		Malformed:  s.Malformed,
		Invalid:    s.Invalid,
		Failed:     s.Failed,
		Dispatched: s.Dispatched,
	})
}

// Close tears down the WebSocket stream, if any.
func (c *Client) Close() error {
	if c.ws == nil {
		return nil
	}
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}

func (c *Client) send(e envelope) error {
	if c.ws != nil {
		if err := c.ws.WriteJSON(e); err != nil {
			return fmt.Errorf("ws write: %w", err)
		}
		return nil
	}
	return postJSON(c.http, c.endpoint, e)
}

func postJSON(client *http.Client, endpoint string, e envelope) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}
