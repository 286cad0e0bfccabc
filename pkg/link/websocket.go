// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 15 * time.Second
)

// WebSocketConn carries the serial byte stream in binary WebSocket messages.
// A reader goroutine pumps messages so that Read can honour a timeout the way
// a serial port does.
type WebSocketConn struct {
	conn *websocket.Conn
	msgs chan []byte
	done chan struct{}
	stop chan struct{}

	mu          sync.Mutex
	buf         []byte
	readTimeout time.Duration
	err         error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// OpenWebSocket dials wsURL, adding HTTP Basic auth when username and
// password are both set.
func OpenWebSocket(wsURL, username, password string, skipTLSVerify bool) (*WebSocketConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipTLSVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConn(conn), nil
}

func newWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	w := &WebSocketConn{
		conn: conn,
		msgs: make(chan []byte, 64),
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go w.pump()
	return w
}

// pump forwards binary messages until the connection fails.
func (w *WebSocketConn) pump() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.msgs <- data:
		case <-w.stop:
			return
		}
	}
}

// Read returns buffered bytes, or waits up to the read timeout for the next
// message. A timeout returns (0, nil). With no timeout set Read blocks.
func (w *WebSocketConn) Read(p []byte) (int, error) {
	w.mu.Lock()
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		w.mu.Unlock()
		return n, nil
	}
	timeout := w.readTimeout
	w.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data := <-w.msgs:
		return w.fill(p, data), nil
	case <-w.done:
		// Drain anything pumped before the failure
		select {
		case data := <-w.msgs:
			return w.fill(p, data), nil
		default:
		}
		return 0, ErrConnectionClosed
	case <-expired:
		return 0, nil
	}
}

func (w *WebSocketConn) fill(p, data []byte) int {
	n := copy(p, data)
	if n < len(data) {
		w.mu.Lock()
		w.buf = append(w.buf, data[n:]...)
		w.mu.Unlock()
	}
	return n
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame and tears down the connection.
func (w *WebSocketConn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// SetReadTimeout bounds each Read.
func (w *WebSocketConn) SetReadTimeout(t time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readTimeout = t
	return nil
}

// ResetInputBuffer discards buffered and queued messages.
func (w *WebSocketConn) ResetInputBuffer() error {
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()
	for {
		select {
		case <-w.msgs:
		default:
			return nil
		}
	}
}

// Err returns the error that ended the reader, if any.
func (w *WebSocketConn) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
