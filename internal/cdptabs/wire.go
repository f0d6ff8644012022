package cdptabs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// wire is a minimal CDP command channel over the browser-level WebSocket.
// It speaks only the Target domain, which keeps the connection free of
// the heavyweight session setup that full CDP clients perform on attach.
type wire struct {
	httpBase string // e.g. "http://127.0.0.1:9222"

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex
}

func newWire(httpBase string) *wire {
	return &wire{
		httpBase: strings.TrimRight(httpBase, "/"),
		pending:  make(map[int64]chan json.RawMessage),
	}
}

// dial connects to the browser WebSocket endpoint advertised by
// /json/version.
func (w *wire) dial(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		return nil
	}

	wsURL, err := w.browserWSURL(ctx)
	if err != nil {
		return fmt.Errorf("cdptabs: browser ws url: %w", err)
	}

	slog.Debug("cdptabs wire connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("cdptabs: dial: %w", err)
	}

	w.conn = conn
	w.pending = make(map[int64]chan json.RawMessage)
	go w.readLoop()
	return nil
}

func (w *wire) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

func (w *wire) readLoop() {
	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}

		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("cdptabs wire read loop exit", "error", err)
			w.failAllPending()
			return
		}

		var msg struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.ID == 0 {
			continue
		}

		w.pendingMu.Lock()
		ch, ok := w.pending[msg.ID]
		if ok {
			delete(w.pending, msg.ID)
		}
		w.pendingMu.Unlock()
		if ok {
			ch <- json.RawMessage(data)
		}
	}
}

func (w *wire) failAllPending() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for id, ch := range w.pending {
		close(ch)
		delete(w.pending, id)
	}
}

func (w *wire) dropPending(id int64) {
	w.pendingMu.Lock()
	delete(w.pending, id)
	w.pendingMu.Unlock()
}

// call sends a CDP command and waits for the matching response, returning
// the inner result payload.
func (w *wire) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("cdptabs: not connected")
	}

	id := w.seq.Add(1)
	req := struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
		Params any    `json:"params,omitempty"`
	}{ID: id, Method: method, Params: params}

	ch := make(chan json.RawMessage, 1)
	w.pendingMu.Lock()
	w.pending[id] = ch
	w.pendingMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		w.dropPending(id)
		return nil, fmt.Errorf("cdptabs: marshal %s: %w", method, err)
	}

	w.mu.Lock()
	err = wsutil.WriteClientText(conn, data)
	w.mu.Unlock()
	if err != nil {
		w.dropPending(id)
		return nil, fmt.Errorf("cdptabs: send %s: %w", method, err)
	}

	var raw json.RawMessage
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("cdptabs: connection closed during %s", method)
		}
		raw = resp
	case <-ctx.Done():
		w.dropPending(id)
		return nil, ctx.Err()
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("cdptabs: unmarshal %s: %w", method, err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("cdptabs: %s: %s", method, envelope.Error.Message)
	}
	return envelope.Result, nil
}

// browserWSURL fetches the WebSocket debugger URL from /json/version.
func (w *wire) browserWSURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.httpBase+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("/json/version: HTTP %d", resp.StatusCode)
	}

	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}
