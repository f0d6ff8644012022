// Package cdptabs is the live-tab collaborator: it creates, removes and
// enumerates browser tabs through the Chrome DevTools Protocol Target
// domain. All operations are asynchronous requests against the browser;
// callers bound each one with a context deadline.
package cdptabs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
)

// TabInfo describes one live browser tab.
type TabInfo struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Driver is the contract the restoration engine and capture service
// depend on. Tests substitute an in-memory fake.
type Driver interface {
	Create(ctx context.Context, url string) (string, error)
	Remove(ctx context.Context, tabID string) error
	Activate(ctx context.Context, tabID string) error
	Move(tabID string, index int) error
	Query(ctx context.Context) ([]TabInfo, error)
}

// Client drives a real browser over CDP. It keeps a local strip-order
// registry because the protocol exposes no tab reordering; Move operates
// on that registry only.
type Client struct {
	httpBase string
	wire     *wire

	mu    sync.Mutex
	order []string
}

var _ Driver = (*Client)(nil)

// NewClient builds a client for the given CDP HTTP endpoint, e.g.
// "http://127.0.0.1:9222".
func NewClient(cdpURL string) *Client {
	return &Client{httpBase: cdpURL, wire: newWire(cdpURL)}
}

// Connect dials the browser command channel and primes the strip order
// from the currently open tabs.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.wire.dial(ctx); err != nil {
		return snapshot.NewError(snapshot.CodeCDPUnavailable, "connect to browser failed", err)
	}
	tabs, err := c.Query(ctx)
	if err != nil {
		c.wire.shutdown()
		return err
	}
	slog.Info("cdptabs connected", "endpoint", c.httpBase, "tabs", len(tabs))
	return nil
}

// Close tears down the command channel.
func (c *Client) Close() error {
	c.wire.shutdown()
	return nil
}

// Create opens a new tab at url and returns its live tab id.
func (c *Client) Create(ctx context.Context, url string) (string, error) {
	params := struct {
		URL        string `json:"url"`
		Background bool   `json:"background"`
	}{URL: url, Background: true}

	raw, err := c.wire.call(ctx, "Target.createTarget", params)
	if err != nil {
		return "", snapshot.NewError(snapshot.CodeTabOpenFailure, "create tab for "+url, err)
	}

	var resp struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", snapshot.NewError(snapshot.CodeTabOpenFailure, "decode createTarget response", err)
	}
	if resp.TargetID == "" {
		return "", snapshot.NewError(snapshot.CodeTabOpenFailure, "browser returned empty target id for "+url, nil)
	}

	c.mu.Lock()
	c.order = append(c.order, resp.TargetID)
	c.mu.Unlock()

	slog.Debug("cdptabs tab created", "tab_id", resp.TargetID, "url", url)
	return resp.TargetID, nil
}

// Remove closes a tab. Closing an already-closed tab is not an error.
func (c *Client) Remove(ctx context.Context, tabID string) error {
	params := struct {
		TargetID string `json:"targetId"`
	}{TargetID: tabID}

	if _, err := c.wire.call(ctx, "Target.closeTarget", params); err != nil {
		return fmt.Errorf("cdptabs: close tab %s: %w", tabID, err)
	}

	c.mu.Lock()
	c.dropLocked(tabID)
	c.mu.Unlock()
	return nil
}

// Activate brings a tab to the foreground.
func (c *Client) Activate(ctx context.Context, tabID string) error {
	params := struct {
		TargetID string `json:"targetId"`
	}{TargetID: tabID}
	if _, err := c.wire.call(ctx, "Target.activateTarget", params); err != nil {
		return fmt.Errorf("cdptabs: activate tab %s: %w", tabID, err)
	}
	return nil
}

// Move repositions a tab in the local strip-order registry. CDP exposes
// no tab-strip reordering, so the registry is the source of truth for
// ordering consumers.
func (c *Client) Move(tabID string, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := false
	for _, id := range c.order {
		if id == tabID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("cdptabs: move: unknown tab %s", tabID)
	}

	c.dropLocked(tabID)
	if index < 0 {
		index = 0
	}
	if index > len(c.order) {
		index = len(c.order)
	}
	c.order = append(c.order[:index], append([]string{tabID}, c.order[index:]...)...)
	return nil
}

// Query lists open page tabs via the /json/list HTTP endpoint and
// refreshes the strip-order registry.
func (c *Client) Query(ctx context.Context) ([]TabInfo, error) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(listCtx, http.MethodGet, c.httpBase+"/json/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, snapshot.NewError(snapshot.CodeCDPUnavailable, "list tabs failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, snapshot.NewError(snapshot.CodeCDPUnavailable, fmt.Sprintf("/json/list: HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("cdptabs: decode /json/list: %w", err)
	}

	out := make([]TabInfo, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Type != "page" {
			continue
		}
		out = append(out, TabInfo{TabID: e.ID, URL: e.URL, Title: e.Title})
		seen[e.ID] = true
	}

	// Reconcile the strip order: keep known ordering, append newcomers.
	c.mu.Lock()
	kept := c.order[:0]
	for _, id := range c.order {
		if seen[id] {
			kept = append(kept, id)
			delete(seen, id)
		}
	}
	c.order = kept
	for _, t := range out {
		if seen[t.TabID] {
			c.order = append(c.order, t.TabID)
		}
	}
	c.mu.Unlock()

	return out, nil
}

// Order returns the current strip-order registry.
func (c *Client) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Client) dropLocked(tabID string) {
	for i, id := range c.order {
		if id == tabID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
