// Package mirrorsync keeps the tree mirror aligned with the live browser
// by folding CDP target lifecycle events into it. It is the only writer
// to the mirror besides the restoration engine; both serialize through
// the mirror's lock.
package mirrorsync

import (
	"context"
	"log/slog"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/tab_arbor/internal/snapshot"
	"github.com/dgnsrekt/tab_arbor/internal/tree"
)

// Watcher subscribes to browser target events and mirrors open page tabs.
type Watcher struct {
	cdpURL string
	mirror *tree.Mirror

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewWatcher(cdpURL string, mirror *tree.Mirror) *Watcher {
	return &Watcher{cdpURL: cdpURL, mirror: mirror}
}

// Connect attaches to the browser, seeds the mirror from currently open
// tabs, and starts listening for target lifecycle events.
func (w *Watcher) Connect(ctx context.Context) error {
	w.allocCtx, w.allocCancel = chromedp.NewRemoteAllocator(context.Background(), w.cdpURL)
	w.browserCtx, w.browserCancel = chromedp.NewContext(w.allocCtx)

	if err := chromedp.Run(w.browserCtx); err != nil {
		w.Close()
		return snapshot.NewError(snapshot.CodeCDPUnavailable, "mirror sync connect failed", err)
	}

	chromedp.ListenBrowser(w.browserCtx, w.onEvent)
	if err := chromedp.Run(w.browserCtx, target.SetDiscoverTargets(true)); err != nil {
		w.Close()
		return snapshot.NewError(snapshot.CodeCDPUnavailable, "target discovery failed", err)
	}

	targets, err := chromedp.Targets(w.browserCtx)
	if err != nil {
		w.Close()
		return snapshot.NewError(snapshot.CodeCDPUnavailable, "enumerate targets failed", err)
	}

	seeded := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		w.upsert(string(t.TargetID), t.URL, t.Title)
		seeded++
	}

	slog.Info("mirror sync connected", "cdp_url", w.cdpURL, "tabs", seeded)
	return nil
}

func (w *Watcher) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo.Type != "page" {
			return
		}
		w.upsert(string(e.TargetInfo.TargetID), e.TargetInfo.URL, e.TargetInfo.Title)
		slog.Debug("mirror sync tab created", "tab_id", e.TargetInfo.TargetID)
	case *target.EventTargetInfoChanged:
		if e.TargetInfo.Type != "page" {
			return
		}
		w.upsert(string(e.TargetInfo.TargetID), e.TargetInfo.URL, e.TargetInfo.Title)
	case *target.EventTargetDestroyed:
		if n, ok := w.mirror.NodeByTabID(string(e.TargetID)); ok {
			w.mirror.Remove(n.ID)
			slog.Debug("mirror sync tab destroyed", "tab_id", e.TargetID)
		}
	}
}

// upsert refreshes navigation state for known tabs and registers unknown
// tabs as roots in the default view. Tree position and view assignment
// set by the restoration engine are left untouched.
func (w *Watcher) upsert(tabID, url, title string) {
	if _, ok := w.mirror.NodeByTabID(tabID); ok {
		w.mirror.SetNavigation(tabID, url, title)
		return
	}
	w.mirror.Put(tree.Node{
		ID:     tabID,
		TabID:  tabID,
		ViewID: w.mirror.DefaultViewID(),
		URL:    url,
		Title:  title,
	})
}

// Close detaches from the browser without closing any tabs.
func (w *Watcher) Close() {
	if w.browserCancel != nil {
		w.browserCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}
	slog.Info("mirror sync closed")
}
