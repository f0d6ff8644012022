package netutil

import (
	"net"
	"strings"
	"testing"
)

// reserveAddr grabs an ephemeral port, releases it, and returns the
// address so the caller can bind it.
func reserveAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("reserve close: %v", err)
	}
	return addr
}

// holdAddr keeps a listener open for the duration of the test.
func holdAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("hold listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String()
}

func TestSelectBindAddrUsesFreePreferred(t *testing.T) {
	preferred := reserveAddr(t)
	got, err := SelectBindAddr(preferred, []string{"127.0.0.1:1"}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != preferred {
		t.Fatalf("SelectBindAddr() = %q; want preferred %q", got, preferred)
	}
}

func TestSelectBindAddrWalksCandidates(t *testing.T) {
	busy := holdAddr(t)
	free := reserveAddr(t)

	got, err := SelectBindAddr(busy, []string{busy, free}, true)
	if err != nil {
		t.Fatalf("SelectBindAddr() error = %v", err)
	}
	if got != free {
		t.Fatalf("SelectBindAddr() = %q; want fallback %q", got, free)
	}
}

func TestSelectBindAddrBusyWithoutFallbackFails(t *testing.T) {
	busy := holdAddr(t)
	_, err := SelectBindAddr(busy, []string{reserveAddr(t)}, false)
	if err == nil {
		t.Fatalf("SelectBindAddr() should fail when preferred is busy and fallback is off")
	}
	if !strings.Contains(err.Error(), busy) {
		t.Fatalf("error %q does not name the busy address %q", err, busy)
	}
}

func TestSelectBindAddrAllBusy(t *testing.T) {
	busy := holdAddr(t)
	if _, err := SelectBindAddr(busy, []string{busy}, true); err == nil {
		t.Fatalf("SelectBindAddr() should fail when every address is busy")
	}
}
