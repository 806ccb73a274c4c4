package discovery

import (
	"errors"
	"io"
	"log"
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewAdvertiser_Validation(t *testing.T) {
	if _, err := NewAdvertiser(Config{Port: 1}); err == nil {
		t.Fatalf("expected error for empty instance")
	}
	if _, err := NewAdvertiser(Config{Instance: "x", Port: 0}); err == nil {
		t.Fatalf("expected error for port 0")
	}
	if _, err := NewAdvertiser(Config{Instance: "x", Port: 70000}); err == nil {
		t.Fatalf("expected error for port 70000")
	}
}

func TestAdvertiser_TXT(t *testing.T) {
	a, err := NewAdvertiser(Config{Instance: "host", Port: 19333, Channels: []string{"red", "green"}})
	if err != nil {
		t.Fatalf("NewAdvertiser: %v", err)
	}
	got := a.TXT()
	want := []string{"proto=line", "channel=red", "channel=green"}
	if len(got) != len(want) {
		t.Fatalf("txt=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("txt=%v want %v", got, want)
		}
	}
}

func TestAdvertiser_StartBuildsZone(t *testing.T) {
	oldIPs, oldServer := localIPsFn, newServerFn
	t.Cleanup(func() { localIPsFn, newServerFn = oldIPs, oldServer })

	localIPsFn = func() ([]net.IP, error) { return []net.IP{net.IPv4(192, 168, 1, 10)}, nil }
	var zone *mdns.MDNSService
	newServerFn = func(c *mdns.Config) (*mdns.Server, error) {
		zone, _ = c.Zone.(*mdns.MDNSService)
		return nil, errors.New("no multicast in tests")
	}

	a, _ := NewAdvertiser(Config{Instance: "host", Port: 19333, Logger: log.New(io.Discard, "", 0)})
	if err := a.Start(); err == nil {
		t.Fatalf("expected server error to propagate")
	}
	if zone == nil {
		t.Fatalf("zone not built")
	}
	if zone.Service != ServiceType || zone.Port != 19333 || zone.Instance != "host" {
		t.Fatalf("zone=%+v", zone)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
