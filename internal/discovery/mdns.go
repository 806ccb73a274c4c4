// Package discovery advertises the channel input over mDNS so clients on the
// local network can find the daemon without configuration.
package discovery

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_pwmaudio._tcp"

type Config struct {
	// Instance is the advertised instance name, usually the hostname.
	Instance string
	Port     int
	// Channels is published as a TXT record so clients know what to set.
	Channels []string
	Logger   *log.Logger
}

type Advertiser struct {
	cfg Config

	mu     sync.Mutex
	server *mdns.Server
}

var (
	localIPsFn  = localIPs
	newServerFn = mdns.NewServer
)

func NewAdvertiser(cfg Config) (*Advertiser, error) {
	if cfg.Instance == "" {
		return nil, fmt.Errorf("mdns instance name is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("mdns port %d out of range", cfg.Port)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Advertiser{cfg: cfg}, nil
}

// TXT returns the TXT records published with the service.
func (a *Advertiser) TXT() []string {
	txt := []string{"proto=line"}
	for _, ch := range a.cfg.Channels {
		txt = append(txt, "channel="+ch)
	}
	return txt
}

// Start begins responding to mDNS queries.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return fmt.Errorf("mdns advertiser already started")
	}

	ips, err := localIPsFn()
	if err != nil {
		return fmt.Errorf("get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(a.cfg.Instance, ServiceType, "", "", a.cfg.Port, ips, a.TXT())
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}
	server, err := newServerFn(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("create mdns server: %w", err)
	}
	a.server = server
	a.cfg.Logger.Printf("advertising %s as %q on port %d", ServiceType, a.cfg.Instance, a.cfg.Port)
	return nil
}

func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

// localIPs returns the IPv4 addresses of all up, non-loopback interfaces.
func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
