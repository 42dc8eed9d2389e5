package env

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type of the HTTP endpoint.
const ServiceType = "_mcucomms._tcp"

// Advertiser registers the HTTP endpoint via mDNS while running.
type Advertiser struct {
	// Instance defaults to mcucomms-<hostname>.
	Instance string
	// Addr is the HTTP listen address, the port is advertised.
	Addr string
	// Meta is published as TXT records.
	Meta []string
}

// Port extracts the port from a listen address.
func Port(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

// InstanceName returns the instance or the default one.
func (a *Advertiser) InstanceName() string {
	if a.Instance != "" {
		return a.Instance
	}
	host, _ := os.Hostname()
	return "mcucomms-" + host
}

// Run implements framework.Runnable.
func (a *Advertiser) Run(ctx context.Context) error {
	port, err := Port(a.Addr)
	if err != nil {
		return fmt.Errorf("mdns: %w", err)
	}
	svc, err := zeroconf.Register(a.InstanceName(), ServiceType, "local.", port, a.Meta, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	defer svc.Shutdown()
	glog.Infof("MDNS advertising %s on port %d", a.InstanceName(), port)
	<-ctx.Done()
	return ctx.Err()
}
