package bus

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/mattbot/mcucomms/pkg/l0/comm"
)

// SPI is the Transport over a Linux spidev port.
type SPI struct {
	port  spi.PortCloser
	conn  spi.Conn
	guard *guard
}

// OpenSPI opens and configures the SPI port.
func OpenSPI(conf Config) (*SPI, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	port, err := spireg.Open(conf.Device)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", conf.Device, err)
	}
	conn, err := port.Connect(physic.Frequency(conf.ClockHz)*physic.Hertz, spi.Mode(conf.Mode), 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("configure %q: %w", conf.Device, err)
	}
	glog.Infof("SPI %s opened: %d Hz, mode %d", conf.Device, conf.ClockHz, conf.Mode)
	return &SPI{port: port, conn: conn, guard: newGuard(conf.Timeout)}, nil
}

// Transfer implements Transport.
func (s *SPI) Transfer(ctx context.Context, tx comm.Frame) ([]byte, error) {
	rx, err := s.guard.transfer(ctx, tx, s.conn.Tx)
	if err == nil && glog.V(3) {
		glog.Infof("XFER %s -> % x", tx, rx)
	}
	return rx, err
}

// Close implements Transport.
func (s *SPI) Close() error {
	if !s.guard.close() {
		glog.Warning("SPI closed with a transfer still on the wire")
	}
	return s.port.Close()
}
