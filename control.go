package ethmac

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/ethmac/ethmac/capture"
	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/ethernet"
	"github.com/ethmac/ethmac/netif"
	"github.com/ethmac/ethmac/sim"
	"github.com/ethmac/ethmac/wire"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Control owns a running driver. Values returned by its methods are copies
// and never alias driver state.
type Control struct {
	l        *logrus.Logger
	registry metrics.Registry

	// The simulated peripheral runs under hw for the whole life of the
	// device, services only between Start and Stop.
	hw       *errgroup.Group
	hwCtx    context.Context
	hwCancel context.CancelFunc

	group    *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc
	services []service
	started  bool
	stopOnce sync.Once

	port   wire.Port
	mem    *dmamem.Space
	engine *sim.Engine
	pcap   *capture.PcapWriter
	dev    *ethernet.Device
	iface  *netif.Interface
}

type service struct {
	name string
	run  func(ctx context.Context) error
}

// Counter is a snapshot of one named counter.
type Counter struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func newControl(l *logrus.Logger, r metrics.Registry) *Control {
	c := &Control{l: l, registry: r}
	c.hw, c.hwCtx, c.hwCancel = controlGroup()
	c.group, c.ctx, c.cancel = controlGroup()
	return c
}

// Start polls the interface and runs the configured services. This is a
// nonblocking call; use [Control.ShutdownBlock] to block.
func (c *Control) Start() {
	if c.started {
		return
	}
	c.started = true

	c.group.Go(func() error {
		return ignoreCanceled(c.iface.Run(c.ctx))
	})
	for _, s := range c.services {
		s := s
		c.group.Go(func() error {
			c.l.WithField("service", s.name).Debug("Starting service")
			if err := ignoreCanceled(s.run(c.ctx)); err != nil {
				c.l.WithField("service", s.name).WithError(err).Error("Service failed")
				return err
			}
			return nil
		})
	}

	c.l.WithFields(logrus.Fields{
		"addr":     c.iface.Addr(),
		"hwaddr":   c.iface.HardwareAddr(),
		"services": len(c.services),
	}).Info("Driver started")
}

// Stop stops the services and the interface, then the device and the
// simulated peripheral. It returns after everything is released.
func (c *Control) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		if err := c.group.Wait(); err != nil {
			c.l.WithError(err).Error("Driver stopped with an error")
		}
		c.release()
		c.l.Info("Goodbye")
	})
}

// release tears down whatever Main managed to build, in reverse order. The
// device must be closed while the peripheral still runs.
func (c *Control) release() {
	if c.iface != nil {
		c.iface.Close()
	}
	if c.dev != nil {
		if err := c.dev.Close(); err != nil {
			c.l.WithError(err).Error("Failed to stop the ethernet device")
		}
	}

	c.hwCancel()
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			c.l.WithError(err).Error("Failed to close the wire")
		}
	}
	if err := c.hw.Wait(); err != nil {
		c.l.WithError(err).Error("Simulated peripheral failed")
	}

	if c.pcap != nil {
		if err := c.pcap.Close(); err != nil {
			c.l.WithError(err).Error("Failed to close the capture file")
		}
	}
	if c.mem != nil {
		if err := c.mem.Close(); err != nil {
			c.l.WithError(err).Error("Failed to unmap dma memory")
		}
	}
}

// ShutdownBlock blocks until a term or interrupt signal arrives or the
// driver fails, then calls [Control.Stop].
func (c *Control) ShutdownBlock() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case rawSig := <-sigChan:
		c.l.WithField("signal", rawSig.String()).Info("Caught signal, shutting down")
	case <-c.ctx.Done():
		c.l.Info("Driver failed, shutting down")
	}
	c.Stop()
}

// Device returns the ethernet device. It must not be polled while the
// driver is started.
func (c *Control) Device() *ethernet.Device {
	return c.dev
}

func (c *Control) Interface() *netif.Interface {
	return c.iface
}

// Stats returns the simulated peripheral's counters.
func (c *Control) Stats() sim.Stats {
	return c.engine.Stats()
}

// Counters returns every counter of the driver sorted by name.
func (c *Control) Counters() []Counter {
	counts := make(map[string]int64)
	c.registry.Each(func(name string, i any) {
		if m, ok := i.(metrics.Counter); ok {
			counts[name] = m.Count()
		}
	})

	names := maps.Keys(counts)
	slices.Sort(names)

	out := make([]Counter, len(names))
	for i, name := range names {
		out[i] = Counter{Name: name, Count: counts[name]}
	}
	return out
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
