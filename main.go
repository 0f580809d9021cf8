package ethmac

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/ethmac/ethmac/capture"
	"github.com/ethmac/ethmac/config"
	"github.com/ethmac/ethmac/dmamem"
	"github.com/ethmac/ethmac/ethernet"
	"github.com/ethmac/ethmac/hw"
	"github.com/ethmac/ethmac/netif"
	"github.com/ethmac/ethmac/sim"
	"github.com/ethmac/ethmac/util"
	"github.com/ethmac/ethmac/wire"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"
)

var defaultInterfaceAddr = netip.MustParsePrefix("141.52.46.198/24")

// Main validates c and builds the driver: the simulated peripheral behind
// the configured wire, the device on top of it and the network interface
// with its services. Nothing is polled until [Control.Start].
//
// With configTest set Main stops after validating the configuration and
// returns a nil Control.
func Main(c *config.C, configTest bool, buildVersion string, logger *logrus.Logger) (retcon *Control, reterr error) {
	l := logger
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}

	// Print the config if in test, the exit comes later
	if configTest {
		b, err := yaml.Marshal(c.Settings)
		if err != nil {
			return nil, err
		}

		// Print the final config
		l.Println(string(b))
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to configure the logger", err)
	}

	c.RegisterReloadCallback(func(c *config.C) {
		err := configLogger(l, c)
		if err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	dc, err := newDeviceConfig(c)
	if err != nil {
		return nil, util.NewContextualError("Invalid device configuration", nil, err)
	}

	addr, err := c.GetPrefix("interface.addr", defaultInterfaceAddr)
	if err != nil {
		return nil, util.NewContextualError("Invalid interface address", nil, err)
	}
	if !addr.Addr().Is4() {
		return nil, util.NewContextualError("Invalid interface address", logrus.Fields{"addr": addr}, ethernet.ErrNoIP)
	}

	services, err := servicesFromConfig(c)
	if err != nil {
		return nil, util.NewContextualError("Invalid service configuration", nil, err)
	}

	registry := metrics.NewRegistry()
	statsStart, err := startStats(l, c, registry, buildVersion, configTest)
	if err != nil {
		return nil, util.NewContextualError("Failed to start stats emitter", nil, err)
	}

	if configTest {
		return nil, nil
	}

	////////////////////////////////////////////////////////////////////////////////////////////////////////////////////
	// All non system modifying configuration consumption should live above this line
	// the wire, dma memory, the peripheral and anything else that has to be released should be below
	////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

	ctrl := newControl(l, registry)
	defer func() {
		if reterr != nil {
			ctrl.release()
		}
	}()

	if statsStart != nil {
		ctrl.services = append(ctrl.services, service{name: "stats", run: statsStart})
	}

	ctrl.port, err = wire.NewFromConfig(c, l)
	if err != nil {
		return nil, util.NewContextualError("Failed to open the wire", logrus.Fields{"type": c.GetString("wire.type", "discard")}, err)
	}

	ctrl.mem, err = dmamem.New(dc.memorySize, dc.memoryBase)
	if err != nil {
		return nil, util.NewContextualError("Failed to map dma memory", logrus.Fields{"size": dc.memorySize}, err)
	}

	// The peripheral has to be running before the bring-up talks to it.
	p := hw.NewPeripheral()
	ctrl.engine = sim.New(l, dc.sim, p, ctrl.mem, ctrl.port)
	ctrl.hw.Go(func() error {
		return ignoreCanceled(ctrl.engine.Run(ctrl.hwCtx))
	})

	options := []ethernet.Option{
		ethernet.WithLogger(l),
		ethernet.WithMetricsRegistry(registry),
		ethernet.WithBringUp(dc.bringUp),
		ethernet.WithMemory(ctrl.mem),
		ethernet.WithTeardownTimeout(dc.teardownTimeout),
	}

	if path := c.GetString("capture.path", ""); path != "" {
		ctrl.pcap, err = capture.Create(l, path)
		if err != nil {
			return nil, util.NewContextualError("Failed to open capture file", logrus.Fields{"path": path}, err)
		}
		options = append(options, ethernet.WithFrameHook(ctrl.pcap.Hook()))
	}

	if l.IsLevelEnabled(logrus.TraceLevel) {
		tl := l.WithField("subsystem", "frames")
		options = append(options, ethernet.WithFrameHook(func(dir ethernet.Direction, frame []byte) {
			tl.WithField("dir", dir).Trace(capture.Summary(frame))
		}))
	}

	ctrl.dev, err = ethernet.New(dc.rx, dc.tx, &p.RCC, &p.SYSCFG, &p.MAC, &p.DMA, dc.hwaddr, options...)
	if err != nil {
		return nil, util.NewContextualError("Failed to bring up the ethernet device", logrus.Fields{"hwaddr": dc.hwaddr}, err)
	}

	// Queuing a frame while the transmit process is still stopped is fatal.
	err = waitForTransmitProcess(&p.DMA, c.GetDuration("device.start_timeout", time.Second))
	if err != nil {
		return nil, util.NewContextualError("Failed to start the ethernet device", nil, err)
	}

	ctrl.iface, err = netif.New(ctrl.dev, dc.hwaddr, addr,
		netif.WithLogger(l),
		netif.WithMetricsRegistry(registry),
		netif.WithPollInterval(c.GetDuration("interface.poll_interval", time.Millisecond)),
		netif.WithQueueSize(c.GetInt("interface.queue_size", 512)),
	)
	if err != nil {
		return nil, util.NewContextualError("Failed to configure the network interface", logrus.Fields{"addr": addr}, err)
	}

	for _, s := range services {
		ctrl.services = append(ctrl.services, s(ctrl.iface))
	}

	return ctrl, nil
}

func waitForTransmitProcess(dma *hw.DMA, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for dma.TransmitState() == hw.TxStopped {
		if time.Now().After(deadline) {
			return fmt.Errorf("transmit dma process did not start within %s", timeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// serviceConfig binds an enabled service to the interface once it exists.
type serviceConfig func(i *netif.Interface) service

func servicesFromConfig(c *config.C) ([]serviceConfig, error) {
	var services []serviceConfig

	if c.GetBool("echo.enabled", true) {
		port := c.GetUint16("echo.port", netif.DefaultEchoPort)
		if port == 0 {
			return nil, fmt.Errorf("echo.port must be within 1 and 65535")
		}
		services = append(services, func(i *netif.Interface) service {
			return service{name: "echo", run: func(ctx context.Context) error { return i.ServeEcho(ctx, port) }}
		})
	}

	if c.GetBool("dns.enabled", false) {
		hostname := c.GetString("dns.hostname", "ethmac.local")
		port := c.GetUint16("dns.port", 53)
		if port == 0 {
			return nil, fmt.Errorf("dns.port must be within 1 and 65535")
		}
		if c.GetBool("echo.enabled", true) && port == c.GetUint16("echo.port", netif.DefaultEchoPort) {
			return nil, &netif.PortInUseError{Port: port}
		}
		services = append(services, func(i *netif.Interface) service {
			return service{name: "dns", run: func(ctx context.Context) error { return i.ServeDNS(ctx, hostname, port) }}
		})
	}

	return services, nil
}

// controlGroup pairs an errgroup with the context its goroutines watch.
func controlGroup() (*errgroup.Group, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	return eg, ctx, cancel
}
