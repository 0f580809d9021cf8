package netif

import "github.com/rcrowley/go-metrics"

type interfaceMetrics struct {
	rxFrames  metrics.Counter
	rxDropped metrics.Counter
	txFrames  metrics.Counter
	txBusy    metrics.Counter
	txErrors  metrics.Counter

	udpEcho metrics.Counter
	tcpEcho metrics.Counter
	dns     metrics.Counter
}

func newInterfaceMetrics(r metrics.Registry) *interfaceMetrics {
	return &interfaceMetrics{
		rxFrames:  metrics.GetOrRegisterCounter("netif.rx.frames", r),
		rxDropped: metrics.GetOrRegisterCounter("netif.rx.dropped", r),
		txFrames:  metrics.GetOrRegisterCounter("netif.tx.frames", r),
		txBusy:    metrics.GetOrRegisterCounter("netif.tx.busy", r),
		txErrors:  metrics.GetOrRegisterCounter("netif.tx.errors", r),
		udpEcho:   metrics.GetOrRegisterCounter("netif.echo.udp", r),
		tcpEcho:   metrics.GetOrRegisterCounter("netif.echo.tcp", r),
		dns:       metrics.GetOrRegisterCounter("netif.dns.queries", r),
	}
}
