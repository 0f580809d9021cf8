package netif

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

// dnsRecords maps fully qualified lower case names to IPv4 addresses.
type dnsRecords struct {
	sync.RWMutex
	dnsMap map[string]string
}

func (d *dnsRecords) Query(name string) string {
	d.RLock()
	defer d.RUnlock()
	return d.dnsMap[strings.ToLower(name)]
}

func (d *dnsRecords) Add(host, addr string) {
	d.Lock()
	defer d.Unlock()
	d.dnsMap[strings.ToLower(dns.Fqdn(host))] = addr
}

func (i *Interface) parseQuery(records *dnsRecords, m *dns.Msg) {
	for _, q := range m.Question {
		if q.Qtype != dns.TypeA || q.Qclass != dns.ClassINET {
			continue
		}
		i.l.Debugf("Query for A %s", q.Name)
		if ip := records.Query(q.Name); ip != "" {
			rr, err := dns.NewRR(fmt.Sprintf("%s A %s", q.Name, ip))
			if err == nil {
				m.Answer = append(m.Answer, rr)
			}
		}
	}

	if len(m.Answer) == 0 {
		m.Rcode = dns.RcodeNameError
	}
}

func (i *Interface) handleDnsRequest(records *dnsRecords, w dns.ResponseWriter, r *dns.Msg) {
	i.metrics.dns.Inc(1)

	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true
	m.Compress = false

	switch r.Opcode {
	case dns.OpcodeQuery:
		i.parseQuery(records, m)
	default:
		m.Rcode = dns.RcodeNotImplemented
	}

	if err := w.WriteMsg(m); err != nil {
		i.l.WithError(err).Debug("Failed to write dns response")
	}
}

// ServeDNS answers A queries for hostname with the interface address on UDP
// port until ctx is done. Every other name is answered with NXDOMAIN.
func (i *Interface) ServeDNS(ctx context.Context, hostname string, port uint16) error {
	records := &dnsRecords{dnsMap: map[string]string{}}
	records.Add(hostname, i.addr.Addr().String())

	conn, release, err := i.ListenUDP(port)
	if err != nil {
		return err
	}
	defer release()

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn: conn,
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			i.handleDnsRequest(records, w, r)
		}),
		NotifyStartedFunc: func() { close(started) },
	}

	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		select {
		case <-started:
			_ = server.Shutdown()
		case <-done:
		}
	})
	defer stop()

	i.l.WithField("hostname", dns.Fqdn(hostname)).WithField("port", port).Info("Starting DNS responder")
	err = server.ActivateAndServe()
	close(done)
	_ = conn.Close()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dns responder: %w", err)
	}
	return nil
}
