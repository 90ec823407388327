package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"turtle/internal/engine"
	"turtle/internal/util"
)

// WriteLines encodes each event as one JSON line on w.
func WriteLines(w io.Writer, events []any) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Publisher sends reports to a collector listening on one TCP port per
// report.
type Publisher struct {
	host        string
	ports       map[string]int
	indexPrefix string
	dialTimeout time.Duration
	attempts    int
	log         *slog.Logger
}

// NewPublisher creates a Publisher for host. ports maps report names to
// collector ports; reports without a port are not sent.
func NewPublisher(host string, ports map[string]int, indexPrefix string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		host:        host,
		ports:       ports,
		indexPrefix: indexPrefix,
		dialTimeout: 5 * time.Second,
		attempts:    3,
		log:         log,
	}
}

// IndexName is the index the collector files report name under.
func (p *Publisher) IndexName(name string) string {
	if p.indexPrefix == "" {
		return name
	}
	return p.indexPrefix + "-" + name
}

// Publish sends every configured report for pf.
func (p *Publisher) Publish(ctx context.Context, pf *engine.Portfolio) error {
	for _, name := range Names {
		port, ok := p.ports[name]
		if !ok || port <= 0 {
			continue
		}
		if err := p.PublishReport(ctx, name, pf); err != nil {
			return err
		}
	}
	return nil
}

// PublishReport builds report name for pf and streams it over a fresh
// connection.
func (p *Publisher) PublishReport(ctx context.Context, name string, pf *engine.Portfolio) error {
	port, ok := p.ports[name]
	if !ok {
		return fmt.Errorf("no port configured for report %q", name)
	}
	events, err := Events(name, pf, p.IndexName(name))
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(p.host, strconv.Itoa(port))
	p.log.Info("generating report", "report", name, "addr", addr, "events", len(events))

	var conn net.Conn
	dialer := net.Dialer{Timeout: p.dialTimeout}
	err = util.Retry(ctx, p.attempts, 500*time.Millisecond, func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		return err
	})
	if err != nil {
		return fmt.Errorf("connecting to %s for %s report: %w", addr, name, err)
	}
	defer conn.Close()

	if err := WriteLines(conn, events); err != nil {
		return fmt.Errorf("sending %s report: %w", name, err)
	}
	return nil
}
