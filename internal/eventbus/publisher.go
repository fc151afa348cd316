// Package eventbus optionally fans out appended Event/Trade/Death rows
// to NATS subjects for any external subscriber (e.g. an alerting
// service). It is disabled unless a NATS URL is configured, and a
// publish failure is logged, never surfaced back to the ingest caller.
package eventbus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/papertrade/controlplane/internal/models"
)

const (
	subjectEvents = "papertrade.events"
	subjectTrades = "papertrade.trades"
	subjectDeaths = "papertrade.deaths"
)

// Publisher wraps a NATS connection. A nil *Publisher is valid and
// every method on it is a no-op, so callers can leave eventbus
// unconfigured without special-casing it.
type Publisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Connect dials url and returns a Publisher, or nil if url is empty
// (NATS fan-out is opt-in). A dial failure is logged and also yields a
// nil Publisher rather than a fatal error — the control plane must
// still serve traffic with no broker reachable.
func Connect(url string, log zerolog.Logger) *Publisher {
	if url == "" {
		return nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("eventbus: NATS connect failed, disabling fan-out")
		return nil
	}
	return &Publisher{conn: conn, log: log}
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, v interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("eventbus: publish failed")
	}
}

func (p *Publisher) PublishEvent(e models.Event) { p.publish(subjectEvents, e) }
func (p *Publisher) PublishTrade(t models.Trade) { p.publish(subjectTrades, t) }
func (p *Publisher) PublishDeath(d models.Death) { p.publish(subjectDeaths, d) }
