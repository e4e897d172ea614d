package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subjects published by the service.
const (
	SubjectSessionCompleted = "gazemap.session.completed"
	SubjectHeatmapRendered  = "gazemap.heatmap.rendered"
)

// SessionCompleted is emitted when a session is frozen.
type SessionCompleted struct {
	SessionID    string `json:"session_id"`
	URL          string `json:"url"`
	SampleCount  int    `json:"sample_count"`
	AnalysisTime int    `json:"analysis_time"`
	CompletedAt  int64  `json:"completed_at"` // Unix milliseconds
}

// HeatmapRendered is emitted after an export has been produced.
type HeatmapRendered struct {
	SessionID  string `json:"session_id"`
	Format     string `json:"format"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Bytes      int    `json:"bytes"`
	RenderedAt int64  `json:"rendered_at"` // Unix milliseconds
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(subject string, data any) error
	Close()
}

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger logrus.FieldLogger
}

// NewNATSPublisher connects to url. The connection keeps retrying in the
// background, so a broker that is down at startup does not fail the service.
func NewNATSPublisher(_ context.Context, url, token string, logger logrus.FieldLogger) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("gazemap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{conn: nc, logger: logger}, nil
}

// Publish marshals data as JSON and publishes it on subject.
func (p *NATSPublisher) Publish(subject string, data any) error {
	payload, err := Encode(data)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		p.logger.WithError(err).Debug("nats flush on close")
	}
	p.conn.Close()
}

// Encode is the wire encoding of every event.
func Encode(data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return payload, nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }
func (NopPublisher) Close()                    {}
