package events

import (
	"context"
	"fmt"
	"time"

	"chat-platform/internal/models"
	"chat-platform/pkg/logger"

	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("chat-platform"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, msg *models.Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(Subject(p.prefix, msg), data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
