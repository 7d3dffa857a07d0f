package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

const newsSubject = "insight.news"

// NATSClient distributes streamed news items between processes. It is
// optional: when no NATS URL is configured the stream client hands items
// to the dashboard hub in-process instead.
type NATSClient struct {
	conn   *nats.Conn
	cfg    *config.NATSConfig
	logger *logrus.Entry
}

// NewNATSClient connects to NATS
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	log := logger.WithField("component", "nats")

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DrainTimeout(cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.WithField("url", cfg.URL).Info("Connected to NATS")

	return &NATSClient{
		conn:   conn,
		cfg:    cfg,
		logger: log,
	}, nil
}

// PublishNews publishes one news item
func (nc *NATSClient) PublishNews(item models.NewsItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal news item: %w", err)
	}

	if err := nc.conn.Publish(newsSubject, data); err != nil {
		return fmt.Errorf("failed to publish news item: %w", err)
	}
	return nil
}

// SubscribeNews delivers each published news item to the handler
func (nc *NATSClient) SubscribeNews(handler func(models.NewsItem)) (*nats.Subscription, error) {
	sub, err := nc.conn.Subscribe(newsSubject, func(msg *nats.Msg) {
		var item models.NewsItem
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			nc.logger.WithError(err).Warn("Dropping malformed news message")
			return
		}
		handler(item)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", newsSubject, err)
	}
	return sub, nil
}

// IsConnected reports the connection status
func (nc *NATSClient) IsConnected() bool {
	return nc.conn != nil && nc.conn.IsConnected()
}

// Close drains and closes the connection
func (nc *NATSClient) Close() {
	if nc.conn == nil {
		return
	}
	if err := nc.conn.Drain(); err != nil {
		nc.logger.WithError(err).Warn("NATS drain failed, closing hard")
		nc.conn.Close()
	}
}
