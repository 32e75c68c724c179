package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/common"
)

// AMQPClient probes queue depth with a passive queue declare over AMQP. The
// protocol only exposes the ready count, so unacknowledged is always zero in
// this mode; scale-down decisions fall back on the ready count alone.
type AMQPClient struct {
	url         string
	dialTimeout time.Duration
	logger      arbor.ILogger
}

// NewAMQPClient creates a passive-declare probe from broker config.
func NewAMQPClient(cfg common.BrokerConfig, logger arbor.ILogger) *AMQPClient {
	return &AMQPClient{
		url: fmt.Sprintf("amqp://%s:%s@%s:%d%s",
			cfg.Username, cfg.Password, cfg.Host, cfg.AMQPPort, amqpVHostPath(cfg.VHost)),
		dialTimeout: cfg.ProbeTimeout(),
		logger:      logger,
	}
}

// amqpVHostPath renders the vhost as a URL path segment. The default vhost
// "/" maps to an empty path per the AMQP URI spec.
func amqpVHostPath(vhost string) string {
	if vhost == "/" || vhost == "" {
		return "/"
	}
	return "/" + vhost
}

// QueueStats returns (ready, 0) for the named queue. A fresh connection per
// probe keeps the client stateless; ticks are seconds apart, so connection
// churn is negligible.
func (a *AMQPClient) QueueStats(ctx context.Context, queue string) (int, int, error) {
	conn, err := amqp.DialConfig(a.url, amqp.Config{
		Dial: amqp.DefaultDial(a.dialTimeout),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("broker connection failed: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return 0, 0, fmt.Errorf("broker channel open failed: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("passive declare failed for %s: %w", queue, err)
	}

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	a.logger.Debug().Str("queue", queue).Int("ready", q.Messages).Msg("Queue depth probe")
	return q.Messages, 0, nil
}
