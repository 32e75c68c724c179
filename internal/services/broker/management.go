// Package broker probes the message broker for live queue depth.
//
// Two probe modes exist: the management HTTP API (default, returns both ready
// and unacknowledged counts) and a plain AMQP passive declare (ready count
// only, for deployments without the management plugin).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/common"
)

// ManagementClient probes queue statistics through the RabbitMQ management
// HTTP API.
type ManagementClient struct {
	baseURL  string
	vhost    string
	username string
	password string
	client   *http.Client
	logger   arbor.ILogger
}

// queueStats is the subset of the management API queue document we read.
type queueStats struct {
	MessagesReady   int `json:"messages_ready"`
	MessagesUnacked int `json:"messages_unacknowledged"`
}

// NewManagementClient creates a management API probe from broker config.
func NewManagementClient(cfg common.BrokerConfig, logger arbor.ILogger) *ManagementClient {
	return &ManagementClient{
		baseURL:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.ManagementPort),
		vhost:    cfg.VHost,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: cfg.ProbeTimeout()},
		logger:   logger,
	}
}

// QueueStats returns (ready, unacknowledged) counts for the named queue.
func (m *ManagementClient) QueueStats(ctx context.Context, queue string) (int, int, error) {
	endpoint := fmt.Sprintf("%s/api/queues/%s/%s",
		m.baseURL, url.PathEscape(m.vhost), url.PathEscape(queue))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build queue stats request: %w", err)
	}
	req.SetBasicAuth(m.username, m.password)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("queue stats probe failed for %s: %w", queue, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("queue stats probe for %s returned %d", queue, resp.StatusCode)
	}

	var stats queueStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, 0, fmt.Errorf("failed to decode queue stats for %s: %w", queue, err)
	}

	m.logger.Debug().
		Str("queue", queue).
		Int("ready", stats.MessagesReady).
		Int("unacked", stats.MessagesUnacked).
		Msg("Queue stats probe")

	return stats.MessagesReady, stats.MessagesUnacked, nil
}
