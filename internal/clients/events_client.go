package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event types published to the downstream webhook.
const (
	EventTransactionStarted = "transaction.started"
	EventTransactionStopped = "transaction.stopped"
	EventMeterValues        = "transaction.meter_values"
)

// TransactionEvent is the body posted for every lifecycle event.
type TransactionEvent struct {
	Type          string    `json:"type"`
	TransactionID int64     `json:"transaction_id"`
	ChargerID     string    `json:"charger_id"`
	ConnectorID   int       `json:"connector_id"`
	IDTag         string    `json:"id_tag,omitempty"`
	MeterStart    int64     `json:"meter_start"`
	MeterStop     *int64    `json:"meter_stop,omitempty"`
	EnergyWh      int64     `json:"energy_wh,omitempty"`
	Status        string    `json:"status"`
	Simulated     bool      `json:"simulated"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventsClient notifies an external service about transaction lifecycle events.
type EventsClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewEventsClient returns HTTP client wrapper. An empty baseURL disables it.
func NewEventsClient(baseURL string, timeout time.Duration, logger *zap.Logger) *EventsClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventsClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Publish posts event (best-effort).
func (c *EventsClient) Publish(ctx context.Context, event TransactionEvent) error {
	if c.baseURL == "" {
		c.logger.Debug("events client disabled, skipping notification", zap.String("type", event.Type))
		return nil
	}
	return c.post(ctx, "/internal/ocpp/events", event)
}

func (c *EventsClient) post(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", c.baseURL, path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("events client request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("events client returned non-success", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("events: non-success status %d", resp.StatusCode)
	}
	return nil
}
