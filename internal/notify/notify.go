package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tokengate/tokengate/internal/client"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/utils/log"
)

const (
	EventPaymentConfirmed    = "payment_confirmed"
	EventPaymentExpired      = "payment_expired"
	EventSettlementCompleted = "settlement_completed"
	EventSettlementFailed    = "settlement_failed"
)

// Event is one lifecycle notification for a payment.
type Event struct {
	Kind      string `json:"kind"`
	PaymentID string `json:"payment_id"`
	UserID    int64  `json:"user_id"`
	Message   string `json:"message"`
	Time      int64  `json:"time"`
}

// Notifier delivers payment lifecycle events. Delivery is best effort:
// failures are logged, never propagated into the payment flow.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NewEvent stamps an event with the current time.
func NewEvent(kind, paymentID string, userID int64, message string) Event {
	return Event{
		Kind:      kind,
		PaymentID: paymentID,
		UserID:    userID,
		Message:   message,
		Time:      time.Now().Unix(),
	}
}

// LogNotifier writes events to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) {
	switch event.Kind {
	case EventSettlementFailed:
		log.Errorf("payment %s: %s", event.PaymentID, event.Message)
	default:
		log.Infof("payment %s: %s", event.PaymentID, event.Message)
	}
}

// WebhookNotifier posts events as JSON. Failure events go to the operator
// webhook, the rest to the user webhook; either may be empty.
type WebhookNotifier struct {
	userURL     string
	operatorURL string
}

func NewWebhookNotifier(config conf.Notify) *WebhookNotifier {
	return &WebhookNotifier{
		userURL:     config.UserWebhook,
		operatorURL: config.OperatorWebhook,
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, event Event) {
	url := w.userURL
	if event.Kind == EventSettlementFailed {
		url = w.operatorURL
	}
	if url == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("failed to marshal notify event: %v", err)
		return
	}
	httpClient, err := client.GetHTTPClientSystemProxy(false)
	if err != nil {
		log.Errorf("notify webhook client error: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Errorf("notify webhook request error: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Warnf("notify webhook delivery failed: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warnf("notify webhook returned status %d", resp.StatusCode)
	}
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}

// Build assembles the notifier stack from config: always the log, plus
// webhooks when configured.
func Build(config conf.Notify) Notifier {
	notifiers := Multi{LogNotifier{}}
	if config.UserWebhook != "" || config.OperatorWebhook != "" {
		notifiers = append(notifiers, NewWebhookNotifier(config))
	}
	return notifiers
}
