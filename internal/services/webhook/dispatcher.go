package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/models"
)

// payload is the body delivered to a run's callback URL
type payload struct {
	Type      string      `json:"type"`
	Run       *models.Run `json:"run"`
	Timestamp int64       `json:"timestamp"`
}

// eventTypeFor names the payload by the run's terminal state
func eventTypeFor(status models.RunStatus) string {
	return "run." + string(status)
}

// urlValidator is the slice of Guard the dispatcher needs
type urlValidator interface {
	ValidateURL(rawURL string) error
}

// Dispatcher delivers terminal-state callbacks. Delivery is asynchronous and
// best-effort: the run finishes regardless of what its callback does.
type Dispatcher struct {
	guard   urlValidator
	signer  *Signer
	client  *http.Client
	config  *common.WebhookConfig
	logger  arbor.ILogger
	sleep   func(time.Duration)
	baseOff time.Duration
}

// NewDispatcher creates the webhook dispatcher
func NewDispatcher(guard *Guard, signer *Signer, config *common.WebhookConfig, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		guard:   guard,
		signer:  signer,
		client:  NewSafeClient(config.Timeout),
		config:  config,
		logger:  logger,
		sleep:   time.Sleep,
		baseOff: time.Second,
	}
}

// NotifyRunFinished delivers the run's terminal state to its callback URL,
// if it has one. Returns immediately; delivery happens in the background.
func (d *Dispatcher) NotifyRunFinished(run *models.Run) {
	if run.CallbackURL == "" {
		return
	}
	snapshot := run.Clone()
	common.SafeGo(d.logger, "webhook-delivery", func() {
		d.deliver(snapshot)
	})
}

func (d *Dispatcher) deliver(run *models.Run) {
	if err := d.guard.ValidateURL(run.CallbackURL); err != nil {
		d.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Callback URL rejected, skipping delivery")
		return
	}

	eventType := eventTypeFor(run.Status)
	body, err := json.Marshal(payload{
		Type:      eventType,
		Run:       run,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		d.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to encode webhook payload")
		return
	}

	attempts := d.config.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		retryable, err := d.post(run.CallbackURL, eventType, body)
		if err == nil {
			d.logger.Info().Str("run_id", run.ID).Int("attempt", attempt).Msg("Webhook delivered")
			return
		}
		if !retryable {
			d.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Webhook rejected, not retrying")
			return
		}
		d.logger.Warn().Err(err).Str("run_id", run.ID).Int("attempt", attempt).Msg("Webhook delivery failed")
		if attempt < attempts {
			d.sleep(d.backoff(attempt))
		}
	}
	d.logger.Error().Str("run_id", run.ID).Int("attempts", attempts).Msg("Webhook delivery abandoned")
}

// post sends one delivery attempt. The bool reports whether the failure is
// worth retrying.
func (d *Dispatcher) post(callbackURL, eventType string, body []byte) (bool, error) {
	req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, eventType)

	// The timestamp header goes out on every delivery; only the signature
	// depends on a secret being configured
	signature, timestamp := d.signer.Sign(body)
	req.Header.Set(HeaderTimestamp, timestamp)
	if d.signer.Enabled() {
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook receiver returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook receiver returned status %d", resp.StatusCode)
	}
}

// backoff grows exponentially with jitter so a struggling receiver is not
// hammered in lockstep.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	base := d.baseOff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}
