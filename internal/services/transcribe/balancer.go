package transcribe

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/models"
	"golang.org/x/time/rate"
)

// credential is one API key with its health state
type credential struct {
	key          string
	limiter      *rate.Limiter
	failures     int       // consecutive failures
	cooldownTill time.Time // zero = healthy
	disabled     bool      // credential rejected by the provider, never retried
}

func (c *credential) available(now time.Time) bool {
	return !c.disabled && now.After(c.cooldownTill)
}

// Balancer spreads transcription requests across multiple provider
// credentials and fails over between them. A credential that keeps failing is
// put in cooldown; one the provider rejects outright is disabled for the
// life of the process. Selection rotates so load spreads evenly.
type Balancer struct {
	mu     sync.Mutex
	creds  []*credential
	cursor int
	config *common.TranscribeConfig
	logger arbor.ILogger
	now    func() time.Time
}

// NewBalancer creates the credential balancer from the configured API keys
func NewBalancer(config *common.TranscribeConfig, logger arbor.ILogger) *Balancer {
	creds := make([]*credential, 0, len(config.APIKeys))
	for _, key := range config.APIKeys {
		if key == "" {
			continue
		}
		var limiter *rate.Limiter
		if config.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Every(config.RateLimit), 1)
		}
		creds = append(creds, &credential{key: key, limiter: limiter})
	}

	return &Balancer{
		creds:  creds,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Do runs fn with an available credential, failing over to the next one when
// fn reports a retryable failure. Each distinct credential is tried at most
// once per call. fn's second return tells the balancer how to treat the
// credential afterwards.
func (b *Balancer) Do(ctx context.Context, fn func(ctx context.Context, apiKey string) Outcome) error {
	tried := make(map[string]struct{})
	var lastErr error

	for {
		cred := b.next(tried)
		if cred == nil {
			if lastErr != nil {
				return lastErr
			}
			return models.ErrNoCredentials
		}
		tried[cred.key] = struct{}{}

		if cred.limiter != nil {
			if err := cred.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		outcome := fn(ctx, cred.key)
		switch outcome.Kind {
		case OutcomeOK:
			b.markSuccess(cred)
			return nil
		case OutcomeFatal:
			// The request itself is bad; no other credential will do better
			b.markSuccess(cred)
			return outcome.Err
		case OutcomeRejected:
			b.disable(cred, outcome.Err)
			lastErr = outcome.Err
		default:
			b.markFailure(cred, outcome.Err)
			lastErr = outcome.Err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Available reports how many credentials could serve a request right now
func (b *Balancer) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	count := 0
	for _, cred := range b.creds {
		if cred.available(now) {
			count++
		}
	}
	return count
}

// next picks the next untried available credential, rotating the cursor
func (b *Balancer) next(tried map[string]struct{}) *credential {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for i := 0; i < len(b.creds); i++ {
		cred := b.creds[(b.cursor+i)%len(b.creds)]
		if _, done := tried[cred.key]; done {
			continue
		}
		if !cred.available(now) {
			continue
		}
		b.cursor = (b.cursor + i + 1) % len(b.creds)
		return cred
	}
	return nil
}

func (b *Balancer) markSuccess(cred *credential) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cred.failures = 0
	cred.cooldownTill = time.Time{}
}

func (b *Balancer) markFailure(cred *credential, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cred.failures++
	if cred.failures >= b.config.FailureThreshold {
		cred.cooldownTill = b.now().Add(b.config.Cooldown)
		cred.failures = 0
		b.logger.Warn().
			Err(err).
			Str("credential", maskKey(cred.key)).
			Dur("cooldown", b.config.Cooldown).
			Msg("Credential entering cooldown after repeated failures")
	}
}

func (b *Balancer) disable(cred *credential, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cred.disabled = true
	b.logger.Warn().
		Err(err).
		Str("credential", maskKey(cred.key)).
		Msg("Credential rejected by provider, disabling")
}

// maskKey keeps only enough of a key to recognize it in logs
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// OutcomeKind classifies how a transcription attempt ended for the
// credential that made it
type OutcomeKind int

const (
	OutcomeOK       OutcomeKind = iota
	OutcomeRetry                // transient failure, try another credential
	OutcomeRejected             // credential invalid or revoked
	OutcomeFatal                // request invalid regardless of credential
)

// Outcome is the result of one attempt
type Outcome struct {
	Kind OutcomeKind
	Err  error
}
