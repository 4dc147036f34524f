package cas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dideher/secondments/pkg/observability"
)

// TicketVerifier exchanges opaque CAS tickets for verified identities via a
// signed out-of-band call to the provider. Verification failure is a normal,
// expected outcome and is reported as an absent result, never as an error:
// provider downtime, timeouts and malformed payloads all drive the caller's
// retry/reject branch.
type TicketVerifier struct {
	client    *http.Client
	signer    *SignatureGenerator
	verifyURL string
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewTicketVerifier creates a verifier for the given verify endpoint. The
// timeout bounds the whole round trip; a zero timeout disables the bound.
func NewTicketVerifier(signer *SignatureGenerator, verifyURL string, timeout time.Duration, logger *observability.Logger, metrics *observability.Metrics) *TicketVerifier {
	return &TicketVerifier{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		signer:    signer,
		verifyURL: verifyURL,
		logger:    logger,
		metrics:   metrics,
	}
}

// Verify resolves a ticket into a verified identity. Returns nil when the
// provider rejects the ticket, is unreachable, or responds with anything but
// a well-formed 200 payload.
func (v *TicketVerifier) Verify(ctx context.Context, ticket string) *VerifiedIdentity {
	start := time.Now()

	challenge, err := v.signer.GenerateChallenge()
	if err != nil {
		v.logger.WithError(err).Error("failed to sign verification call")
		v.observe("error", start)
		return nil
	}

	params := url.Values{}
	params.Set("d", challenge.Digest)
	params.Set("t", ticket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.verifyURL+"?"+params.Encode(), nil)
	if err != nil {
		v.logger.WithError(err).Error("failed to build verification request")
		v.observe("error", start)
		return nil
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.WithError(err).Warn("ticket verification call failed")
		v.observe("error", start)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.WithField("status", resp.StatusCode).Warn("ticket verification rejected")
		v.observe("rejected", start)
		return nil
	}

	var identity VerifiedIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		v.logger.WithError(err).Warn("malformed verification payload")
		v.observe("malformed", start)
		return nil
	}

	v.observe("verified", start)
	return &identity
}

func (v *TicketVerifier) observe(result string, start time.Time) {
	if v.metrics != nil {
		v.metrics.ObserveVerification(result, start)
	}
}
