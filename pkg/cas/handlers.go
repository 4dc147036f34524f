package cas

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/dideher/secondments/pkg/config"
	"github.com/dideher/secondments/pkg/httputil"
	"github.com/dideher/secondments/pkg/observability"
	"github.com/dideher/secondments/pkg/session"
)

// nextCookie stashes the post-login destination across the provider
// round-trip when the store-next mode is enabled
const nextCookie = "secondments_next"

// Verifier resolves tickets into identities. Implemented by TicketVerifier.
type Verifier interface {
	Verify(ctx context.Context, ticket string) *VerifiedIdentity
}

// TicketLedger is the session-ticket bookkeeping the login and logout flows
// need. Implemented by SessionTicketLedger.
type TicketLedger interface {
	Record(ctx context.Context, sessionKey, ticket string) error
	Lookup(ctx context.Context, sessionKey string) (*SessionTicket, error)
	Remove(ctx context.Context, sessionKey string) error
}

// Handlers implements the login and logout endpoints of the proxy
// authentication flow
type Handlers struct {
	cfg       config.CASConfig
	signer    *SignatureGenerator
	resolver  *RedirectResolver
	endpoints *ProviderEndpoints
	verifier  Verifier
	binder    *IdentityBinder
	ledger    TicketLedger
	sessions  session.Store
	cookies   *session.CookieManager
	broker    *EventBroker
	logger    *observability.Logger
	metrics   *observability.Metrics

	// SuccessfulLogin finishes a completed login. The default redirects to
	// the resolved next page; override to render a landing page instead.
	SuccessfulLogin func(w http.ResponseWriter, r *http.Request, next string)

	// SuccessfulLogout finishes a local logout (upstream propagation, when
	// configured, takes precedence). The default redirects to next.
	SuccessfulLogout func(w http.ResponseWriter, r *http.Request, next string)
}

// NewHandlers wires the protocol controller
func NewHandlers(
	cfg config.CASConfig,
	signer *SignatureGenerator,
	resolver *RedirectResolver,
	endpoints *ProviderEndpoints,
	verifier Verifier,
	binder *IdentityBinder,
	ledger TicketLedger,
	sessions session.Store,
	cookies *session.CookieManager,
	broker *EventBroker,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Handlers {
	redirect := func(w http.ResponseWriter, r *http.Request, next string) {
		http.Redirect(w, r, next, http.StatusFound)
	}
	return &Handlers{
		cfg:              cfg,
		signer:           signer,
		resolver:         resolver,
		endpoints:        endpoints,
		verifier:         verifier,
		binder:           binder,
		ledger:           ledger,
		sessions:         sessions,
		cookies:          cookies,
		broker:           broker,
		logger:           logger,
		metrics:          metrics,
		SuccessfulLogin:  redirect,
		SuccessfulLogout: redirect,
	}
}

// RegisterRoutes registers the authentication endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/accounts/login", h.Login).Methods(http.MethodGet)
	router.HandleFunc("/accounts/logout", h.Logout).Methods(http.MethodGet)
}

// Login drives the whole login state machine: an authenticated session is
// redirected straight to its destination, a request without a ticket is
// challenged and sent to the provider, and a request with a ticket is
// verified out of band and either admitted or rejected.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	ticket := r.URL.Query().Get("ticket")
	required := r.URL.Query().Get("required") != ""

	next, err := h.resolver.ResolveNext(r, r.URL.Query().Get("next"))
	if err != nil {
		h.logger.WithError(err).WithField("next", r.URL.Query().Get("next")).
			Warn("rejected unsafe login redirect")
		httputil.WriteForbidden(w, "unsafe redirect target")
		return
	}

	// Already authenticated sessions skip the provider entirely
	if key, ok := h.cookies.Read(r); ok {
		sess, err := h.sessions.Get(ctx, key)
		if err != nil {
			h.logger.WithError(err).Error("session lookup failed")
			httputil.WriteInternalError(w, "session store unavailable")
			return
		}
		if sess != nil {
			http.Redirect(w, r, next, http.StatusFound)
			return
		}
	}

	if ticket == "" {
		h.challenge(w, r, next)
		return
	}

	if h.cfg.StoreNext {
		if stored, ok := h.readNextCookie(r); ok {
			next = stored
		}
		h.clearNextCookie(w)
	}

	identity := h.verifier.Verify(ctx, ticket)

	localUser, err := h.binder.Bind(ctx, identity, ticket, r)
	if err != nil {
		if IsConfigError(err) {
			h.logger.WithError(err).Error("login aborted by configuration error")
			httputil.WriteInternalError(w, "authentication misconfigured")
			return
		}
		h.logger.WithError(err).Error("identity binding failed")
		httputil.WriteInternalError(w, "authentication backend unavailable")
		return
	}

	if localUser == nil {
		h.loginFailed(w, r, identity, ticket, next, required, start)
		return
	}

	sess, err := h.sessions.Create(ctx, localUser.ID, localUser.Username)
	if err != nil {
		h.logger.WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w, "session store unavailable")
		return
	}
	h.cookies.Set(w, sess.Key)

	if err := h.ledger.Record(ctx, sess.Key, ticket); err != nil {
		h.logger.WithError(err).Error("failed to record session ticket")
		httputil.WriteInternalError(w, "session ledger unavailable")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"username": localUser.Username,
		"ip":       httputil.ClientIP(r),
	}).Info("login succeeded")
	h.observeLogin("success", start)

	h.SuccessfulLogin(w, r, next)
}

// challenge signs a fresh nonce and sends the browser to the provider
func (h *Handlers) challenge(w http.ResponseWriter, r *http.Request, next string) {
	ch, err := h.signer.GenerateChallenge()
	if err != nil {
		h.logger.WithError(err).Error("failed to generate login challenge")
		httputil.WriteInternalError(w, "challenge generation failed")
		return
	}

	if h.metrics != nil {
		h.metrics.ChallengesIssued.Inc()
	}
	if h.cfg.StoreNext {
		h.setNextCookie(w, next)
		next = ""
	}

	http.Redirect(w, r, h.endpoints.LoginURL(ch.Digest, h.serviceURL(r, next)), http.StatusFound)
}

// loginFailed handles the rejected-ticket branch: retry against the provider
// when configured or demanded, otherwise deny with 403.
func (h *Handlers) loginFailed(w http.ResponseWriter, r *http.Request, identity *VerifiedIdentity, ticket, next string, required bool, start time.Time) {
	username := ""
	if identity != nil {
		username = identity.Username
	}
	h.broker.Notify(r.Context(), &Event{
		Type:       EventLoginFailed,
		Username:   username,
		Ticket:     ticket,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	h.observeLogin("denied", start)

	if h.cfg.RetryLogin || required {
		h.challenge(w, r, next)
		return
	}

	h.logger.WithField("ip", httputil.ClientIP(r)).Warn("login denied")
	httputil.WriteError(w, http.StatusForbidden, ErrLoginFailed)
}

// Logout terminates the local session and, when configured, propagates the
// logout upstream so the provider session dies with it.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	next, err := h.resolver.ResolveNext(r, r.URL.Query().Get("next"))
	if err != nil {
		h.logger.WithError(err).Warn("rejected unsafe logout redirect")
		httputil.WriteForbidden(w, "unsafe redirect target")
		return
	}

	key, ok := h.cookies.Read(r)
	if !ok {
		h.SuccessfulLogout(w, r, next)
		return
	}

	sess, err := h.sessions.Get(ctx, key)
	if err != nil {
		h.logger.WithError(err).Error("session lookup failed")
		httputil.WriteInternalError(w, "session store unavailable")
		return
	}

	// A cookie whose session is gone is an anonymous caller. Leave any
	// leftover ledger row to the orphan sweep: its ticket belongs to a
	// session this caller no longer holds.
	if sess == nil {
		h.cookies.Clear(w)
		h.SuccessfulLogout(w, r, next)
		return
	}

	ticket := ""
	if st, err := h.ledger.Lookup(ctx, key); err != nil {
		h.logger.WithError(err).Error("session ticket lookup failed")
	} else if st != nil {
		ticket = st.Ticket
	}

	h.broker.Notify(ctx, &Event{
		Type:       EventLogout,
		Username:   sess.Username,
		Ticket:     ticket,
		SessionKey: key,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})

	if err := h.ledger.Remove(ctx, key); err != nil {
		h.logger.WithError(err).Error("failed to remove session ticket")
	}
	if err := h.sessions.Delete(ctx, key); err != nil {
		h.logger.WithError(err).Error("failed to delete session")
	}
	h.cookies.Clear(w)

	if h.cfg.LogoutCompletely && ticket != "" {
		h.observeLogout("complete")
		http.Redirect(w, r, h.endpoints.LogoutURL(httputil.RequestURL(r), ticket), http.StatusFound)
		return
	}

	h.observeLogout("local")
	h.SuccessfulLogout(w, r, next)
}

// serviceURL builds the absolute URL the provider sends the browser back to.
// The inbound query travels with it so per-request markers like required=
// survive the provider round trip; a consumed ticket is stripped, and the
// next page rides along unless it was stashed server-side.
func (h *Handlers) serviceURL(r *http.Request, next string) string {
	u, err := url.Parse(httputil.RequestURL(r))
	if err != nil {
		return httputil.RequestURL(r)
	}

	q := u.Query()
	q.Del("ticket")
	q.Del("next")
	if next != "" {
		q.Set("next", next)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handlers) setNextCookie(w http.ResponseWriter, next string) {
	http.SetCookie(w, &http.Cookie{
		Name:     nextCookie,
		Value:    url.QueryEscape(next),
		Path:     "/accounts",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) readNextCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(nextCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	next, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}
	return next, true
}

func (h *Handlers) clearNextCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     nextCookie,
		Value:    "",
		Path:     "/accounts",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) observeLogin(result string, start time.Time) {
	if h.metrics != nil {
		h.metrics.LoginsTotal.WithLabelValues(result).Inc()
		h.metrics.LoginFlowDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

func (h *Handlers) observeLogout(mode string) {
	if h.metrics != nil {
		h.metrics.LogoutsTotal.WithLabelValues(mode).Inc()
	}
}
