package admission

import (
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
)

const (
	DefaultCookieName = "csrftoken"
	DefaultHeaderName = "X-CSRFToken"
)

type Options struct {
	Gate *application.Gate
	// Events recebe cada decisão (best-effort: erro não derruba request).
	Events domain.EventStore
	// Prefilter descarta rajadas locais antes de qualquer round-trip ao store.
	Prefilter domain.LimiterStore

	// IdentityFn extrai a identidade de rede; nil usa DefaultIdentityFunc.
	IdentityFn IdentityFunc
	// UserFn extrai (user id, tier) do usuário autenticado; a aplicação injeta
	// a extração que fizer sentido (sessão, JWT, etc). Vazio = anônimo.
	UserFn func(r *http.Request) (id, tier string)
	// OwnerFn identifica o dono do token CSRF (sessão); nil desativa rotação.
	OwnerFn func(r *http.Request) string
	// EndpointFn dá o id lógico do endpoint para a seleção de política;
	// nil usa o path da URL.
	EndpointFn func(r *http.Request) string

	TrustedProxies []string

	CookieName     string
	HeaderName     string
	CookieSecure   bool
	CookieSameSite http.SameSite

	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// Middleware devolve o middleware de admissão: uma chamada ao gate antes do
// handler, tradução da decisão para status/headers/corpo, e rotação CSRF
// oportunista na resposta.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.HeaderName == "" {
		opts.HeaderName = DefaultHeaderName
	}
	if opts.CookieSameSite == 0 {
		opts.CookieSameSite = http.SameSiteLaxMode
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc(opts.TrustedProxies)
	}
	if opts.EndpointFn == nil {
		opts.EndpointFn = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID, tier string
			if opts.UserFn != nil {
				userID, tier = opts.UserFn(r)
			}
			identity := opts.IdentityFn(r)
			if userID != "" {
				identity = userID
			}

			// Pré-filtro local: barra rajadas óbvias sem tocar o store.
			if opts.Prefilter != nil {
				if lim := opts.Prefilter.Get(domain.Key(identity)); lim != nil && !lim.Allow() {
					if opts.AddRateLimitHeaders {
						if ri, ok := opts.Prefilter.(rateInfo); ok {
							w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
							w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
						}
					}
					res := domain.Result{
						Action:     domain.Deny,
						Status:     http.StatusTooManyRequests,
						Reason:     domain.ReasonRateLimitExceeded,
						RetryAfter: 1 * time.Second,
					}
					recordEvent(r, opts.Events, identity, res)
					writeDeny(w, r, res)
					return
				}
			}

			var owner string
			if opts.OwnerFn != nil {
				owner = opts.OwnerFn(r)
			}

			req := domain.Request{
				Identity:   identity,
				UserID:     userID,
				Tier:       tier,
				Endpoint:   opts.EndpointFn(r),
				Method:     r.Method,
				Path:       r.URL.Path,
				Referer:    r.Referer(),
				CSRFHeader: r.Header.Get(opts.HeaderName),
				CSRFOwner:  owner,
			}
			if c, err := r.Cookie(opts.CookieName); err == nil {
				req.CSRFCookie = c.Value
			}

			res := opts.Gate.Admit(r.Context(), req)
			recordEvent(r, opts.Events, identity, res)

			if !res.Allowed() {
				writeDeny(w, r, res)
				return
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", string(res.Key))
				if res.Remaining >= 0 {
					w.Header().Set("X-RateLimit-Remaining", formatInt(res.Remaining))
				}
			}

			// Rotação oportunista: roda antes do handler para que o Set-Cookie
			// saia ainda nesta resposta. Falha de rotação mantém o cookie atual,
			// mas nunca em silêncio.
			if owner != "" && opts.Gate.CSRF != nil {
				token, err := opts.Gate.CSRF.MaybeRotate(r.Context(), owner)
				switch {
				case err != nil:
					logger := opts.Gate.Logger
					if logger == nil {
						logger = slog.Default()
					}
					logger.ErrorContext(r.Context(), "csrf rotation failed", "owner", owner, "error", err)
				case token != nil:
					SetCSRFCookie(w, opts, *token)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetCSRFCookie grava o cookie double-submit com os atributos exigidos.
// Exportado para handlers de login/sessão que emitem o primeiro token.
func SetCSRFCookie(w http.ResponseWriter, opts Options, token domain.Token) {
	name := opts.CookieName
	if name == "" {
		name = DefaultCookieName
	}
	sameSite := opts.CookieSameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token.Value,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.CookieSecure,
		SameSite: sameSite,
	})
}

func recordEvent(r *http.Request, events domain.EventStore, identity string, res domain.Result) {
	if events == nil {
		return
	}
	key := res.Key
	if key == "" {
		key = domain.Key(identity)
	}
	_ = events.Record(r.Context(), domain.Event{
		Key:    key,
		Action: res.Action,
		Reason: res.Reason,
		Method: r.Method,
		Path:   r.URL.Path,
		At:     time.Now(),
	})
}
