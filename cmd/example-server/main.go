package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

// Exemplo: injetando o gate diretamente no seu webserver (sem proxy),
// com os stores em memória. Mostra o contrato completo: Admit antes do
// handler (via middleware) e Report depois (handler de login).
func main() {
	blocklist := &application.Blocklist{Store: infra.NewMemoryBlockStore()}
	tracker := &application.Tracker{
		Failures:  infra.NewMemoryFailureStore(),
		Blocklist: blocklist,
		Threshold: 3,
		Window:    5 * time.Minute,
		Lockout:   10 * time.Minute,
	}
	csrf := &application.CSRF{
		Tokens:      infra.NewMemoryTokenStore(),
		RotateEvery: 30 * time.Minute,
	}
	gate := &application.Gate{
		Blocklist: blocklist,
		CSRF:      csrf,
		Registry: application.NewRegistry([]domain.Policy{{
			Scope:       domain.ScopeEndpoint,
			Endpoint:    "/login",
			Window:      time.Minute,
			MaxRequests: 5,
			FailMode:    domain.FailOpen,
		}}),
		Limiter: application.Limiter{Store: infra.NewMemoryCounter()},
		Tracker: tracker,
	}

	opts := admission.Options{
		Gate:                gate,
		OwnerFn:             sessionID,
		AddRateLimitHeaders: true,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		// Sessão nova: cookie de sessão + primeiro token CSRF.
		sid := uuid.NewString()
		http.SetCookie(w, &http.Cookie{Name: "session", Value: sid, Path: "/", HttpOnly: true})
		token, err := csrf.Issue(r.Context(), sid)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		admission.SetCSRFCookie(w, opts, token)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("session created\n"))
	})

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		identity := r.FormValue("user")
		ok := r.FormValue("password") == "hunter2" // só para o exemplo

		// Relato pós-ação: alimenta o lockout (e zera no sucesso).
		gate.Report(r.Context(), domain.Outcome{
			Identity:  identity,
			EventType: "login",
			Success:   ok,
		})
		if !ok {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("welcome\n"))
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		if sid := sessionID(r); sid != "" {
			_ = csrf.Revoke(r.Context(), sid)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("bye\n"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := http.Handler(mux)
	h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{Max: 50})(h)
	h = admission.Middleware(opts)(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie("session")
	if err != nil {
		return ""
	}
	return c.Value
}
