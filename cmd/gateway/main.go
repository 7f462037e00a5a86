package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

func main() {
	// .env é opcional; em produção as variáveis vêm do ambiente mesmo.
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	_, err = rdb.Ping(pingCtx).Result()
	cancelPing()
	if err != nil {
		log.Fatalf("redis ping error: %v", err)
	}

	registry := application.NewRegistry(cfg.policies)
	blocklist := &application.Blocklist{Store: infra.NewRedisBlockStore(rdb)}
	tracker := &application.Tracker{
		Failures:  infra.NewRedisFailureStore(rdb),
		Blocklist: blocklist,
		Threshold: cfg.lockoutThreshold,
		Window:    cfg.lockoutWindow,
		Lockout:   cfg.lockoutDuration,
	}
	csrf := &application.CSRF{
		Tokens:      infra.NewRedisTokenStore(rdb),
		RotateEvery: cfg.csrfRotateEvery,
	}
	limiter := application.Limiter{
		Store:   infra.NewRedisCounter(rdb),
		Timeout: cfg.storeTimeout,
	}
	gate := &application.Gate{
		Blocklist: blocklist,
		CSRF:      csrf,
		Registry:  registry,
		Limiter:   limiter,
		Tracker:   tracker,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var prefilter domain.LimiterStore
	if cfg.prefilterEnabled {
		pf := infra.NewLocalPrefilter(cfg.prefilterRPS, cfg.prefilterBurst)
		pf.StartJanitor(ctx)
		prefilter = pf
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())

	var events domain.EventStore
	switch cfg.eventsSink {
	case "redis":
		events = infra.NewRedisEventStore(
			rdb,
			infra.WithEventTTL(cfg.eventsTTL),
			infra.WithEventBucket(cfg.eventsBucket),
			infra.WithEventTrackKeys(cfg.eventsTrackKeys),
		)
	case "prometheus":
		events = infra.NewPrometheusEventStore(promReg)
	case "none":
	default:
		log.Fatalf("unknown EVENTS_SINK %q (redis|prometheus|none)", cfg.eventsSink)
	}

	h := http.Handler(proxy)
	h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = admission.Middleware(admission.Options{
		Gate:                gate,
		Events:              events,
		Prefilter:           prefilter,
		TrustedProxies:      cfg.trustedProxies,
		CookieSecure:        cfg.csrfCookieSecure,
		CookieSameSite:      cfg.csrfSameSite,
		AddRateLimitHeaders: cfg.addHeaders,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/admin/", http.StripPrefix("/admin", admission.AdminRouter(admission.AdminOptions{
		Blocklist: blocklist,
		Limiter:   limiter,
	})))
	adminMux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	adminSrv := &http.Server{
		Addr:              cfg.adminAddr,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = adminSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Printf("admin listening on %s", cfg.adminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("policies: %d rows (defaults compiled in), storeTimeout=%s", len(cfg.policies), cfg.storeTimeout)
	log.Printf("lockout: threshold=%d window=%s duration=%s", cfg.lockoutThreshold, cfg.lockoutWindow, cfg.lockoutDuration)
	log.Printf("csrf: rotateEvery=%s secure=%v", cfg.csrfRotateEvery, cfg.csrfCookieSecure)
	log.Printf("prefilter: enabled=%v rps=%.3f burst=%d", cfg.prefilterEnabled, cfg.prefilterRPS, cfg.prefilterBurst)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type config struct {
	listenAddr  string
	adminAddr   string
	upstreamURL string

	redisAddr     string
	redisPassword string
	redisDB       int

	policies     []domain.Policy
	storeTimeout time.Duration

	trustedProxies []string

	lockoutThreshold int
	lockoutWindow    time.Duration
	lockoutDuration  time.Duration

	csrfRotateEvery  time.Duration
	csrfCookieSecure bool
	csrfSameSite     http.SameSite

	prefilterEnabled bool
	prefilterRPS     float64
	prefilterBurst   int

	concurrencyMax     int
	concurrencyTimeout time.Duration

	eventsSink      string
	eventsBucket    string
	eventsTTL       time.Duration
	eventsTrackKeys bool

	addHeaders bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.adminAddr = getenvDefault("ADMIN_ADDR", "127.0.0.1:8081")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "127.0.0.1:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)

	failMode := domain.FailMode(getenvDefault("FAIL_MODE", string(domain.FailOpen)))
	if failMode != domain.FailOpen && failMode != domain.FailClosed {
		return config{}, errors.New("FAIL_MODE must be open or closed")
	}

	table, err := readPolicyTable()
	if err != nil {
		return config{}, err
	}
	if len(table) > 0 {
		cfg.policies, err = application.ParsePolicyTable(table, failMode)
		if err != nil {
			return config{}, err
		}
	}

	cfg.storeTimeout = getenvDurationDefault("STORE_TIMEOUT", 150*time.Millisecond)

	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.trustedProxies = append(cfg.trustedProxies, p)
			}
		}
	}

	cfg.lockoutThreshold = getenvIntDefault("LOCKOUT_THRESHOLD", 5)
	cfg.lockoutWindow = getenvDurationDefault("LOCKOUT_WINDOW", 15*time.Minute)
	cfg.lockoutDuration = getenvDurationDefault("LOCKOUT_DURATION", 30*time.Minute)

	cfg.csrfRotateEvery = getenvDurationDefault("CSRF_ROTATE_EVERY", time.Hour)
	cfg.csrfCookieSecure = getenvBoolDefault("CSRF_COOKIE_SECURE", true)
	switch strings.ToLower(getenvDefault("CSRF_SAMESITE", "lax")) {
	case "strict":
		cfg.csrfSameSite = http.SameSiteStrictMode
	case "lax":
		cfg.csrfSameSite = http.SameSiteLaxMode
	default:
		return config{}, errors.New("CSRF_SAMESITE must be strict or lax")
	}

	cfg.prefilterEnabled = getenvBoolDefault("PREFILTER_ENABLED", false)
	cfg.prefilterRPS = getenvFloatDefault("PREFILTER_RPS", 50)
	cfg.prefilterBurst = getenvIntDefault("PREFILTER_BURST", 100)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.eventsSink = getenvDefault("EVENTS_SINK", "none")
	cfg.eventsBucket = getenvDefault("EVENTS_BUCKET", "minute")
	cfg.eventsTTL = getenvDurationDefault("EVENTS_TTL", 24*time.Hour)
	cfg.eventsTrackKeys = getenvBoolDefault("EVENTS_TRACK_KEYS", false)

	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.lockoutThreshold <= 0 {
		return config{}, errors.New("LOCKOUT_THRESHOLD must be > 0")
	}
	if cfg.prefilterEnabled && cfg.prefilterRPS <= 0 {
		return config{}, errors.New("PREFILTER_RPS must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return cfg, nil
}

// readPolicyTable aceita a tabela inline (POLICY_TABLE) ou em arquivo
// (POLICY_FILE). Ausência de ambos usa só os defaults compilados.
func readPolicyTable() ([]byte, error) {
	if inline := os.Getenv("POLICY_TABLE"); inline != "" {
		return []byte(inline), nil
	}
	path := os.Getenv("POLICY_FILE")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("POLICY_FILE: " + err.Error())
	}
	return data, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
