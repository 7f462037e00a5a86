package application

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

func newTestGate(clock *time.Time) (*Gate, *Blocklist, *CSRF) {
	bl := &Blocklist{Store: infra.NewMemoryBlockStore(), Now: func() time.Time { return *clock }}
	csrf := &CSRF{
		Tokens:      infra.NewMemoryTokenStore(),
		RotateEvery: time.Hour,
		Now:         func() time.Time { return *clock },
	}
	gate := &Gate{
		Blocklist: bl,
		CSRF:      csrf,
		Registry: NewRegistry([]domain.Policy{{
			Scope:       domain.ScopeEndpoint,
			Endpoint:    "/posts",
			Window:      time.Minute,
			MaxRequests: 5,
			FailMode:    domain.FailOpen,
		}}),
		Limiter: Limiter{Store: infra.NewMemoryCounter()},
		Tracker: &Tracker{
			Failures:  infra.NewMemoryFailureStore(),
			Blocklist: bl,
			Threshold: 3,
			Window:    time.Minute,
			Lockout:   time.Minute,
		},
	}
	return gate, bl, csrf
}

func TestGate_AllowsWithinQuota(t *testing.T) {
	clock := time.Now()
	gate, _, _ := newTestGate(&clock)

	res := gate.Admit(context.Background(), domain.Request{
		Identity: "1.2.3.4",
		Endpoint: "/posts",
		Method:   "GET",
		Path:     "/posts",
	})
	if !res.Allowed() {
		t.Fatalf("expected allow, got %+v", res)
	}
	if res.Remaining != 4 {
		t.Fatalf("expected remaining=4, got %d", res.Remaining)
	}
}

func TestGate_DeniesOverQuotaWithRetryAfter(t *testing.T) {
	clock := time.Now()
	gate, _, _ := newTestGate(&clock)
	ctx := context.Background()
	req := domain.Request{Identity: "1.2.3.4", Endpoint: "/posts", Method: "GET", Path: "/posts"}

	for i := 0; i < 5; i++ {
		if res := gate.Admit(ctx, req); !res.Allowed() {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res := gate.Admit(ctx, req)
	if res.Allowed() {
		t.Fatalf("6th request must be denied")
	}
	if res.Status != 429 || res.Reason != domain.ReasonRateLimitExceeded {
		t.Fatalf("expected 429 RateLimitExceeded, got %d %s", res.Status, res.Reason)
	}
	if res.RetryAfter < time.Second || res.RetryAfter > time.Minute {
		t.Fatalf("expected 1s <= retry-after <= window, got %s", res.RetryAfter)
	}
}

func TestGate_BlockedIdentityDeniedRegardlessOfQuota(t *testing.T) {
	clock := time.Now()
	gate, bl, _ := newTestGate(&clock)
	ctx := context.Background()

	_ = bl.Block(ctx, "1.2.3.4", "abuse", time.Hour)

	res := gate.Admit(ctx, domain.Request{Identity: "1.2.3.4", Endpoint: "/posts", Method: "GET", Path: "/posts"})
	if res.Allowed() {
		t.Fatalf("blocked identity must be denied even with quota available")
	}
	if res.Status != 403 || res.Reason != domain.ReasonIdentityBlocked {
		t.Fatalf("expected 403 IdentityBlocked, got %d %s", res.Status, res.Reason)
	}
}

func TestGate_UnsafeMethodRequiresCSRF(t *testing.T) {
	clock := time.Now()
	gate, _, _ := newTestGate(&clock)

	res := gate.Admit(context.Background(), domain.Request{
		Identity: "1.2.3.4",
		Endpoint: "/posts",
		Method:   "POST",
		Path:     "/posts",
	})
	if res.Allowed() {
		t.Fatalf("unsafe method without token must be denied")
	}
	if res.Status != 403 || res.Reason != domain.ReasonCSRFTokenMissing {
		t.Fatalf("expected 403 CSRFTokenMissing, got %d %s", res.Status, res.Reason)
	}
}

func TestGate_CSRFMismatchDeniedAndCountsFailure(t *testing.T) {
	clock := time.Now()
	gate, bl, _ := newTestGate(&clock)
	ctx := context.Background()
	req := domain.Request{
		Identity:   "1.2.3.4",
		Endpoint:   "/posts",
		Method:     "POST",
		Path:       "/posts",
		CSRFCookie: "abc",
		CSRFHeader: "xyz",
	}

	for i := 0; i < 3; i++ {
		res := gate.Admit(ctx, req)
		if res.Reason != domain.ReasonCSRFTokenMismatch {
			t.Fatalf("expected CSRFTokenMismatch, got %s", res.Reason)
		}
	}
	// três falhas CSRF = threshold → escalou para a blocklist
	if !bl.IsBlocked(ctx, "1.2.3.4") {
		t.Fatalf("repeated csrf failures must escalate to the blocklist")
	}
}

func TestGate_ValidCSRFPasses(t *testing.T) {
	clock := time.Now()
	gate, _, csrf := newTestGate(&clock)
	ctx := context.Background()

	token, _ := csrf.Issue(ctx, "sess-1")
	res := gate.Admit(ctx, domain.Request{
		Identity:   "1.2.3.4",
		Endpoint:   "/posts",
		Method:     "POST",
		Path:       "/posts",
		CSRFCookie: token.Value,
		CSRFHeader: token.Value,
		CSRFOwner:  "sess-1",
	})
	if !res.Allowed() {
		t.Fatalf("valid double-submit must pass, got %+v", res)
	}
}

func TestGate_RevokedTokenFailsValidation(t *testing.T) {
	clock := time.Now()
	gate, _, csrf := newTestGate(&clock)
	ctx := context.Background()

	token, _ := csrf.Issue(ctx, "sess-1")
	_ = csrf.Revoke(ctx, "sess-1")

	res := gate.Admit(ctx, domain.Request{
		Identity:   "1.2.3.4",
		Endpoint:   "/posts",
		Method:     "POST",
		Path:       "/posts",
		CSRFCookie: token.Value,
		CSRFHeader: token.Value,
		CSRFOwner:  "sess-1",
	})
	if res.Allowed() {
		t.Fatalf("revoked token must fail validation")
	}
	if res.Reason != domain.ReasonCSRFTokenMismatch {
		t.Fatalf("expected CSRFTokenMismatch, got %s", res.Reason)
	}
}

func TestGate_SafeMethodSkipsCSRF(t *testing.T) {
	clock := time.Now()
	gate, _, _ := newTestGate(&clock)

	res := gate.Admit(context.Background(), domain.Request{
		Identity: "1.2.3.4",
		Endpoint: "/posts",
		Method:   "GET",
		Path:     "/posts",
	})
	if !res.Allowed() {
		t.Fatalf("safe method must not require csrf, got %+v", res)
	}
}

func TestGate_FailClosedStoreOutageIsGenericDeny(t *testing.T) {
	clock := time.Now()
	gate, _, _ := newTestGate(&clock)
	gate.Registry = NewRegistry([]domain.Policy{{
		Scope:       domain.ScopeEndpoint,
		Endpoint:    "/posts",
		Window:      time.Minute,
		MaxRequests: 5,
		FailMode:    domain.FailClosed,
	}})
	gate.Limiter = Limiter{Store: fakeCounter{err: context.DeadlineExceeded}}

	res := gate.Admit(context.Background(), domain.Request{Identity: "1.2.3.4", Endpoint: "/posts", Method: "GET", Path: "/posts"})
	if res.Allowed() {
		t.Fatalf("fail-closed outage must deny")
	}
	if res.Status != 503 || res.Reason != domain.ReasonStoreUnavailable {
		t.Fatalf("expected 503 StoreUnavailable, got %d %s", res.Status, res.Reason)
	}
}

// ordem das checagens: blocklist antes de CSRF e de contador (negação mais
// barata primeiro, e identidade bloqueada não deve gastar cota nem log CSRF).
type orderBlockStore struct {
	calls *[]string
}

func (s orderBlockStore) Get(context.Context, string) (*domain.BlockEntry, error) {
	*s.calls = append(*s.calls, "blocklist")
	return &domain.BlockEntry{Identity: "1.2.3.4", Reason: "abuse", InsertedAt: time.Now()}, nil
}
func (s orderBlockStore) Put(context.Context, domain.BlockEntry) error { return nil }
func (s orderBlockStore) Delete(context.Context, string) error         { return nil }

type orderCounter struct {
	calls *[]string
}

func (c orderCounter) Take(context.Context, domain.Key, time.Duration, int) (domain.CounterResult, error) {
	*c.calls = append(*c.calls, "counter")
	return domain.CounterResult{Allowed: true}, nil
}
func (c orderCounter) Count(context.Context, domain.Key, time.Duration) (int, error) { return 0, nil }

func TestGate_BlocklistShortCircuitsEverything(t *testing.T) {
	var calls []string
	gate := &Gate{
		Blocklist: &Blocklist{Store: orderBlockStore{calls: &calls}},
		Limiter:   Limiter{Store: orderCounter{calls: &calls}},
	}

	res := gate.Admit(context.Background(), domain.Request{Identity: "1.2.3.4", Endpoint: "/posts", Method: "POST", Path: "/posts"})
	if res.Allowed() {
		t.Fatalf("expected deny")
	}
	if len(calls) != 1 || calls[0] != "blocklist" {
		t.Fatalf("blocklist must short-circuit, calls=%v", calls)
	}
}

func TestGate_ReportSuccessClearsFailures(t *testing.T) {
	clock := time.Now()
	gate, bl, _ := newTestGate(&clock)
	ctx := context.Background()

	gate.Report(ctx, domain.Outcome{Identity: "user-1", EventType: "login", Success: false})
	gate.Report(ctx, domain.Outcome{Identity: "user-1", EventType: "login", Success: false})
	gate.Report(ctx, domain.Outcome{Identity: "user-1", EventType: "login", Success: true})
	gate.Report(ctx, domain.Outcome{Identity: "user-1", EventType: "login", Success: false})
	gate.Report(ctx, domain.Outcome{Identity: "user-1", EventType: "login", Success: false})

	if bl.IsBlocked(ctx, "user-1") {
		t.Fatalf("success between failures must reset the lockout counter")
	}

	gate.Report(ctx, domain.Outcome{Identity: "user-1", EventType: "login", Success: false})
	if !bl.IsBlocked(ctx, "user-1") {
		t.Fatalf("reaching the threshold must lock the identity out")
	}
}

func TestGate_ReportSecurityEventForcesRotation(t *testing.T) {
	clock := time.Now()
	gate, _, csrf := newTestGate(&clock)
	ctx := context.Background()

	issued, _ := csrf.Issue(ctx, "sess-1")
	gate.Report(ctx, domain.Outcome{
		Identity:      "user-1",
		EventType:     "password_change",
		Success:       true,
		SecurityEvent: true,
		Owner:         "sess-1",
	})

	rotated, err := csrf.MaybeRotate(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rotated == nil || rotated.Value == issued.Value {
		t.Fatalf("security event outcome must force csrf rotation")
	}
}
