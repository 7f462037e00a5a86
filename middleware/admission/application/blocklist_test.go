package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
)

type fakeBlockStore struct {
	entries map[string]domain.BlockEntry
	err     error
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{entries: make(map[string]domain.BlockEntry)}
}

func (s *fakeBlockStore) Get(_ context.Context, identity string) (*domain.BlockEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	e, ok := s.entries[identity]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *fakeBlockStore) Put(_ context.Context, e domain.BlockEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries[e.Identity] = e
	return nil
}

func (s *fakeBlockStore) Delete(_ context.Context, identity string) error {
	delete(s.entries, identity)
	return nil
}

func TestBlocklist_BlockThenIsBlocked(t *testing.T) {
	bl := &Blocklist{Store: newFakeBlockStore()}

	if err := bl.Block(context.Background(), "1.2.3.4", "login", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bl.IsBlocked(context.Background(), "1.2.3.4") {
		t.Fatalf("expected identity to be blocked")
	}
	if bl.IsBlocked(context.Background(), "5.6.7.8") {
		t.Fatalf("unrelated identity must not be blocked")
	}
}

func TestBlocklist_ExpiredEntryDoesNotBlock(t *testing.T) {
	now := time.Now()
	clock := now
	bl := &Blocklist{Store: newFakeBlockStore(), Now: func() time.Time { return clock }}

	if err := bl.Block(context.Background(), "1.2.3.4", "login", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = now.Add(2 * time.Minute)
	if bl.IsBlocked(context.Background(), "1.2.3.4") {
		t.Fatalf("expired entry must not block")
	}
	entry, err := bl.Inspect(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expired entry must not be reported by Inspect")
	}
}

func TestBlocklist_AutomaticPathRejectsPermanentTTL(t *testing.T) {
	bl := &Blocklist{Store: newFakeBlockStore()}

	if err := bl.Block(context.Background(), "1.2.3.4", "login", 0); !errors.Is(err, ErrTTLRequired) {
		t.Fatalf("expected ErrTTLRequired, got %v", err)
	}
}

func TestBlocklist_PermanentEntryNeverExpires(t *testing.T) {
	clock := time.Now()
	bl := &Blocklist{Store: newFakeBlockStore(), Now: func() time.Time { return clock }}

	if err := bl.BlockPermanent(context.Background(), "1.2.3.4", "abuse"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clock = clock.Add(1000 * time.Hour)
	if !bl.IsBlocked(context.Background(), "1.2.3.4") {
		t.Fatalf("permanent entry must keep blocking")
	}
}

func TestBlocklist_Unblock(t *testing.T) {
	bl := &Blocklist{Store: newFakeBlockStore()}

	_ = bl.Block(context.Background(), "1.2.3.4", "login", time.Minute)
	if err := bl.Unblock(context.Background(), "1.2.3.4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bl.IsBlocked(context.Background(), "1.2.3.4") {
		t.Fatalf("expected identity unblocked")
	}
}

func TestBlocklist_FailsOpenOnStoreError(t *testing.T) {
	store := newFakeBlockStore()
	store.err = errors.New("redis down")
	bl := &Blocklist{Store: store}

	if bl.IsBlocked(context.Background(), "1.2.3.4") {
		t.Fatalf("store error must degrade to not-blocked (fail-open)")
	}
}
