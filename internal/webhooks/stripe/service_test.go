package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestService_HandleCompletedSessionReconciles(t *testing.T) {
	reconciler := &stubReconciler{result: &reconcile.Result{Order: &models.Order{ID: uuid.New()}}}
	service, err := NewService(reconciler, nil)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_test_1")
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if reconciler.sessionID != "cs_test_1" {
		t.Fatalf("expected reconcile of cs_test_1, got %q", reconciler.sessionID)
	}
}

func TestService_HandleAsyncPaymentSucceededReconciles(t *testing.T) {
	reconciler := &stubReconciler{result: &reconcile.Result{Order: &models.Order{ID: uuid.New()}, AlreadyReconciled: true}}
	service, err := NewService(reconciler, nil)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, "cs_test_2")
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if reconciler.calls != 1 {
		t.Fatalf("expected one reconcile call, got %d", reconciler.calls)
	}
}

func TestService_IgnoresNonSettlementEvents(t *testing.T) {
	reconciler := &stubReconciler{}
	service, err := NewService(reconciler, nil)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	for _, eventType := range []stripe.EventType{
		stripe.EventTypeCheckoutSessionExpired,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCustomerCreated,
	} {
		event := sessionEvent(t, eventType, "cs_test_ignored")
		if err := service.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("event %s should be acknowledged, got %v", eventType, err)
		}
	}
	if reconciler.calls != 0 {
		t.Fatalf("non-settlement events must not reconcile, got %d calls", reconciler.calls)
	}
}

func TestService_RejectsEmptySessionID(t *testing.T) {
	service, err := NewService(&stubReconciler{}, nil)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "")
	err = service.HandleEvent(context.Background(), event)
	if err == nil {
		t.Fatalf("expected error for missing session id")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_PropagatesReconcileFailure(t *testing.T) {
	reconciler := &stubReconciler{err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")}
	service, err := NewService(reconciler, nil)
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_test_fail")
	err = service.HandleEvent(context.Background(), event)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error to propagate, got %v", err)
	}
}

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	guard, err := NewIdempotencyGuard(store, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}

	already, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || already {
		t.Fatalf("first mark should claim the event, already=%v err=%v", already, err)
	}
	already, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || !already {
		t.Fatalf("second mark should report duplicate, already=%v err=%v", already, err)
	}

	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	already, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || already {
		t.Fatalf("released event should be claimable again, already=%v err=%v", already, err)
	}
}

func sessionEvent(t *testing.T, eventType stripe.EventType, sessionID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(&stripe.CheckoutSession{ID: sessionID})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

type stubReconciler struct {
	result    *reconcile.Result
	err       error
	calls     int
	sessionID string
}

func (s *stubReconciler) Reconcile(ctx context.Context, sessionID string) (*reconcile.Result, error) {
	s.calls++
	s.sessionID = sessionID
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("sf:idempotency:%s:%s", scope, id)
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
