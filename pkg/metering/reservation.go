package metering

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// ReservationStatus is the lifecycle state of a Reservation.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation holds a provisional charge against a quota before its actual
// cost is known — e.g. reserving a ceiling on tokens before an LLM call
// returns and reveals the exact count.
type Reservation struct {
	ID        uuid.UUID
	Key       QuotaKey
	Amount    int64 // amount currently held against the quota
	Status    ReservationStatus
	CreatedAt common.Timestamp
	ExpiresAt common.Timestamp
}

// ReserveRequest is the input to Reserve.
type ReserveRequest struct {
	Key    QuotaKey
	Amount int64
	TTL    time.Duration
}

// ReservationStore tracks in-flight reservations. The in-memory reference
// implementation is InMemoryReservationStore; a production deployment may
// back this with a durable store for crash recovery.
type ReservationStore interface {
	Put(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpired(ctx context.Context, asOf common.Timestamp) ([]*Reservation, error)
}

// InMemoryReservationStore is the reference ReservationStore.
type InMemoryReservationStore struct {
	mu           sync.Mutex
	reservations map[uuid.UUID]*Reservation
}

// NewInMemoryReservationStore creates an empty reservation store.
func NewInMemoryReservationStore() *InMemoryReservationStore {
	return &InMemoryReservationStore{reservations: make(map[uuid.UUID]*Reservation)}
}

func (s *InMemoryReservationStore) Put(ctx context.Context, r *Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *InMemoryReservationStore) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryReservationStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservations, id)
	return nil
}

func (s *InMemoryReservationStore) ListExpired(ctx context.Context, asOf common.Timestamp) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Reservation
	for _, r := range s.reservations {
		if r.Status == ReservationHeld && r.ExpiresAt.IsBefore(asOf) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ReservationManager implements the reservation protocol's two phases
// (reserve, then commit/release) plus an expiry sweep, on top of a
// QuotaEnforcer and ReservationStore.
//
// Invariants maintained:
//   - A held reservation counts against its quota exactly once.
//   - Commit replaces the held amount with the actual cost, never double
//     charging.
//   - Release and Expire both fully refund the held amount.
type ReservationManager struct {
	enforcer *QuotaEnforcer
	store    ReservationStore
	now      func() time.Time
}

// NewReservationManager builds a manager over enforcer and store.
func NewReservationManager(enforcer *QuotaEnforcer, store ReservationStore) *ReservationManager {
	return &ReservationManager{enforcer: enforcer, store: store, now: time.Now}
}

// Reserve charges amount against key provisionally, returning a
// Reservation that must later be Committed or Released.
func (m *ReservationManager) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	result, err := m.enforcer.CheckAndCharge(ctx, req.Key, req.Amount)
	if err != nil {
		return nil, common.Wrap(common.CodeQuotaExceeded, err, "reservation denied for %s", req.Key.MetricCode)
	}
	_ = result

	ttl := req.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := common.FromTime(m.now())
	r := &Reservation{
		ID: uuid.Must(uuid.NewV7()), Key: req.Key, Amount: req.Amount,
		Status: ReservationHeld, CreatedAt: now,
		ExpiresAt: common.FromMillis(now.AsMillis() + ttl.Milliseconds()),
	}
	if err := m.store.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Commit replaces a held reservation's amount with its actual cost. If
// actualAmount is less than the reserved amount the difference is
// refunded; if greater, the additional amount is charged (and may itself
// be denied, fail-closed, leaving the reservation held).
func (m *ReservationManager) Commit(ctx context.Context, id uuid.UUID, actualAmount int64) (*Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, common.New(common.CodeNotFound, "reservation %s not found", id)
	}
	if r.Status != ReservationHeld {
		return nil, common.New(common.CodeValidationFailed, "reservation %s is not held (status=%s)", id, r.Status)
	}

	delta := actualAmount - r.Amount
	if delta > 0 {
		if _, err := m.enforcer.CheckAndCharge(ctx, r.Key, delta); err != nil {
			return nil, err
		}
	} else if delta < 0 {
		if err := m.refund(ctx, r.Key, -delta); err != nil {
			return nil, err
		}
	}

	r.Amount = actualAmount
	r.Status = ReservationCommitted
	if err := m.store.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Release fully refunds a held reservation without committing a charge.
func (m *ReservationManager) Release(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, common.New(common.CodeNotFound, "reservation %s not found", id)
	}
	if r.Status != ReservationHeld {
		return nil, common.New(common.CodeValidationFailed, "reservation %s is not held (status=%s)", id, r.Status)
	}
	if err := m.refund(ctx, r.Key, r.Amount); err != nil {
		return nil, err
	}
	r.Status = ReservationReleased
	if err := m.store.Put(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ExpireSweep releases every reservation whose TTL has elapsed, returning
// the ones it expired. Intended to run on a periodic timer.
func (m *ReservationManager) ExpireSweep(ctx context.Context) ([]*Reservation, error) {
	now := common.FromTime(m.now())
	expired, err := m.store.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	var swept []*Reservation
	for _, r := range expired {
		if err := m.refund(ctx, r.Key, r.Amount); err != nil {
			continue
		}
		r.Status = ReservationExpired
		if err := m.store.Put(ctx, r); err != nil {
			continue
		}
		swept = append(swept, r)
	}
	return swept, nil
}

func (m *ReservationManager) refund(ctx context.Context, key QuotaKey, amount int64) error {
	_, err := m.enforcer.CheckAndCharge(ctx, key, -amount)
	return err
}
