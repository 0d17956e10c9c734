package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/store"
)

// MockClaimStore implements store.ClaimStore and store.TaskStore in memory.
type MockClaimStore struct {
	FindOverdueFn         func(ctx context.Context, now time.Time) ([]domain.OverdueClaim, error)
	ExpireClaimsFn        func(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error)
	PendingSummaryFn      func(ctx context.Context, taskID uuid.UUID) (*domain.ClaimSummary, error)
	CreateFn              func(ctx context.Context, claim *domain.Claim) error
	GetByIDFn             func(ctx context.Context, id uuid.UUID) (*domain.Claim, error)
	AcceptFn              func(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Claim, error)
	CancelPendingExceptFn func(ctx context.Context, taskID, keep uuid.UUID, now time.Time) (int64, error)

	// AfterFindOverdue runs after FindOverdue returns its snapshot and
	// before the caller sees it. Tests use it to interleave a concurrent
	// transition.
	AfterFindOverdue func(found []domain.OverdueClaim)

	mu      sync.Mutex
	claims  map[uuid.UUID]*domain.Claim
	tasks   map[uuid.UUID]struct{}
	ratings map[uuid.UUID]float64

	// Calls counts invocations per method name.
	Calls map[string]int
}

var (
	_ store.ClaimStore = (*MockClaimStore)(nil)
	_ store.TaskStore  = (*MockClaimStore)(nil)
)

// NewMockClaimStore creates an empty store.
func NewMockClaimStore() *MockClaimStore {
	return &MockClaimStore{
		claims:  make(map[uuid.UUID]*domain.Claim),
		tasks:   make(map[uuid.UUID]struct{}),
		ratings: make(map[uuid.UUID]float64),
		Calls:   make(map[string]int),
	}
}

// AddTask registers a task id.
func (m *MockClaimStore) AddTask(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id] = struct{}{}
}

// SetRating sets a helper's rating.
func (m *MockClaimStore) SetRating(helperID uuid.UUID, rating float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[helperID] = rating
}

// Put stores a copy of claim as-is, registering its task.
func (m *MockClaimStore) Put(claim *domain.Claim) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *claim
	m.claims[c.ID] = &c
	m.tasks[c.TaskID] = struct{}{}
}

// Get returns a copy of the stored claim, or nil.
func (m *MockClaimStore) Get(id uuid.UUID) *domain.Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// CallCount returns how often method was called.
func (m *MockClaimStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func (m *MockClaimStore) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[method]++
}

// FindOverdue implements store.ClaimStore.
func (m *MockClaimStore) FindOverdue(ctx context.Context, now time.Time) ([]domain.OverdueClaim, error) {
	m.record("FindOverdue")
	if m.FindOverdueFn != nil {
		return m.FindOverdueFn(ctx, now)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	var overdue []*domain.Claim
	for _, c := range m.claims {
		if c.Status == domain.ClaimStatusPending && c.IsOverdue(now) {
			overdue = append(overdue, c)
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].ExpiresAt.Equal(overdue[j].ExpiresAt) {
			return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt)
		}
		return overdue[i].ID.String() < overdue[j].ID.String()
	})
	found := make([]domain.OverdueClaim, 0, len(overdue))
	for _, c := range overdue {
		found = append(found, domain.OverdueClaim{ID: c.ID, TaskID: c.TaskID})
	}
	m.mu.Unlock()

	if m.AfterFindOverdue != nil {
		m.AfterFindOverdue(found)
	}
	return found, nil
}

// ExpireClaims implements store.ClaimStore with the same guard as the SQL
// update: only claims still PENDING and overdue at now change.
func (m *MockClaimStore) ExpireClaims(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	m.record("ExpireClaims")
	if m.ExpireClaimsFn != nil {
		return m.ExpireClaimsFn(ctx, ids, now)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		c, ok := m.claims[id]
		if !ok || c.Status != domain.ClaimStatusPending || !c.IsOverdue(now) {
			continue
		}
		c.Status = domain.ClaimStatusExpired
		c.UpdatedAt = now
		n++
	}
	return n, nil
}

// PendingSummary implements store.ClaimStore.
func (m *MockClaimStore) PendingSummary(ctx context.Context, taskID uuid.UUID) (*domain.ClaimSummary, error) {
	m.record("PendingSummary")
	if m.PendingSummaryFn != nil {
		return m.PendingSummaryFn(ctx, taskID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Claim
	count := 0
	for _, c := range m.claims {
		if c.TaskID != taskID || c.Status != domain.ClaimStatusPending {
			continue
		}
		count++
		if best == nil || betterOffer(c, best) {
			best = c
		}
	}
	if best == nil {
		return domain.EmptyClaimSummary(), nil
	}

	offer := &domain.BestOffer{Fee: best.Fee}
	if r, ok := m.ratings[best.HelperID]; ok {
		offer.HelperRating = &r
	}
	return &domain.ClaimSummary{CountPending: count, BestOffer: offer}, nil
}

// betterOffer orders by fee, then creation time, then id.
func betterOffer(a, b *domain.Claim) bool {
	if a.Fee != b.Fee {
		return a.Fee < b.Fee
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Create implements store.ClaimStore.
func (m *MockClaimStore) Create(ctx context.Context, claim *domain.Claim) error {
	m.record("Create")
	if m.CreateFn != nil {
		return m.CreateFn(ctx, claim)
	}
	if err := claim.Validate(); err != nil {
		return store.ErrInvalidEntity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[claim.TaskID]; !ok {
		return store.ErrTaskNotFound
	}
	if _, ok := m.claims[claim.ID]; ok {
		return store.ErrDuplicate
	}
	for _, c := range m.claims {
		if c.TaskID == claim.TaskID && c.HelperID == claim.HelperID && c.Status == domain.ClaimStatusPending {
			return store.ErrPendingClaimExists
		}
	}
	c := *claim
	m.claims[c.ID] = &c
	return nil
}

// GetByID implements store.ClaimStore.
func (m *MockClaimStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	m.record("GetByID")
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	if c := m.Get(id); c != nil {
		return c, nil
	}
	return nil, store.ErrClaimNotFound
}

// Accept implements store.ClaimStore.
func (m *MockClaimStore) Accept(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Claim, error) {
	m.record("Accept")
	if m.AcceptFn != nil {
		return m.AcceptFn(ctx, id, now)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[id]
	if !ok {
		return nil, store.ErrClaimNotFound
	}
	if c.Status != domain.ClaimStatusPending || c.IsOverdue(now) {
		return nil, store.ErrClaimNotPending
	}
	c.Status = domain.ClaimStatusAccepted
	c.UpdatedAt = now
	cp := *c
	return &cp, nil
}

// CancelPendingExcept implements store.ClaimStore.
func (m *MockClaimStore) CancelPendingExcept(ctx context.Context, taskID, keep uuid.UUID, now time.Time) (int64, error) {
	m.record("CancelPendingExcept")
	if m.CancelPendingExceptFn != nil {
		return m.CancelPendingExceptFn(ctx, taskID, keep, now)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.claims {
		if c.TaskID == taskID && c.ID != keep && c.Status == domain.ClaimStatusPending {
			c.Status = domain.ClaimStatusCancelled
			c.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// RunInTx implements store.ClaimStore. State is restored if fn fails.
func (m *MockClaimStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.ClaimStore) error) error {
	m.record("RunInTx")

	m.mu.Lock()
	snapshot := make(map[uuid.UUID]domain.Claim, len(m.claims))
	for id, c := range m.claims {
		snapshot[id] = *c
	}
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.claims = make(map[uuid.UUID]*domain.Claim, len(snapshot))
		for id, c := range snapshot {
			m.claims[id] = &c
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Exists implements store.TaskStore.
func (m *MockClaimStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok, nil
}
