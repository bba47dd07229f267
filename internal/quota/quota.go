package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"goldfeed/internal/account"
)

var (
	ErrQuotaExceeded   = errors.New("quota: daily limit exceeded")
	ErrAccountDisabled = errors.New("quota: account disabled")
)

// Decision is the outcome of a permission check. Remaining is the count left
// after a granted reservation; account.UnlimitedDaily for uncapped tiers.
type Decision struct {
	Granted   bool         `json:"granted"`
	Tier      account.Tier `json:"tier"`
	Remaining int          `json:"remaining"`
	Reason    string       `json:"reason,omitempty"`
}

// Manager atomically gates analysis requests against per-user daily quotas.
//
// All quota state transitions for one user run under that user's own mutex,
// so two concurrent requests can never both observe remaining > 0 and
// decrement past zero. Different users never contend on a shared lock.
//
// The day-boundary reset is lazy: it happens inside the same critical
// section as the check, at the moment of use. There is no scheduler.
type Manager struct {
	store  account.Store
	policy account.TierPolicy

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewManager(store account.Store, policy account.TierPolicy) *Manager {
	if policy == nil {
		policy = account.DefaultPolicy()
	}
	return &Manager{
		store:  store,
		policy: policy,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// userLock returns the mutex guarding one user's quota state, creating it on
// first use. Only the map access is globally locked, never the quota work.
func (m *Manager) userLock(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func dateOf(now time.Time) string { return now.UTC().Format(time.DateOnly) }

// resetIfNewDay lazily repairs the daily counter when the date has rolled
// over since the last check. Must be called under the user's lock.
func resetIfNewDay(u *account.User, now time.Time) bool {
	today := dateOf(now)
	if u.LastResetDate == today {
		return false
	}
	if !u.Unlimited() {
		u.DailyRemaining = u.DailyLimit
	}
	u.LastResetDate = today
	return true
}

// CheckAndReserve checks whether the user may run an analysis now and, if so,
// reserves one slot. The reservation is rolled back with Release or finalized
// with Commit. On denial the Decision carries the reason and the error is
// ErrQuotaExceeded or ErrAccountDisabled.
func (m *Manager) CheckAndReserve(ctx context.Context, id uuid.UUID, now time.Time) (Decision, error) {
	lock := m.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if !u.Active {
		return Decision{Tier: u.Tier, Reason: "account disabled"}, ErrAccountDisabled
	}

	changed := resetIfNewDay(u, now)

	if u.Unlimited() {
		if changed {
			if err := m.store.Update(ctx, u); err != nil {
				return Decision{}, err
			}
		}
		return Decision{Granted: true, Tier: u.Tier, Remaining: account.UnlimitedDaily}, nil
	}

	if u.DailyRemaining > 0 {
		u.DailyRemaining--
		if err := m.store.Update(ctx, u); err != nil {
			return Decision{}, err
		}
		return Decision{Granted: true, Tier: u.Tier, Remaining: u.DailyRemaining}, nil
	}

	if changed {
		if err := m.store.Update(ctx, u); err != nil {
			return Decision{}, err
		}
	}
	reason := fmt.Sprintf("daily limit of %d reached for %s tier", u.DailyLimit, u.Tier)
	if next, ok := upgradeFor(u.Tier); ok {
		reason += fmt.Sprintf("; upgrade to %s for more analyses", next)
	}
	return Decision{Tier: u.Tier, Remaining: 0, Reason: reason}, ErrQuotaExceeded
}

// Release refunds a reservation whose analysis never produced output. The
// refund is clamped to the daily limit, so releasing across a day boundary
// can never push the counter past a fresh day's allowance.
func (m *Manager) Release(ctx context.Context, id uuid.UUID) error {
	lock := m.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	resetIfNewDay(u, time.Now())
	if !u.Unlimited() && u.DailyRemaining < u.DailyLimit {
		u.DailyRemaining++
	}
	return m.store.Update(ctx, u)
}

// Commit finalizes a granted reservation after the analysis succeeded.
func (m *Manager) Commit(ctx context.Context, id uuid.UUID) error {
	lock := m.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	u.TotalAnalyses++
	return m.store.Update(ctx, u)
}

// Register creates a new account on the basic tier with a full daily
// allowance.
func (m *Manager) Register(ctx context.Context, email string) (*account.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("quota: email is required")
	}
	now := time.Now().UTC()
	limit := m.policy.Limit(account.TierBasic)
	u := &account.User{
		ID:             uuid.New(),
		Email:          email,
		Tier:           account.TierBasic,
		DailyLimit:     limit,
		DailyRemaining: limit,
		LastResetDate:  dateOf(now),
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetTier changes a user's subscription tier. The new daily limit takes
// effect immediately: remaining is refilled without waiting for the next
// day boundary.
func (m *Manager) SetTier(ctx context.Context, id uuid.UUID, tier account.Tier) (*account.User, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("quota: unknown tier %q", tier)
	}
	lock := m.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Tier = tier
	u.DailyLimit = m.policy.Limit(tier)
	u.DailyRemaining = u.DailyLimit
	u.LastResetDate = dateOf(time.Now())
	if err := m.store.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetActive flips the account flag; deactivation is a flag, not removal.
func (m *Manager) SetActive(ctx context.Context, id uuid.UUID, active bool) (*account.User, error) {
	lock := m.userLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Active = active
	if err := m.store.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Get reads a user without touching quota state.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*account.User, error) {
	return m.store.Get(ctx, id)
}

func upgradeFor(t account.Tier) (account.Tier, bool) {
	switch t {
	case account.TierBasic:
		return account.TierPremium, true
	case account.TierPremium:
		return account.TierVIP, true
	}
	return "", false
}
