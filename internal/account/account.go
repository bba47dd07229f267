package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription level determining the daily analysis quota.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// UnlimitedDaily is the sentinel for tiers with no daily cap. It is never
// used in arithmetic; callers must check for it before touching counters.
const UnlimitedDaily = -1

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierVIP:
		return true
	}
	return false
}

// TierPolicy maps a tier to its daily analysis limit.
type TierPolicy map[Tier]int

// DefaultPolicy returns the stock tier limits.
func DefaultPolicy() TierPolicy {
	return TierPolicy{
		TierBasic:   1,
		TierPremium: 5,
		TierVIP:     UnlimitedDaily,
	}
}

// Limit returns the daily limit for t, defaulting to the basic limit for an
// unknown tier.
func (p TierPolicy) Limit(t Tier) int {
	if l, ok := p[t]; ok {
		return l
	}
	return p[TierBasic]
}

// User is the quota-bearing account. The quota manager owns all mutation;
// everything else reads.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Tier           Tier      `json:"tier"`
	DailyLimit     int       `json:"daily_limit"`
	DailyRemaining int       `json:"daily_remaining"`
	LastResetDate  string    `json:"last_reset_date"` // YYYY-MM-DD, UTC
	TotalAnalyses  int       `json:"total_analyses"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Unlimited reports whether the user's tier has no daily cap.
func (u *User) Unlimited() bool { return u.DailyLimit == UnlimitedDaily }

var (
	ErrNotFound   = errors.New("account: user not found")
	ErrEmailTaken = errors.New("account: email already registered")
)

// Store is the durable account store. Implementations must be safe for
// concurrent use; atomicity of quota updates is the quota manager's job,
// not the store's.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}
