package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrodocs/consulta/internal/domain"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists budget counters across restarts.
// IncrBy must be idempotent-safe to retry.
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// BudgetUsage is a point-in-time view of the tracker counters, logged by the
// ingest CLI after a run.
type BudgetUsage struct {
	DailyUsed        int64
	MonthlyUsed      int64
	DailyRemaining   int64 // -1 when unlimited
	MonthlyRemaining int64 // -1 when unlimited
}

// BudgetTracker enforces daily and monthly embedding token caps. Check is
// in-memory only so the embed hot path never waits on the store; Record
// updates memory first and write-behinds an INCRBY. A limit of 0 means
// unlimited for that window.
type BudgetTracker struct {
	mu           sync.Mutex
	dailyUsed    int64
	monthlyUsed  int64
	dailyLimit   int64
	monthlyLimit int64
	action       BudgetAction
	provider     string
	dayStart     time.Time
	monthStart   time.Time
	store        BudgetStore
	logger       *zap.Logger
}

// NewBudgetTracker creates a budget tracker with the given limits.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	now := time.Now().UTC()
	return &BudgetTracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		provider:     provider,
		dayStart:     truncateToDay(now),
		monthStart:   truncateToMonth(now),
		logger:       logger,
	}
}

// WithStore attaches a persistence store and loads the current counters, so a
// restart mid-window does not forget what was already spent.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	if val, err := store.Get(ctx, b.dailyKey(now)); err == nil {
		b.dailyUsed = val
	} else {
		b.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}
	if val, err := store.Get(ctx, b.monthlyKey(now)); err == nil {
		b.monthlyUsed = val
	} else {
		b.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	b.logger.Info("Embedding budget loaded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("monthly_used", b.monthlyUsed),
	)
	return b
}

func (b *BudgetTracker) dailyKey(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:daily:%s", domain.KeyPrefix, b.provider, t.Format("2006-01-02"))
}

func (b *BudgetTracker) monthlyKey(t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:monthly:%s", domain.KeyPrefix, b.provider, t.Format("2006-01"))
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindows()

	dailyExceeded := b.dailyLimit > 0 && b.dailyUsed >= b.dailyLimit
	monthlyExceeded := b.monthlyLimit > 0 && b.monthlyUsed >= b.monthlyLimit
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("Embedding token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.dailyUsed),
		zap.Int64("daily_limit", b.dailyLimit),
		zap.Int64("monthly_used", b.monthlyUsed),
		zap.Int64("monthly_limit", b.monthlyLimit),
	)
	return nil
}

// Record registers consumed tokens after a request. The store write uses a
// short background context so a slow or down redis never blocks embedding.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.rollWindows()
	b.dailyUsed += tokens
	b.monthlyUsed += tokens
	store := b.store
	now := time.Now().UTC()
	dailyKey := b.dailyKey(now)
	monthlyKey := b.monthlyKey(now)
	b.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist daily budget", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, tokens); err != nil {
		b.logger.Warn("Failed to persist monthly budget", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return remaining(b.dailyLimit, b.dailyUsed)
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return remaining(b.monthlyLimit, b.monthlyUsed)
}

// Usage reports both windows in one consistent snapshot.
func (b *BudgetTracker) Usage() BudgetUsage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollWindows()
	return BudgetUsage{
		DailyUsed:        b.dailyUsed,
		MonthlyUsed:      b.monthlyUsed,
		DailyRemaining:   remaining(b.dailyLimit, b.dailyUsed),
		MonthlyRemaining: remaining(b.monthlyLimit, b.monthlyUsed),
	}
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	if left := limit - used; left > 0 {
		return left
	}
	return 0
}

// rollWindows zeroes counters when the day or month rolls over.
// Callers must hold b.mu.
func (b *BudgetTracker) rollWindows() {
	now := time.Now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(b.dayStart) {
		b.dailyUsed = 0
		b.dayStart = today
	}
	if thisMonth.After(b.monthStart) {
		b.monthlyUsed = 0
		b.monthStart = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
