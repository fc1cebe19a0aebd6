package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/richardliu001/ucm-wallet/internal/model"
)

var (
	// ErrInsufficientFunds is returned when the balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUserNotFound is returned when the target user row does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// RepositoryInterface restricts Repo methods so services can be tested against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	Schema() *SchemaInspector

	GetUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.User, error)
	GetUserForUpdate(ctx context.Context, tx *gorm.DB, userID uint64) (*model.User, error)
	AdjustBalance(ctx context.Context, tx *gorm.DB, userID uint64, delta decimal.Decimal) (decimal.Decimal, error)

	CreateLedgerEntry(ctx context.Context, tx *gorm.DB, e *model.LedgerEntry) error
	FindCredit(ctx context.Context, tx *gorm.DB, q CreditQuery) (*model.LedgerEntry, error)
	ListCredits(ctx context.Context, userID uint64) ([]model.LedgerEntry, error)
	ListEntries(ctx context.Context, userID uint64, limit int, since time.Time) ([]model.LedgerEntry, error)
	CreatePaidActionLog(ctx context.Context, tx *gorm.DB, l *model.PaidActionLog) error

	GetAttributionByInvitee(ctx context.Context, tx *gorm.DB, inviteeID uint64) (*model.ReferralAttribution, error)
	CreateAttribution(ctx context.Context, tx *gorm.DB, a *model.ReferralAttribution) error
	FindUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	ReferralCodeTaken(ctx context.Context, code string) (bool, error)
	SetReferralCode(ctx context.Context, userID uint64, code string) error

	CountServices(ctx context.Context, userID uint64) (int64, error)
	CountReviewsReceived(ctx context.Context, userID uint64) (int64, error)
	CountReviewsWritten(ctx context.Context, userID uint64) (int64, error)

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	schema *SchemaInspector
	log    *zap.SugaredLogger
}

// NewRepository constructs repo. rdb and w may be nil; caching and
// publishing are then disabled.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, schema: NewSchemaInspector(db, logger), log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) Schema() *SchemaInspector { return r.schema }

func (r *Repository) GetUser(ctx context.Context, tx *gorm.DB, userID uint64) (*model.User, error) {
	var u model.User
	if err := tx.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserForUpdate locks the user row for the rest of tx.
func (r *Repository) GetUserForUpdate(ctx context.Context, tx *gorm.DB, userID uint64) (*model.User, error) {
	var u model.User
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return &u, nil
}

// AdjustBalance applies delta in a single conditional statement and returns
// the resulting balance. A negative delta only applies while the balance
// covers it.
func (r *Repository) AdjustBalance(ctx context.Context, tx *gorm.DB, userID uint64, delta decimal.Decimal) (decimal.Decimal, error) {
	q := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID)
	if delta.IsNegative() {
		q = q.Where("ucm_balance >= ?", delta.Neg())
	}
	res := q.Update("ucm_balance", gorm.Expr("ucm_balance + ?", delta))
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("adjust balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetUser(ctx, tx, userID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, ErrInsufficientFunds
	}
	u, err := r.GetUser(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.UCMBalance, nil
}

// CreateLedgerEntry inserts record.
func (r *Repository) CreateLedgerEntry(ctx context.Context, tx *gorm.DB, e *model.LedgerEntry) error {
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("create ledger entry: %w", err)
	}
	return nil
}

// RelatedEarning tags credits paid out by the reward table.
const RelatedEarning = "earning"

// CreditQuery selects an earlier credit that makes a reward a duplicate.
// Rows match on the idempotency key, the action code or, for reward rows
// written before action codes existed, the reason text.
type CreditQuery struct {
	UserID         uint64
	IdempotencyKey string
	ActionKey      string
	Reason         string
	Since          time.Time
}

func (r *Repository) FindCredit(ctx context.Context, tx *gorm.DB, q CreditQuery) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	db := tx.WithContext(ctx).
		Where("user_id = ? AND kind = ?", q.UserID, model.EntryCredit).
		Where("(idempotency_key = ? OR action_key = ? OR (action_key IS NULL AND related_entity_type = ? AND reason = ?))",
			q.IdempotencyKey, q.ActionKey, RelatedEarning, q.Reason)
	if !q.Since.IsZero() {
		db = db.Where("created_at >= ?", q.Since.UTC())
	}
	err := db.Order("id").First(&e).Error
	if err == nil {
		return &e, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("find credit: %w", err)
}

func (r *Repository) ListCredits(ctx context.Context, userID uint64) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, model.EntryCredit).
		Order("id").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return entries, nil
}

// ListEntries fetches recent entries, newest first.
func (r *Repository) ListEntries(ctx context.Context, userID uint64, limit int, since time.Time) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) CreatePaidActionLog(ctx context.Context, tx *gorm.DB, l *model.PaidActionLog) error {
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("create paid action log: %w", err)
	}
	return nil
}
