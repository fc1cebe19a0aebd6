package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/metrics"
	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/repo"
)

// RelatedEntity points a ledger row at the object that caused it.
type RelatedEntity struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// capabilities is the optional schema available to one operation. It is
// resolved before the transaction opens.
type capabilities struct {
	ledger  bool
	outbox  bool
	paidLog bool
}

func loadCapabilities(ctx context.Context, r repo.RepositoryInterface) capabilities {
	p := r.Schema()
	return capabilities{
		ledger:  p.LedgerAvailable(ctx),
		outbox:  p.OutboxAvailable(ctx),
		paidLog: p.PaidActionLogAvailable(ctx),
	}
}

// movement is one balance change together with what gets journaled for it.
type movement struct {
	userID    uint64
	kind      model.EntryKind
	amount    decimal.Decimal
	reason    string
	actionKey string
	idemKey   string
	related   *RelatedEntity
	metadata  map[string]interface{}
	at        time.Time
}

// apply changes the balance and, when the schema allows, appends the ledger
// row and the outbox event, all inside tx. It returns the new balance.
func apply(ctx context.Context, tx *gorm.DB, r repo.RepositoryInterface, caps capabilities, m movement) (decimal.Decimal, error) {
	delta := m.amount
	if m.kind == model.EntryDebit {
		delta = delta.Neg()
	}
	bal, err := r.AdjustBalance(ctx, tx, m.userID, delta)
	if err != nil {
		return decimal.Zero, err
	}

	if caps.ledger {
		e := &model.LedgerEntry{
			UserID:         m.userID,
			Kind:           m.kind,
			Amount:         m.amount,
			BalanceAfter:   bal,
			Reason:         m.reason,
			ActionKey:      optional(m.actionKey),
			IdempotencyKey: optional(m.idemKey),
			CreatedAt:      m.at.UTC(),
		}
		if m.related != nil {
			e.RelatedEntityType = &m.related.Type
			e.RelatedEntityID = &m.related.ID
		}
		if m.metadata != nil {
			raw, err := json.Marshal(m.metadata)
			if err != nil {
				return decimal.Zero, fmt.Errorf("encode metadata: %w", err)
			}
			e.Metadata = datatypes.JSON(raw)
		}
		if err := r.CreateLedgerEntry(ctx, tx, e); err != nil {
			return decimal.Zero, err
		}
	}

	if caps.outbox {
		payload, _ := json.Marshal(map[string]interface{}{
			"user_id":    m.userID,
			"kind":       m.kind,
			"amount":     m.amount,
			"balance":    bal,
			"reason":     m.reason,
			"action":     m.actionKey,
			"related":    m.related,
			"created_at": m.at.UTC(),
		})
		evt := &model.OutboxEvent{
			EventID:     uuid.NewString(),
			Aggregate:   "User",
			AggregateID: m.userID,
			EventType:   "ucm." + string(m.kind),
			Payload:     string(payload),
		}
		if err := r.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return decimal.Zero, fmt.Errorf("create outbox event: %w", err)
		}
	}
	return bal, nil
}

// settled runs after commit: metrics and the balance cache.
func settled(ctx context.Context, r repo.RepositoryInterface, log *zap.SugaredLogger, m movement, bal decimal.Decimal) {
	metrics.Moved(string(m.kind), m.amount)
	if err := r.CacheBalance(ctx, m.userID, bal); err != nil {
		log.Warnw("cache balance", "user_id", m.userID, "error", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
