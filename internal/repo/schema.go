package repo

import (
	"context"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/richardliu001/ucm-wallet/internal/model"
)

// ledgerColumns must all exist before ledger rows are written.
var ledgerColumns = []string{"reason", "action_key", "idempotency_key", "metadata", "related_entity_type"}

// SchemaInspector answers whether optional tables and columns exist. Each answer
// is looked up in the catalog once and kept for the life of the process; a
// catalog failure counts as "absent". Lookups ignore the caller's
// cancellation, and an answer given under a cancelled or expired context
// is not kept.
type SchemaInspector struct {
	db   *gorm.DB
	memo *cache.Cache
	log  *zap.SugaredLogger
}

func NewSchemaInspector(db *gorm.DB, log *zap.SugaredLogger) *SchemaInspector {
	return &SchemaInspector{db: db, memo: cache.New(cache.NoExpiration, 0), log: log}
}

func (p *SchemaInspector) TableExists(ctx context.Context, table string) bool {
	return p.lookup(ctx, "table:"+table, func(qctx context.Context) bool {
		return p.db.WithContext(qctx).Migrator().HasTable(table)
	})
}

func (p *SchemaInspector) ColumnExists(ctx context.Context, table, column string) bool {
	return p.lookup(ctx, "column:"+table+"."+column, func(qctx context.Context) bool {
		return p.TableExists(qctx, table) && p.db.WithContext(qctx).Migrator().HasColumn(table, column)
	})
}

// Warm resolves every capability up front so request traffic only reads the
// memo.
func (p *SchemaInspector) Warm(ctx context.Context) {
	p.LedgerAvailable(ctx)
	p.OutboxAvailable(ctx)
	p.PaidActionLogAvailable(ctx)
}

// LedgerAvailable reports whether ledger entries can be written.
func (p *SchemaInspector) LedgerAvailable(ctx context.Context) bool {
	return p.lookup(ctx, "capability:ledger", func(qctx context.Context) bool {
		table := model.LedgerEntry{}.TableName()
		for _, col := range ledgerColumns {
			if !p.ColumnExists(qctx, table, col) {
				p.log.Warnw("ledger capability missing, balance changes will not be journaled",
					"table", table, "column", col)
				return false
			}
		}
		return true
	})
}

// OutboxAvailable reports whether outbox events can be written.
func (p *SchemaInspector) OutboxAvailable(ctx context.Context) bool {
	return p.TableExists(ctx, model.OutboxEvent{}.TableName())
}

// PaidActionLogAvailable reports whether paid-action audit rows can be written.
func (p *SchemaInspector) PaidActionLogAvailable(ctx context.Context) bool {
	return p.TableExists(ctx, model.PaidActionLog{}.TableName())
}

func (p *SchemaInspector) lookup(ctx context.Context, key string, query func(context.Context) bool) bool {
	if v, ok := p.memo.Get(key); ok {
		return v.(bool)
	}
	found := query(context.WithoutCancel(ctx))
	if ctx.Err() != nil {
		return found
	}
	p.memo.Set(key, found, cache.NoExpiration)
	return found
}
