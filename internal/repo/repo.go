package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pharmacymask/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when a balance update loses the
// version check, i.e. another writer got there first.
var ErrVersionConflict = errors.New("balance version conflict")

// Balance cache key kinds.
const (
	OwnerUser     = "user"
	OwnerPharmacy = "pharmacy"
)

// HistoryOption filters the raw transaction history. Nil/empty fields
// mean "no filter"; the date range is inclusive on both ends.
type HistoryOption struct {
	UserIDs     []uint64
	PharmacyIDs []uint64
	MaskIDs     []uint64
	DateFrom    *time.Time
	DateTo      *time.Time
	AmountFrom  *decimal.Decimal
	AmountTo    *decimal.Decimal
}

// ProductOption filters the pharmacy product catalog.
type ProductOption struct {
	IDs            []uint64
	PharmacyIDs    []uint64
	MaskIDs        []uint64
	ProductTypeIDs []uint64
	PriceFrom      *decimal.Decimal
	PriceTo        *decimal.Decimal
}

// RepositoryInterface restricts Repo methods (方便单元测试 mock)
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	UserBalanceForUpdate(ctx context.Context, tx *gorm.DB, userID uint64) (*model.UserBalance, error)
	PharmacyBalanceForUpdate(ctx context.Context, tx *gorm.DB, pharmacyID uint64) (*model.PharmacyBalance, error)
	UpdateUserBalance(ctx context.Context, tx *gorm.DB, id uint64, newBalance decimal.Decimal, oldVersion uint64) error
	UpdatePharmacyBalance(ctx context.Context, tx *gorm.DB, id uint64, newBalance decimal.Decimal, oldVersion uint64) error
	AppendUserBalanceLog(ctx context.Context, tx *gorm.DB, l *model.UserBalanceLog) error
	AppendPharmacyBalanceLog(ctx context.Context, tx *gorm.DB, l *model.PharmacyBalanceLog) error
	UserLogByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.UserBalanceLog, error)
	PharmacyLogByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.PharmacyBalanceLog, error)

	TransactionHistoryByOption(ctx context.Context, opt HistoryOption) ([]model.TransactionHistory, error)
	UsersByOption(ctx context.Context, ids []uint64, name string) ([]model.User, error)
	PharmaciesByOption(ctx context.Context, ids []uint64, name string) ([]model.Pharmacy, error)
	MasksByOption(ctx context.Context, ids []uint64, name string) ([]model.Mask, error)
	PharmacyProductsByOption(ctx context.Context, opt ProductOption) ([]model.PharmacyProduct, error)
	RenameMask(ctx context.Context, id uint64, name string) error

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, owner string, ownerID uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, owner string, ownerID uint64) (decimal.Decimal, error)
}

// Repository implements RepositoryInterface.
type Repository struct {
	db     *gorm.DB
	rdb    *redis.Client
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// UserBalanceForUpdate locks the user's ledger row.
func (r *Repository) UserBalanceForUpdate(ctx context.Context, tx *gorm.DB, userID uint64) (*model.UserBalance, error) {
	var b model.UserBalance
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// PharmacyBalanceForUpdate locks the pharmacy's ledger row.
func (r *Repository) PharmacyBalanceForUpdate(ctx context.Context, tx *gorm.DB, pharmacyID uint64) (*model.PharmacyBalance, error) {
	var b model.PharmacyBalance
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pharmacy_id = ?", pharmacyID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateUserBalance with optimistic lock.
func (r *Repository) UpdateUserBalance(ctx context.Context, tx *gorm.DB, id uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("id = ? AND version = ?", id, oldVersion).
		Updates(map[string]interface{}{
			"cash_balance": newBalance,
			"version":      oldVersion + 1,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdatePharmacyBalance with optimistic lock.
func (r *Repository) UpdatePharmacyBalance(ctx context.Context, tx *gorm.DB, id uint64, newBalance decimal.Decimal, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.PharmacyBalance{}).
		Where("id = ? AND version = ?", id, oldVersion).
		Updates(map[string]interface{}{
			"cash_balance": newBalance,
			"version":      oldVersion + 1,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AppendUserBalanceLog inserts one audit row.
func (r *Repository) AppendUserBalanceLog(ctx context.Context, tx *gorm.DB, l *model.UserBalanceLog) error {
	return tx.WithContext(ctx).Create(l).Error
}

// AppendPharmacyBalanceLog inserts one audit row.
func (r *Repository) AppendPharmacyBalanceLog(ctx context.Context, tx *gorm.DB, l *model.PharmacyBalanceLog) error {
	return tx.WithContext(ctx).Create(l).Error
}

// UserLogByRequestID finds the user leg of a prior transfer.
func (r *Repository) UserLogByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.UserBalanceLog, error) {
	var l model.UserBalanceLog
	if err := tx.WithContext(ctx).Where("request_id = ?", requestID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// PharmacyLogByRequestID finds the pharmacy leg of a prior transfer.
func (r *Repository) PharmacyLogByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.PharmacyBalanceLog, error) {
	var l model.PharmacyBalanceLog
	if err := tx.WithContext(ctx).Where("request_id = ?", requestID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// TransactionHistoryByOption reads raw purchase rows with optional filters.
func (r *Repository) TransactionHistoryByOption(ctx context.Context, opt HistoryOption) ([]model.TransactionHistory, error) {
	q := r.db.WithContext(ctx).Model(&model.TransactionHistory{})
	if len(opt.UserIDs) > 0 {
		q = q.Where("user_id IN ?", opt.UserIDs)
	}
	if len(opt.PharmacyIDs) > 0 {
		q = q.Where("pharmacy_id IN ?", opt.PharmacyIDs)
	}
	if len(opt.MaskIDs) > 0 {
		q = q.Where("mask_id IN ?", opt.MaskIDs)
	}
	if opt.DateFrom != nil {
		q = q.Where("transaction_date >= ?", *opt.DateFrom)
	}
	if opt.DateTo != nil {
		q = q.Where("transaction_date <= ?", *opt.DateTo)
	}
	if opt.AmountFrom != nil {
		q = q.Where("amount >= ?", *opt.AmountFrom)
	}
	if opt.AmountTo != nil {
		q = q.Where("amount <= ?", *opt.AmountTo)
	}
	var rows []model.TransactionHistory
	err := q.Order("transaction_date, id").Find(&rows).Error
	return rows, err
}

// UsersByOption lists users, optionally restricted by ids and/or name.
func (r *Repository) UsersByOption(ctx context.Context, ids []uint64, name string) ([]model.User, error) {
	q := r.db.WithContext(ctx).Model(&model.User{})
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if name != "" {
		q = q.Where("name = ?", name)
	}
	var users []model.User
	err := q.Order("id").Find(&users).Error
	return users, err
}

// PharmaciesByOption lists pharmacies.
func (r *Repository) PharmaciesByOption(ctx context.Context, ids []uint64, name string) ([]model.Pharmacy, error) {
	q := r.db.WithContext(ctx).Model(&model.Pharmacy{})
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if name != "" {
		q = q.Where("name = ?", name)
	}
	var ps []model.Pharmacy
	err := q.Order("id").Find(&ps).Error
	return ps, err
}

// MasksByOption lists masks.
func (r *Repository) MasksByOption(ctx context.Context, ids []uint64, name string) ([]model.Mask, error) {
	q := r.db.WithContext(ctx).Model(&model.Mask{})
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if name != "" {
		q = q.Where("name = ?", name)
	}
	var ms []model.Mask
	err := q.Order("id").Find(&ms).Error
	return ms, err
}

// PharmacyProductsByOption searches the catalog.
func (r *Repository) PharmacyProductsByOption(ctx context.Context, opt ProductOption) ([]model.PharmacyProduct, error) {
	q := r.db.WithContext(ctx).Model(&model.PharmacyProduct{})
	if len(opt.IDs) > 0 {
		q = q.Where("id IN ?", opt.IDs)
	}
	if len(opt.PharmacyIDs) > 0 {
		q = q.Where("pharmacy_id IN ?", opt.PharmacyIDs)
	}
	if len(opt.MaskIDs) > 0 {
		q = q.Where("mask_id IN ?", opt.MaskIDs)
	}
	if len(opt.ProductTypeIDs) > 0 {
		q = q.Where("product_type_id IN ?", opt.ProductTypeIDs)
	}
	if opt.PriceFrom != nil {
		q = q.Where("price >= ?", *opt.PriceFrom)
	}
	if opt.PriceTo != nil {
		q = q.Where("price <= ?", *opt.PriceTo)
	}
	var products []model.PharmacyProduct
	err := q.Order("id").Find(&products).Error
	return products, err
}

// RenameMask updates a mask's display name.
func (r *Repository) RenameMask(ctx context.Context, id uint64, name string) error {
	res := r.db.WithContext(ctx).Model(&model.Mask{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed=false").Order("created_at").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.ID)),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

// CacheBalance writes Redis.
func (r *Repository) CacheBalance(ctx context.Context, owner string, ownerID uint64, bal decimal.Decimal) error {
	return r.rdb.Set(ctx, fmt.Sprintf("balance:%s:%d", owner, ownerID), bal.String(), 5*time.Minute).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, owner string, ownerID uint64) (decimal.Decimal, error) {
	str, err := r.rdb.Get(ctx, fmt.Sprintf("balance:%s:%d", owner, ownerID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}
