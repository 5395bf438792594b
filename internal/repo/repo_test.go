package repo

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/pharmacymask/ledger-service/internal/logger"
	"github.com/pharmacymask/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&model.UserBalance{}, &model.PharmacyBalance{},
		&model.UserBalanceLog{}, &model.PharmacyBalanceLog{},
		&model.TransactionHistory{},
		&model.User{}, &model.Pharmacy{}, &model.Mask{}, &model.PharmacyProduct{},
		&model.OutboxEvent{},
	))
	rdb, _ := redismock.NewClientMock()
	log, _ := logger.NewLogger()
	return NewRepository(db, rdb, &kafka.Writer{}, log), db
}

func TestUpdateUserBalance_StaleVersionRejected(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()
	assert.NoError(t, db.Create(&model.UserBalance{ID: 1, UserID: 1, CashBalance: decimal.NewFromInt(100)}).Error)

	assert.NoError(t, r.UpdateUserBalance(ctx, db, 1, decimal.NewFromInt(90), 0))

	// a writer still holding version 0 must lose
	err := r.UpdateUserBalance(ctx, db, 1, decimal.NewFromInt(80), 0)
	assert.ErrorIs(t, err, ErrVersionConflict)

	var b model.UserBalance
	assert.NoError(t, db.First(&b, 1).Error)
	assert.Equal(t, "90", b.CashBalance.StringFixed(0))
	assert.EqualValues(t, 1, b.Version)
}

func TestBalanceForUpdate_MissingRowIsNotFound(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	_, err := r.UserBalanceForUpdate(ctx, db, 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = r.PharmacyBalanceForUpdate(ctx, db, 42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTransactionHistoryByOption_DateRangeInclusive(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	for day, amount := range map[int]int64{1: 10, 15: 20, 31: 30} {
		assert.NoError(t, db.Create(&model.TransactionHistory{
			UserID: 7, PharmacyID: 1, MaskID: 11,
			TransactionDate: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
			Amount:          decimal.NewFromInt(amount),
		}).Error)
	}
	assert.NoError(t, db.Create(&model.TransactionHistory{
		UserID: 7, PharmacyID: 1, MaskID: 11,
		TransactionDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.NewFromInt(99),
	}).Error)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	rows, err := r.TransactionHistoryByOption(ctx, HistoryOption{UserIDs: []uint64{7}, DateFrom: &from, DateTo: &to})
	assert.NoError(t, err)
	assert.Len(t, rows, 3) // both boundary days included
}

func TestTransactionHistoryByOption_AmountBounds(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()

	for i, amount := range []int64{5, 10, 50} {
		assert.NoError(t, db.Create(&model.TransactionHistory{
			UserID: 7, PharmacyID: 1, MaskID: 11,
			TransactionDate: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
			Amount:          decimal.NewFromInt(amount),
		}).Error)
	}

	lo := decimal.NewFromInt(10)
	hi := decimal.NewFromInt(50)
	rows, err := r.TransactionHistoryByOption(ctx, HistoryOption{AmountFrom: &lo, AmountTo: &hi})
	assert.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRenameMask_MissingMask(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()
	assert.NoError(t, db.Create(&model.Mask{ID: 1, Name: "old"}).Error)

	assert.NoError(t, r.RenameMask(ctx, 1, "new"))
	var m model.Mask
	assert.NoError(t, db.First(&m, 1).Error)
	assert.Equal(t, "new", m.Name)

	assert.ErrorIs(t, r.RenameMask(ctx, 2, "x"), gorm.ErrRecordNotFound)
}

func TestOutbox_PollAndMark(t *testing.T) {
	r, db := newTestRepo(t)
	ctx := context.Background()
	assert.NoError(t, db.Create(&model.OutboxEvent{
		Aggregate: "Balance", AggregateID: 1, EventType: "Transfer", Payload: `{"amount":"100"}`,
	}).Error)

	evts, err := r.PollOutbox(ctx, 10)
	assert.NoError(t, err)
	assert.Len(t, evts, 1)

	assert.NoError(t, r.MarkOutboxProcessed(ctx, evts[0].ID))
	evts, err = r.PollOutbox(ctx, 10)
	assert.NoError(t, err)
	assert.Empty(t, evts)
}
