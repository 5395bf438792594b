package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/pharmacymask/ledger-service/internal/logger"
	"github.com/pharmacymask/ledger-service/internal/model"
	"github.com/pharmacymask/ledger-service/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, context.Context) {
	// one named in-memory DB per test; a single connection serializes
	// concurrent transactions the way postgres row locks would
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)
	sqlDB, err := db.DB()
	assert.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	assert.NoError(t, db.AutoMigrate(
		&model.UserBalance{}, &model.PharmacyBalance{},
		&model.UserBalanceLog{}, &model.PharmacyBalanceLog{},
		&model.TransactionHistory{},
		&model.User{}, &model.Pharmacy{}, &model.Mask{}, &model.PharmacyProduct{},
		&model.OutboxEvent{},
	))

	rdb, _ := redismock.NewClientMock() // cache misses/failures are tolerated

	log, _ := logger.NewLogger()
	repository := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	svc := NewService(repository, log, 0)

	return svc, db, context.Background()
}

func seedBalances(t *testing.T, db *gorm.DB, userBal, pharmacyBal int64) {
	assert.NoError(t, db.Create(&model.UserBalance{ID: 1, UserID: 1, CashBalance: decimal.NewFromInt(userBal)}).Error)
	assert.NoError(t, db.Create(&model.PharmacyBalance{ID: 1, PharmacyID: 1, CashBalance: decimal.NewFromInt(pharmacyBal)}).Error)
}

func TestTransfer_PurchaseMovesCashBothSides(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 1000, 500)

	rec, err := svc.Transfer(ctx, TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.NewFromInt(100)})
	assert.NoError(t, err)
	assert.Equal(t, "1000", rec.UserBefore.StringFixed(0))
	assert.Equal(t, "900", rec.UserAfter.StringFixed(0))
	assert.Equal(t, "500", rec.PharmacyBefore.StringFixed(0))
	assert.Equal(t, "600", rec.PharmacyAfter.StringFixed(0))

	var ub model.UserBalance
	assert.NoError(t, db.First(&ub, 1).Error)
	assert.Equal(t, "900", ub.CashBalance.StringFixed(0))

	var pb model.PharmacyBalance
	assert.NoError(t, db.First(&pb, 1).Error)
	assert.Equal(t, "600", pb.CashBalance.StringFixed(0))

	var ulogs []model.UserBalanceLog
	assert.NoError(t, db.Find(&ulogs).Error)
	assert.Len(t, ulogs, 1)
	assert.Equal(t, "100", ulogs[0].Amount.StringFixed(0))
	assert.Equal(t, "1000", ulogs[0].BalanceBefore.StringFixed(0))
	assert.Equal(t, "900", ulogs[0].BalanceAfter.StringFixed(0))
	assert.Equal(t, "system", ulogs[0].Actor)

	var plogs []model.PharmacyBalanceLog
	assert.NoError(t, db.Find(&plogs).Error)
	assert.Len(t, plogs, 1)
	assert.Equal(t, "100", plogs[0].Amount.StringFixed(0))
	assert.Equal(t, "500", plogs[0].BalanceBefore.StringFixed(0))
	assert.Equal(t, "600", plogs[0].BalanceAfter.StringFixed(0))

	var evts []model.OutboxEvent
	assert.NoError(t, db.Find(&evts).Error)
	assert.Len(t, evts, 1)
	assert.Equal(t, "Transfer", evts[0].EventType)
}

func TestTransfer_RefundMovesCashBackToUser(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 900, 600)

	rec, err := svc.Transfer(ctx, TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.NewFromInt(-100)})
	assert.NoError(t, err)
	assert.Equal(t, "1000", rec.UserAfter.StringFixed(0))
	assert.Equal(t, "500", rec.PharmacyAfter.StringFixed(0))
}

func TestTransfer_ZeroAmountRejected(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 1000, 500)

	_, err := svc.Transfer(ctx, TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.Zero})
	assert.ErrorIs(t, err, ErrZeroAmount)
}

func TestTransfer_UnknownAccountFailsFast(t *testing.T) {
	svc, db, ctx := newTestService(t)
	// pharmacy exists, user does not
	assert.NoError(t, db.Create(&model.PharmacyBalance{ID: 1, PharmacyID: 1, CashBalance: decimal.NewFromInt(500)}).Error)

	_, err := svc.Transfer(ctx, TransferRequest{UserID: 9, PharmacyID: 1, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// nothing was written anywhere
	var pb model.PharmacyBalance
	assert.NoError(t, db.First(&pb, 1).Error)
	assert.Equal(t, "500", pb.CashBalance.StringFixed(0))
	var plogCount int64
	assert.NoError(t, db.Model(&model.PharmacyBalanceLog{}).Count(&plogCount).Error)
	assert.Zero(t, plogCount)
}

func TestTransfer_FailedWriteRollsBackEverything(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 1000, 500)

	// inject a failure into the fourth write (user balance log); the
	// first three must not survive the rollback
	injected := errors.New("injected write failure")
	err := db.Callback().Create().Before("gorm:create").Register("fail_user_log", func(tx *gorm.DB) {
		if tx.Statement.Table == "user_balance_log" {
			tx.AddError(injected)
		}
	})
	assert.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.NewFromInt(100)})
	assert.Error(t, err)

	var ub model.UserBalance
	assert.NoError(t, db.First(&ub, 1).Error)
	assert.Equal(t, "1000", ub.CashBalance.StringFixed(0))
	var pb model.PharmacyBalance
	assert.NoError(t, db.First(&pb, 1).Error)
	assert.Equal(t, "500", pb.CashBalance.StringFixed(0))

	var logCount int64
	assert.NoError(t, db.Model(&model.PharmacyBalanceLog{}).Count(&logCount).Error)
	assert.Zero(t, logCount)
	assert.NoError(t, db.Model(&model.OutboxEvent{}).Count(&logCount).Error)
	assert.Zero(t, logCount)
}

func TestTransfer_ConcurrentTransfersSerialize(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 1000, 500)

	amounts := []int64{50, 30}
	errs := make(chan error, len(amounts))
	var wg sync.WaitGroup
	for _, amt := range amounts {
		wg.Add(1)
		go func(amt int64) {
			defer wg.Done()
			_, err := svc.Transfer(ctx, TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.NewFromInt(amt)})
			errs <- err
		}(amt)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	// never 950 or 970: both deltas must land
	var ub model.UserBalance
	assert.NoError(t, db.First(&ub, 1).Error)
	assert.Equal(t, "920", ub.CashBalance.StringFixed(0))
	var pb model.PharmacyBalance
	assert.NoError(t, db.First(&pb, 1).Error)
	assert.Equal(t, "580", pb.CashBalance.StringFixed(0))

	var logCount int64
	assert.NoError(t, db.Model(&model.UserBalanceLog{}).Count(&logCount).Error)
	assert.EqualValues(t, 2, logCount)
}

func TestTransfer_SameRequestIDReplaysInsteadOfRepeating(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 1000, 500)

	req := TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.NewFromInt(100), RequestID: "ord-42"}
	first, err := svc.Transfer(ctx, req)
	assert.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.Transfer(ctx, req)
	assert.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.UserAfter.StringFixed(0), second.UserAfter.StringFixed(0))
	assert.Equal(t, first.PharmacyAfter.StringFixed(0), second.PharmacyAfter.StringFixed(0))

	// money moved exactly once
	var ub model.UserBalance
	assert.NoError(t, db.First(&ub, 1).Error)
	assert.Equal(t, "900", ub.CashBalance.StringFixed(0))
	var logCount int64
	assert.NoError(t, db.Model(&model.UserBalanceLog{}).Count(&logCount).Error)
	assert.EqualValues(t, 1, logCount)
}

func TestTransfer_ExpiredDeadlineSurfacesAsTimeout(t *testing.T) {
	svc, db, ctx := newTestService(t)
	seedBalances(t, db, 1000, 500)

	tight := NewService(svc.Repo(), svc.log, time.Nanosecond)
	_, err := tight.Transfer(ctx, TransferRequest{UserID: 1, PharmacyID: 1, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, ErrTimeout)

	var ub model.UserBalance
	assert.NoError(t, db.First(&ub, 1).Error)
	assert.Equal(t, "1000", ub.CashBalance.StringFixed(0))
}
