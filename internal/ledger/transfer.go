package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pharmacymask/ledger-service/internal/model"
	"github.com/pharmacymask/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// actor recorded on every balance log row.
const logActor = "system"

// Service is the dual-ledger transfer engine plus the transaction
// history aggregator. Stateless between calls.
type Service struct {
	repo            repo.RepositoryInterface
	log             *zap.SugaredLogger
	transferTimeout time.Duration
}

// NewService returns Service. timeout bounds each transfer's atomic
// unit; zero falls back to 5s.
func NewService(r repo.RepositoryInterface, logger *zap.SugaredLogger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{repo: r, log: logger, transferTimeout: timeout}
}

// TransferRequest moves Amount from the user's ledger to the
// pharmacy's. A negative Amount is a refund. RequestID is optional; a
// repeated non-empty RequestID replays the original outcome instead of
// moving money again.
type TransferRequest struct {
	UserID     uint64
	PharmacyID uint64
	Amount     decimal.Decimal
	RequestID  string
}

// TransferReceipt carries both sides' before/after balances.
type TransferReceipt struct {
	UserBefore     decimal.Decimal
	UserAfter      decimal.Decimal
	PharmacyBefore decimal.Decimal
	PharmacyAfter  decimal.Decimal
	Replayed       bool
}

// Transfer applies one atomic cash movement: update pharmacy balance,
// insert pharmacy log, update user balance, insert user log. Any
// failed write aborts the unit; no balance or log change survives.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	if req.Amount.IsZero() {
		return nil, ErrZeroAmount
	}

	ctx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	var rec *TransferReceipt
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if req.RequestID != "" {
			prior, err := s.replay(ctx, tx, req.RequestID)
			if err != nil {
				return err
			}
			if prior != nil {
				rec = prior
				return nil
			}
		}

		// Both rows are read under lock before anything is written, so
		// a missing account fails fast and concurrent transfers on the
		// same pair serialize. User row first, pharmacy second, always.
		ub, err := s.repo.UserBalanceForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unknownAccount("user", req.UserID)
			}
			return err
		}
		pb, err := s.repo.PharmacyBalanceForUpdate(ctx, tx, req.PharmacyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return unknownAccount("pharmacy", req.PharmacyID)
			}
			return err
		}

		newPharmacy := pb.CashBalance.Add(req.Amount)
		newUser := ub.CashBalance.Sub(req.Amount)

		var requestID *string
		if req.RequestID != "" {
			requestID = &req.RequestID
		}

		if err := s.repo.UpdatePharmacyBalance(ctx, tx, pb.ID, newPharmacy, pb.Version); err != nil {
			return err
		}
		if err := s.repo.AppendPharmacyBalanceLog(ctx, tx, &model.PharmacyBalanceLog{
			PharmacyID:    req.PharmacyID,
			Amount:        req.Amount,
			BalanceBefore: pb.CashBalance,
			BalanceAfter:  newPharmacy,
			Actor:         logActor,
			RequestID:     requestID,
		}); err != nil {
			return err
		}
		if err := s.repo.UpdateUserBalance(ctx, tx, ub.ID, newUser, ub.Version); err != nil {
			return err
		}
		if err := s.repo.AppendUserBalanceLog(ctx, tx, &model.UserBalanceLog{
			UserID:        req.UserID,
			Amount:        req.Amount,
			BalanceBefore: ub.CashBalance,
			BalanceAfter:  newUser,
			Actor:         logActor,
			RequestID:     requestID,
		}); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id": req.UserID, "pharmacy_id": req.PharmacyID, "amount": req.Amount,
		})
		if err := s.repo.CreateOutboxEvent(ctx, tx, &model.OutboxEvent{
			Aggregate: "Balance", AggregateID: req.UserID, EventType: "Transfer", Payload: string(payload),
		}); err != nil {
			return err
		}

		if err := s.repo.CacheBalance(ctx, repo.OwnerUser, req.UserID, newUser); err != nil {
			s.log.Warn(err)
		}
		if err := s.repo.CacheBalance(ctx, repo.OwnerPharmacy, req.PharmacyID, newPharmacy); err != nil {
			s.log.Warn(err)
		}

		rec = &TransferReceipt{
			UserBefore:     ub.CashBalance,
			UserAfter:      newUser,
			PharmacyBefore: pb.CashBalance,
			PharmacyAfter:  newPharmacy,
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// replay returns the receipt of a prior transfer with the same request
// id, or nil when no such transfer exists.
func (s *Service) replay(ctx context.Context, tx *gorm.DB, requestID string) (*TransferReceipt, error) {
	ul, err := s.repo.UserLogByRequestID(ctx, tx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pl, err := s.repo.PharmacyLogByRequestID(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	return &TransferReceipt{
		UserBefore:     ul.BalanceBefore,
		UserAfter:      ul.BalanceAfter,
		PharmacyBefore: pl.BalanceBefore,
		PharmacyAfter:  pl.BalanceAfter,
		Replayed:       true,
	}, nil
}

// UserCashBalance reads the user balance, cache first.
func (s *Service) UserCashBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, repo.OwnerUser, userID); err == nil {
		return bal, nil
	}
	var b model.UserBalance
	if err := s.repo.DB(ctx).Where("user_id = ?", userID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, unknownAccount("user", userID)
		}
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, repo.OwnerUser, userID, b.CashBalance); err != nil {
		s.log.Warn(err)
	}
	return b.CashBalance, nil
}

// PharmacyCashBalance reads the pharmacy balance, cache first.
func (s *Service) PharmacyCashBalance(ctx context.Context, pharmacyID uint64) (decimal.Decimal, error) {
	if bal, err := s.repo.GetCachedBalance(ctx, repo.OwnerPharmacy, pharmacyID); err == nil {
		return bal, nil
	}
	var b model.PharmacyBalance
	if err := s.repo.DB(ctx).Where("pharmacy_id = ?", pharmacyID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, unknownAccount("pharmacy", pharmacyID)
		}
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, repo.OwnerPharmacy, pharmacyID, b.CashBalance); err != nil {
		s.log.Warn(err)
	}
	return b.CashBalance, nil
}

// Repo exposes underlying repository (unit tests helper).
func (s *Service) Repo() repo.RepositoryInterface {
	return s.repo
}

func unknownAccount(kind string, id uint64) error {
	return fmt.Errorf("%w: %s %d", ErrAccountNotFound, kind, id)
}

// classify maps low-level failures onto the transfer error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		return err
	case errors.Is(err, repo.ErrVersionConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return err
	}
}
