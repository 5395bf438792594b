package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/pharmacymask/ledger-service/internal/model"
	"github.com/pharmacymask/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
)

// EnrichedTransaction is a raw history row joined with the resolved
// user, pharmacy and mask names. Computed on read, never persisted.
type EnrichedTransaction struct {
	TransactionID   uint64          `json:"transaction_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	UserID          uint64          `json:"user_id"`
	UserName        string          `json:"user_name"`
	PharmacyID      uint64          `json:"pharmacy_id"`
	PharmacyName    string          `json:"pharmacy_name"`
	MaskID          uint64          `json:"mask_id"`
	MaskName        string          `json:"mask_name"`
	Amount          decimal.Decimal `json:"amount"`
}

// UserSummary is one user's transaction total over a date range.
type UserSummary struct {
	UserName    string          `json:"user_name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// MaskSummary is one mask's transaction total over a date range.
type MaskSummary struct {
	MaskName    string          `json:"mask_name"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// History returns enriched purchase rows for the given users and
// inclusive date range. An empty userIDs means all users. A row whose
// user, pharmacy or mask no longer resolves aborts the read with an
// *IntegrityError rather than being dropped.
func (s *Service) History(ctx context.Context, userIDs []uint64, from, to time.Time) ([]EnrichedTransaction, error) {
	users, err := s.repo.UsersByOption(ctx, userIDs, "")
	if err != nil {
		return nil, err
	}
	userByID := make(map[uint64]model.User, len(users))
	candidateIDs := make([]uint64, 0, len(users))
	for _, u := range users {
		userByID[u.ID] = u
		candidateIDs = append(candidateIDs, u.ID)
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	rows, err := s.repo.TransactionHistoryByOption(ctx, repo.HistoryOption{
		UserIDs:  candidateIDs,
		DateFrom: &from,
		DateTo:   &to,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	masks, err := s.repo.MasksByOption(ctx, distinct(rows, func(h model.TransactionHistory) uint64 { return h.MaskID }), "")
	if err != nil {
		return nil, err
	}
	maskByID := make(map[uint64]model.Mask, len(masks))
	for _, m := range masks {
		maskByID[m.ID] = m
	}

	pharmacies, err := s.repo.PharmaciesByOption(ctx, distinct(rows, func(h model.TransactionHistory) uint64 { return h.PharmacyID }), "")
	if err != nil {
		return nil, err
	}
	pharmacyByID := make(map[uint64]model.Pharmacy, len(pharmacies))
	for _, p := range pharmacies {
		pharmacyByID[p.ID] = p
	}

	out := make([]EnrichedTransaction, 0, len(rows))
	for _, h := range rows {
		u, ok := userByID[h.UserID]
		if !ok {
			return nil, &IntegrityError{HistoryID: h.ID, Entity: "user", RefID: h.UserID}
		}
		m, ok := maskByID[h.MaskID]
		if !ok {
			return nil, &IntegrityError{HistoryID: h.ID, Entity: "mask", RefID: h.MaskID}
		}
		p, ok := pharmacyByID[h.PharmacyID]
		if !ok {
			return nil, &IntegrityError{HistoryID: h.ID, Entity: "pharmacy", RefID: h.PharmacyID}
		}
		out = append(out, EnrichedTransaction{
			TransactionID:   h.ID,
			TransactionDate: h.TransactionDate,
			UserID:          h.UserID,
			UserName:        u.Name,
			PharmacyID:      h.PharmacyID,
			PharmacyName:    p.Name,
			MaskID:          h.MaskID,
			MaskName:        m.Name,
			Amount:          h.Amount,
		})
	}
	return out, nil
}

// SummaryByUser groups the range's transactions by user name and sums
// amounts, ordered by total descending then user name ascending.
func (s *Service) SummaryByUser(ctx context.Context, from, to time.Time) ([]UserSummary, error) {
	hist, err := s.History(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal)
	for _, h := range hist {
		totals[h.UserName] = totals[h.UserName].Add(h.Amount)
	}
	out := make([]UserSummary, 0, len(totals))
	for name, total := range totals {
		out = append(out, UserSummary{UserName: name, TotalAmount: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TotalAmount.Equal(out[j].TotalAmount) {
			return out[i].TotalAmount.GreaterThan(out[j].TotalAmount)
		}
		return out[i].UserName < out[j].UserName
	})
	return out, nil
}

// SummaryByMask groups by mask name, ordered by name for determinism.
func (s *Service) SummaryByMask(ctx context.Context, from, to time.Time) ([]MaskSummary, error) {
	hist, err := s.History(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal)
	for _, h := range hist {
		totals[h.MaskName] = totals[h.MaskName].Add(h.Amount)
	}
	out := make([]MaskSummary, 0, len(totals))
	for name, total := range totals {
		out = append(out, MaskSummary{MaskName: name, TotalAmount: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaskName < out[j].MaskName })
	return out, nil
}

func distinct(rows []model.TransactionHistory, key func(model.TransactionHistory) uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(rows))
	ids := make([]uint64, 0, len(rows))
	for _, h := range rows {
		id := key(h)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
