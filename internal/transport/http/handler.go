package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pharmacymask/ledger-service/internal/catalog"
	"github.com/pharmacymask/ledger-service/internal/ledger"
	"github.com/pharmacymask/ledger-service/internal/parse"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func RegisterHandlers(r *gin.Engine, svc *ledger.Service, cat *catalog.Service) {
	v1 := r.Group("/v1")
	{
		v1.POST("/transfers", transferHandler(svc))
		v1.GET("/users/:id/balance", userBalanceHandler(svc))
		v1.GET("/pharmacies/:id/balance", pharmacyBalanceHandler(svc))
		v1.GET("/transactions/history", historyHandler(svc))
		v1.GET("/transactions/summary/users", summaryByUserHandler(svc))
		v1.GET("/transactions/summary/masks", summaryByMaskHandler(svc))
		v1.GET("/pharmacies/:id/products", productsHandler(cat))
		v1.PUT("/masks/:id", renameMaskHandler(cat))
	}
}

// statusFor maps transfer error kinds onto HTTP statuses.
func statusFor(err error) int {
	var integrity *ledger.IntegrityError
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &integrity):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type transferReq struct {
	UserID     uint64 `json:"user_id" binding:"required"`
	PharmacyID uint64 `json:"pharmacy_id" binding:"required"`
	Amount     string `json:"amount" binding:"required"`
	RequestID  string `json:"request_id"`
}

func transferHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		rec, err := svc.Transfer(c, ledger.TransferRequest{
			UserID:     req.UserID,
			PharmacyID: req.PharmacyID,
			Amount:     amt,
			RequestID:  req.RequestID,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_balance":     rec.UserAfter,
			"pharmacy_balance": rec.PharmacyAfter,
			"replayed":         rec.Replayed,
		})
	}
}

func userBalanceHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		bal, err := svc.UserCashBalance(c, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func pharmacyBalanceHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		bal, err := svc.PharmacyCashBalance(c, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

func historyHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDs, err := parse.IDList(c.Query("user_ids"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_ids"})
			return
		}
		from, err := parse.DateOrNil(c.Query("from"))
		if err != nil || from == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		to, err := parse.DateOrNil(c.Query("to"))
		if err != nil || to == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		hist, err := svc.History(c, userIDs, *from, *to)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, hist)
	}
}

func summaryByUserHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := parse.DateOrNil(c.Query("from"))
		if err != nil || from == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		to, err := parse.DateOrNil(c.Query("to"))
		if err != nil || to == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		sum, err := svc.SummaryByUser(c, *from, *to)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func summaryByMaskHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := parse.DateOrNil(c.Query("from"))
		if err != nil || from == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		to, err := parse.DateOrNil(c.Query("to"))
		if err != nil || to == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		sum, err := svc.SummaryByMask(c, *from, *to)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func productsHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		pharmacyID, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		maskIDs, err := parse.IDList(c.Query("mask_ids"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mask_ids"})
			return
		}
		typeIDs, err := parse.IDList(c.Query("type_ids"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type_ids"})
			return
		}
		priceFrom, err := parse.DecimalOrNil(c.Query("price_from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_from"})
			return
		}
		priceTo, err := parse.DecimalOrNil(c.Query("price_to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_to"})
			return
		}
		products, err := cat.PharmacyProducts(c, catalog.ProductSearch{
			PharmacyIDs:    []uint64{pharmacyID},
			MaskIDs:        maskIDs,
			ProductTypeIDs: typeIDs,
			PriceFrom:      priceFrom,
			PriceTo:        priceTo,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, products)
	}
}

type renameMaskReq struct {
	Name string `json:"name" binding:"required"`
}

func renameMaskHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req renameMaskReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		if err := cat.RenameMask(c, id, req.Name); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "name": req.Name})
	}
}
