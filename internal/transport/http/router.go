package http

import (
	"github.com/gin-gonic/gin"
	mw "github.com/pharmacymask/ledger-service/http"
	"github.com/pharmacymask/ledger-service/internal/catalog"
	"github.com/pharmacymask/ledger-service/internal/config"
	"github.com/pharmacymask/ledger-service/internal/ledger"
	"go.uber.org/zap"
)

func NewRouter(svc *ledger.Service, cat *catalog.Service, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.LoggingMiddleware(log))
	r.Use(mw.RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, svc, cat)
	return r
}
