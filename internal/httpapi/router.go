// Package httpapi exposes the ledger over HTTP.
package httpapi

import (
	"net/http"

	"casino_ledger/internal/app"
	"casino_ledger/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(a *app.App) *gin.Engine {
	h := &handler{app: a}

	r := gin.New()
	r.Use(gin.Recovery(), Trace(), Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST(settlement.VerifyRef, h.verify)

	api := r.Group("/api", Auth(a.Config.JWTSecret))
	{
		api.POST("/wallet/account", h.openAccount)
		api.GET("/wallet/balance", h.balance)
		api.GET("/wallet/history", h.entries)
		api.GET("/wagering/status", h.wageringStatus)

		api.POST("/games/crash/bet", h.placeBet)
		api.GET("/games/crash/history", h.bets)

		api.POST("/payments/deposits", h.createDeposit)
		api.POST("/payments/withdrawals", h.createWithdrawal)
		api.GET("/payments/requests", h.requests)

		api.POST("/bonus/download", h.claimDownload)
		api.GET("/notifications/ws", h.stream)
	}

	admin := api.Group("/admin", RequireAdmin())
	{
		admin.GET("/requests/:kind/pending", h.pending)
		admin.POST("/requests/:kind/:id/approve", h.approve)
		admin.POST("/requests/:kind/:id/reject", h.reject)

		admin.POST("/accounts/:id/freeze", h.freeze)
		admin.POST("/accounts/:id/unfreeze", h.unfreeze)
		admin.POST("/accounts/:id/kyc", h.setKYC)
		admin.POST("/accounts/:id/grants", h.grant)
		admin.GET("/accounts/:id/reconcile", h.reconcile)

		admin.GET("/promotions/:key", h.promotionTable)
		admin.PUT("/promotions/:key", h.savePromotionTable)
	}

	return r
}
