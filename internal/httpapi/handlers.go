package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"casino_ledger/internal/app"
	"casino_ledger/internal/fairness"
	"casino_ledger/internal/payment"
	"casino_ledger/internal/promotion"
	"casino_ledger/internal/settlement"
	"casino_ledger/internal/wallet"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type handler struct {
	app *app.App
}

func historyLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func (h *handler) openAccount(c *gin.Context) {
	acc, err := h.app.Accounts.OpenAccount(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc.Balance())
}

func (h *handler) balance(c *gin.Context) {
	b, err := h.app.Accounts.Balance(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) entries(c *gin.Context) {
	entries, err := h.app.Accounts.History(c.Request.Context(), caller(c), historyLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *handler) wageringStatus(c *gin.Context) {
	if c.Query("all") == "true" {
		records, err := h.app.Tracker.Records(c.Request.Context(), caller(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
		return
	}
	st, err := h.app.Tracker.Status(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) placeBet(c *gin.Context) {
	var req settlement.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.AccountID = caller(c)

	res, err := h.app.Engine.Settle(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) bets(c *gin.Context) {
	bets, err := h.app.Engine.History(c.Request.Context(), caller(c), historyLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bets": bets})
}

func (h *handler) verify(c *gin.Context) {
	var req fairness.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := fairness.Verify(req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) createDeposit(c *gin.Context) {
	var in payment.DepositInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.AccountID = caller(c)

	req, err := h.app.Workflow.CreateDeposit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *handler) createWithdrawal(c *gin.Context) {
	var in payment.WithdrawalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.AccountID = caller(c)

	req, err := h.app.Workflow.CreateWithdrawal(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *handler) requests(c *gin.Context) {
	reqs, err := h.app.Workflow.Requests(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *handler) claimDownload(c *gin.Context) {
	var in payment.DownloadClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.AccountID = caller(c)

	res, err := h.app.Workflow.ClaimDownloadBonus(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// admin

func (h *handler) pending(c *gin.Context) {
	kind, err := payment.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	reqs, err := h.app.Workflow.Pending(c.Request.Context(), kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *handler) approve(c *gin.Context) {
	kind, err := payment.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	req, err := h.app.Workflow.Approve(c.Request.Context(), kind, c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

// bindReason accepts an empty body as no reason.
func bindReason(c *gin.Context) (reasonBody, bool) {
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return body, false
	}
	return body, true
}

func (h *handler) reject(c *gin.Context) {
	kind, err := payment.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	body, ok := bindReason(c)
	if !ok {
		return
	}
	req, err := h.app.Workflow.Reject(c.Request.Context(), kind, c.Param("id"), caller(c), body.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *handler) freeze(c *gin.Context) {
	body, ok := bindReason(c)
	if !ok {
		return
	}
	if body.Reason == "" {
		body.Reason = "Frozen by operator"
	}
	if err := h.app.Accounts.Freeze(c.Request.Context(), nil, c.Param("id"), body.Reason); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) unfreeze(c *gin.Context) {
	if err := h.app.Accounts.Unfreeze(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) setKYC(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.app.Accounts.SetKYCStatus(c.Request.Context(), c.Param("id"), wallet.KYCStatus(body.Status)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) grant(c *gin.Context) {
	var in payment.GrantInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.AccountID = c.Param("id")
	in.AdminID = caller(c)

	rec, err := h.app.Workflow.GrantBonus(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handler) reconcile(c *gin.Context) {
	rec, err := h.app.Accounts.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) promotionTable(c *gin.Context) {
	key, err := promotion.ParseKey(c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	table, err := h.app.Promotions.Table(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "tiers": table})
}

func (h *handler) savePromotionTable(c *gin.Context) {
	key, err := promotion.ParseKey(c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	var body struct {
		Tiers promotion.Table `json:"tiers"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.app.Promotions.SaveTable(c.Request.Context(), key, body.Tiers, caller(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "tiers": body.Tiers})
}
