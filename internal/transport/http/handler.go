package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/richardliu001/ucm-wallet/internal/model"
	"github.com/richardliu001/ucm-wallet/internal/service"
)

// Handler serves the ledger over HTTP.
type Handler struct {
	wallet   *service.WalletService
	rewards  *service.RewardService
	referral *service.ReferralService
	progress *service.ProgressService
	log      *zap.SugaredLogger
}

func NewHandler(w *service.WalletService, rw *service.RewardService, rf *service.ReferralService, p *service.ProgressService, log *zap.SugaredLogger) *Handler {
	return &Handler{wallet: w, rewards: rw, referral: rf, progress: p, log: log}
}

func RegisterHandlers(r *gin.Engine, h *Handler) {
	v1 := r.Group("/v1")
	{
		v1.POST("/users/:id/awards", h.award)
		v1.POST("/users/:id/charges", h.charge)
		v1.POST("/users/:id/paid-actions", h.paidAction)
		v1.POST("/users/:id/credits", h.credit)
		v1.POST("/users/:id/referral-code", h.referralCode)
		v1.POST("/referrals", h.attribute)
		v1.GET("/users/:id/progress", h.getProgress)
		v1.GET("/users/:id/balance", h.balance)
		v1.GET("/users/:id/history", h.history)
	}
}

// writeError maps domain errors to statuses. Anything else is logged and
// hidden behind a generic message.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrReferralCodeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownAction),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSelfReferral):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Errorw("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong, please try again"})
	}
}

func userID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

type relatedReq struct {
	RelatedEntityType string `json:"related_entity_type"`
	RelatedEntityID   int64  `json:"related_entity_id"`
}

func (r relatedReq) entity() *service.RelatedEntity {
	if r.RelatedEntityType == "" {
		return nil
	}
	return &service.RelatedEntity{Type: r.RelatedEntityType, ID: r.RelatedEntityID}
}

type awardReq struct {
	Action   string                 `json:"action" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (h *Handler) award(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	var req awardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.rewards.Award(c, id, service.Action(req.Action), req.Metadata)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, gin.H{"awarded": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"awarded": true, "result": res})
}

type amountReq struct {
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
	relatedReq
}

func (h *Handler) bindAmount(c *gin.Context) (amountReq, decimal.Decimal, bool) {
	var req amountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, decimal.Zero, false
	}
	amt, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return req, decimal.Zero, false
	}
	return req, amt, true
}

func (h *Handler) charge(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	req, amt, ok := h.bindAmount(c)
	if !ok {
		return
	}
	bal, err := h.wallet.Charge(c, id, amt, req.Reason, req.entity())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

func (h *Handler) credit(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	req, amt, ok := h.bindAmount(c)
	if !ok {
		return
	}
	bal, err := h.wallet.Credit(c, id, amt, req.Reason, req.entity())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

type paidActionReq struct {
	ActionType  string `json:"action_type" binding:"required"`
	Description string `json:"description"`
	relatedReq
}

func (h *Handler) paidAction(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	var req paidActionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.wallet.ChargePaidAction(c, id, req.ActionType, req.entity(), req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) referralCode(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	code, err := h.referral.EnsureReferralCode(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

// referralReq without inviter_id resolves the inviter from code.
type referralReq struct {
	InviterID uint64 `json:"inviter_id"`
	InviteeID uint64 `json:"invitee_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

func (h *Handler) attribute(c *gin.Context) {
	var req referralReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var (
		attr *model.ReferralAttribution
		err  error
	)
	if req.InviterID != 0 {
		attr, err = h.referral.AwardReferral(c, req.InviterID, req.InviteeID, req.Code)
	} else {
		attr, err = h.referral.AttributeSignup(c, req.InviteeID, req.Code)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attr)
}

func (h *Handler) getProgress(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	list, err := h.progress.GetProgress(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) balance(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	bal, err := h.wallet.GetBalance(c, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": bal})
}

func (h *Handler) history(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	var since time.Time
	if s := c.Query("since"); s != "" {
		if since, err = time.Parse(time.RFC3339, s); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
	}
	entries, err := h.wallet.GetHistory(c, id, limit, since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
