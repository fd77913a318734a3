package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"brickvest/internal/config"
	"brickvest/internal/event"
	"brickvest/internal/repository"
	"brickvest/internal/service"
	"brickvest/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	ledgerService   *service.LedgerService
	referralService *service.ReferralService
	reinvestService *service.ReinvestService
	dispatcher      *service.EventDispatcher
	cfg             *config.Config
}

func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	referralRepo := repository.NewReferralRepository(db)
	notifier := service.NewOutboxNotifier(db, cfg.Kafka.Topic.Notifications)

	ledgerService := service.NewLedgerService(db, rdb)
	referralService := service.NewReferralService(referralRepo, &cfg.Business)
	rewardService := service.NewRewardService(referralRepo, ledgerService, notifier)
	reinvestService := service.NewReinvestService(
		db,
		repository.NewReinvestPlanRepository(db),
		repository.NewPayoutRepository(db),
		repository.NewAllocationRepository(db),
		ledgerService,
		notifier,
		service.NewRedisPlanLocker(rdb),
		config.MustDecimal(cfg.Business.MinReinvestAmount),
	)

	return &Handler{
		ledgerService:   ledgerService,
		referralService: referralService,
		reinvestService: reinvestService,
		dispatcher:      service.NewEventDispatcher(rewardService, reinvestService),
		cfg:             cfg,
	}
}

// writeServiceError maps the service error taxonomy onto the response
// envelope's business codes. Unknown errors stay opaque 500s.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInsufficientFunds):
		response.BusinessError(c, response.CodeInsufficientFunds, err.Error())
	case errors.Is(err, service.ErrCurrencyMismatch):
		response.BusinessError(c, response.CodeCurrencyMismatch, err.Error())
	case errors.Is(err, service.ErrSelfReferral):
		response.BusinessError(c, response.CodeSelfReferral, err.Error())
	case errors.Is(err, service.ErrAlreadyReferred):
		response.BusinessError(c, response.CodeAlreadyReferred, err.Error())
	case errors.Is(err, service.ErrInvalidCode):
		response.BusinessError(c, response.CodeInvalidCode, err.Error())
	case errors.Is(err, service.ErrPlanExists):
		response.BusinessError(c, response.CodePlanExists, err.Error())
	case errors.Is(err, service.ErrPlanNotFound):
		response.BusinessError(c, response.CodePlanNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "invalid user_id parameter")
		return 0, false
	}
	return userID, true
}

// ============================================================
// Wallet
// ============================================================

// GetWallet returns the wallet snapshot.
// GET /api/v1/wallet?user_id=xxx
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	snap, err := h.ledgerService.GetSnapshot(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, snap)
}

// MoveFundsRequest is the deposit/withdrawal body. Reference is the
// caller's idempotency handle; repeating it returns the original
// transaction.
type MoveFundsRequest struct {
	UserID      int64           `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency" binding:"required"`
	Reference   string          `json:"reference" binding:"required"`
	Description string          `json:"description"`
}

// Deposit credits cash onto the wallet.
// POST /api/v1/wallet/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req MoveFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	trans, err := h.ledgerService.Deposit(c.Request.Context(), req.UserID, req.Amount, req.Currency, req.Reference, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, trans)
}

// Withdraw debits cash from the wallet.
// POST /api/v1/wallet/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req MoveFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	trans, err := h.ledgerService.Withdraw(c.Request.Context(), req.UserID, req.Amount, req.Currency, req.Reference, req.Description)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, trans)
}

// ListTransactions pages the wallet history.
// GET /api/v1/wallet/transactions?user_id=&type=&date_from=&date_to=&page=&page_size=
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	filter := repository.ListFilter{Type: c.Query("type")}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if raw := c.Query("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.ParamError(c, "date_from must be YYYY-MM-DD")
			return
		}
		filter.DateFrom = &t
	}
	if raw := c.Query("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.ParamError(c, "date_to must be YYYY-MM-DD")
			return
		}
		// Inclusive upper bound: end of the named day.
		t = t.Add(24*time.Hour - time.Nanosecond)
		filter.DateTo = &t
	}

	transactions, total, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

// ============================================================
// Referral
// ============================================================

// GetReferralInfo returns the user's code, reward amounts and counters.
// GET /api/v1/referral/info?user_id=xxx&currency=TND
func (h *Handler) GetReferralInfo(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	currency := c.DefaultQuery("currency", "TND")

	info, err := h.referralService.GetReferralInfo(c.Request.Context(), userID, currency)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, info)
}

// RegenerateCodeRequest asks for a fresh invite code.
type RegenerateCodeRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

// RegenerateCode retires the active code and mints a new one. Old codes
// stay resolvable.
// POST /api/v1/referral/code/regenerate
func (h *Handler) RegenerateCode(c *gin.Context) {
	var req RegenerateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	code, err := h.referralService.RegenerateCode(c.Request.Context(), req.UserID, req.Currency)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"code":     code.Code,
		"currency": code.Currency,
	})
}

// ReferralSignupRequest links a new signup to a referral code.
type ReferralSignupRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
	NewUserID    int64  `json:"new_user_id" binding:"required"`
}

// ReferralSignup records the referrer-referee link at signup time. No
// money moves here; rewards fire later from lifecycle events.
// POST /api/v1/referral/signup
func (h *Handler) ReferralSignup(c *gin.Context) {
	var req ReferralSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	referral, err := h.referralService.CreateReferral(c.Request.Context(), req.NewUserID, req.ReferralCode)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{
		"referral_processed": true,
		"referrer_id":        referral.ReferrerID,
		"currency":           referral.Currency,
	})
}

// ============================================================
// Auto-reinvest
// ============================================================

// PlanRequest is the create/update plan body.
type PlanRequest struct {
	UserID              int64           `json:"user_id" binding:"required"`
	Currency            string          `json:"currency"`
	MinimumReinvest     decimal.Decimal `json:"minimum_reinvest_amount"`
	ReinvestPercentage  decimal.Decimal `json:"reinvest_percentage" binding:"required"`
	Theme               string          `json:"theme"`
	RiskLevel           string          `json:"risk_level"`
	AutoApprovalEnabled bool            `json:"auto_approval_enabled"`
}

func (r *PlanRequest) input() service.PlanInput {
	return service.PlanInput{
		Currency:            r.Currency,
		MinimumReinvest:     r.MinimumReinvest,
		ReinvestPercentage:  r.ReinvestPercentage,
		Theme:               r.Theme,
		RiskLevel:           r.RiskLevel,
		AutoApprovalEnabled: r.AutoApprovalEnabled,
	}
}

// GetPlan returns the user's current plan.
// GET /api/v1/reinvest/plan?user_id=xxx
func (h *Handler) GetPlan(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	plan, err := h.reinvestService.GetPlan(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, plan)
}

// CreatePlan creates the user's auto-reinvest plan.
// POST /api/v1/reinvest/plan
func (h *Handler) CreatePlan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	plan, err := h.reinvestService.CreatePlan(c.Request.Context(), req.UserID, req.input())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, plan)
}

// UpdatePlan changes the policy fields of the current plan.
// PUT /api/v1/reinvest/plan
func (h *Handler) UpdatePlan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	plan, err := h.reinvestService.UpdatePlan(c.Request.Context(), req.UserID, req.input())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, plan)
}

type planActionRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// PausePlan suspends reinvesting; the carry-forward is preserved.
// POST /api/v1/reinvest/plan/pause
func (h *Handler) PausePlan(c *gin.Context) {
	h.planAction(c, h.reinvestService.PausePlan)
}

// ResumePlan re-activates a paused plan.
// POST /api/v1/reinvest/plan/resume
func (h *Handler) ResumePlan(c *gin.Context) {
	h.planAction(c, h.reinvestService.ResumePlan)
}

// CancelPlan retires the plan permanently.
// POST /api/v1/reinvest/plan/cancel
func (h *Handler) CancelPlan(c *gin.Context) {
	h.planAction(c, h.reinvestService.CancelPlan)
}

func (h *Handler) planAction(c *gin.Context, action func(ctx context.Context, userID int64) error) {
	var req planActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	if err := action(c.Request.Context(), req.UserID); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"updated": true})
}

// ApproveAllocationRequest approves an awaiting-approval allocation.
type ApproveAllocationRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	AllocationNo string `json:"allocation_no" binding:"required"`
}

// ApproveAllocation releases an awaiting-approval allocation to the
// submitter and reserves its funds. Idempotent.
// POST /api/v1/reinvest/allocations/approve
func (h *Handler) ApproveAllocation(c *gin.Context) {
	var req ApproveAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	if err := h.reinvestService.ApproveAllocation(c.Request.Context(), req.UserID, req.AllocationNo); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"approved": true})
}

// ListPayouts pages the user's rental payout history.
// GET /api/v1/reinvest/payouts?user_id=xxx&page=1&page_size=20
func (h *Handler) ListPayouts(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	payouts, total, err := h.reinvestService.ListPayouts(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      payouts,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Event ingestion (webhook-style, for environments without Kafka)
// ============================================================

// IngestUserApproved processes a user.approved event.
// POST /api/v1/events/user-approved
func (h *Handler) IngestUserApproved(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.ParamError(c, "read body: "+err.Error())
		return
	}
	e, err := event.DecodeUserApproved(raw)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if err := h.dispatcher.HandleUserApproved(c.Request.Context(), e); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"processed": true})
}

// IngestInvestmentCreated processes an investment.created event.
// POST /api/v1/events/investment-created
func (h *Handler) IngestInvestmentCreated(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.ParamError(c, "read body: "+err.Error())
		return
	}
	e, err := event.DecodeInvestmentCreated(raw)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if err := h.dispatcher.HandleInvestmentCreated(c.Request.Context(), e); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"processed": true})
}

// IngestRentalPayout processes a rental.payout event.
// POST /api/v1/events/rental-payout
func (h *Handler) IngestRentalPayout(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.ParamError(c, "read body: "+err.Error())
		return
	}
	e, err := event.DecodeRentalPayout(raw)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}
	result, err := h.reinvestService.OnRentalPayout(c.Request.Context(), e)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, result)
}
