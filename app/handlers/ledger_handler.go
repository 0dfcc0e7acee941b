package handlers

import (
	"context"
	"log"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// LedgerHandlerInterface defines the contract for ledger handlers
type LedgerHandlerInterface interface {
	Recharge(c fiber.Ctx) error
	RecordSpend(c fiber.Ctx) error
	RecordAdjustment(c fiber.Ctx) error
	RecordRefund(c fiber.Ctx) error
	GetBalance(c fiber.Ctx) error
	GetTransactionHistory(c fiber.Ctx) error
	GetBillingSummary(c fiber.Ctx) error
}

// LedgerHandler handles balance and transaction HTTP requests
type LedgerHandler struct {
	ledgerFlow businessflow.LedgerFlow
	validator  *validator.Validate
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgerFlow businessflow.LedgerFlow) *LedgerHandler {
	return &LedgerHandler{
		ledgerFlow: ledgerFlow,
		validator:  validator.New(),
	}
}

func (h *LedgerHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *LedgerHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Recharge tops up a company balance
// @Summary Recharge Balance
// @Tags Ledger
// @Accept json
// @Produce json
// @Param request body dto.RechargeRequest true "Recharge data"
// @Success 201 {object} dto.APIResponse{data=dto.RechargeResponse} "Balance recharged"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/recharge [post]
func (h *LedgerHandler) Recharge(c fiber.Ctx) error {
	var req dto.RechargeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ledgerFlow.Recharge(h.createRequestContext(c, "/api/v1/ledger/recharge"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsAmountTooLow(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Amount is too low", "AMOUNT_TOO_LOW", nil)
		}

		log.Println("Recharge failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Recharge failed", "RECHARGE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// RecordSpend draws platform spend from the balance
// @Summary Record Spend
// @Tags Ledger
// @Accept json
// @Produce json
// @Param request body dto.RecordSpendRequest true "Spend data"
// @Success 201 {object} dto.APIResponse{data=dto.RecordSpendResponse} "Spend recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 402 {object} dto.APIResponse "Insufficient funds"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/spend [post]
func (h *LedgerHandler) RecordSpend(c fiber.Ctx) error {
	var req dto.RecordSpendRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ledgerFlow.RecordSpend(h.createRequestContext(c, "/api/v1/ledger/spend"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInsufficientFunds(err) {
			return h.ErrorResponse(c, fiber.StatusPaymentRequired, "Insufficient funds", "INSUFFICIENT_FUNDS", nil)
		}

		log.Println("Spend recording failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Spend recording failed", "SPEND_RECORDING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// RecordAdjustment records a manual balance correction
// @Summary Record Adjustment
// @Tags Ledger
// @Accept json
// @Produce json
// @Param request body dto.RecordAdjustmentRequest true "Adjustment data"
// @Success 201 {object} dto.APIResponse{data=dto.RecordAdjustmentResponse} "Adjustment recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/adjustment [post]
func (h *LedgerHandler) RecordAdjustment(c fiber.Ctx) error {
	var req dto.RecordAdjustmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ledgerFlow.RecordAdjustment(h.createRequestContext(c, "/api/v1/ledger/adjustment"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsAmountTooLow(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Adjustment amount cannot be zero", "INVALID_AMOUNT", nil)
		}

		log.Println("Adjustment recording failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Adjustment recording failed", "ADJUSTMENT_RECORDING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// RecordRefund credits a refunded amount back to the balance
// @Summary Record Refund
// @Tags Ledger
// @Accept json
// @Produce json
// @Param request body dto.RecordRefundRequest true "Refund data"
// @Success 201 {object} dto.APIResponse{data=dto.RecordRefundResponse} "Refund recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/refund [post]
func (h *LedgerHandler) RecordRefund(c fiber.Ctx) error {
	var req dto.RecordRefundRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ledgerFlow.RecordRefund(h.createRequestContext(c, "/api/v1/ledger/refund"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Refund recording failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Refund recording failed", "REFUND_RECORDING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// GetBalance returns the company's current balance
// @Summary Get Balance
// @Tags Ledger
// @Produce json
// @Param company_id path int true "Company ID"
// @Success 200 {object} dto.APIResponse{data=dto.GetBalanceResponse} "Balance retrieved"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/{company_id}/balance [get]
func (h *LedgerHandler) GetBalance(c fiber.Ctx) error {
	companyID, ok := parseCompanyParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid company ID", "INVALID_COMPANY_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	req := dto.GetBalanceRequest{CompanyID: companyID}

	result, err := h.ledgerFlow.GetBalance(h.createRequestContext(c, "/api/v1/ledger/balance"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Balance lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Balance lookup failed", "BALANCE_LOOKUP_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Balance retrieved", result)
}

// GetTransactionHistory lists ledger rows for a company
// @Summary Transaction History
// @Tags Ledger
// @Accept json
// @Produce json
// @Param request body dto.GetTransactionHistoryRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.TransactionHistoryResponse} "History listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/history [post]
func (h *LedgerHandler) GetTransactionHistory(c fiber.Ctx) error {
	var req dto.GetTransactionHistoryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ledgerFlow.GetTransactionHistory(h.createRequestContext(c, "/api/v1/ledger/history"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Transaction history failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Transaction history failed", "TRANSACTION_HISTORY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Transaction history listed", result)
}

// GetBillingSummary aggregates the billing dashboard numbers
// @Summary Billing Summary
// @Tags Ledger
// @Accept json
// @Produce json
// @Param request body dto.GetBillingSummaryRequest true "Summary query"
// @Success 200 {object} dto.APIResponse{data=dto.BillingSummaryResponse} "Summary retrieved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/ledger/summary [post]
func (h *LedgerHandler) GetBillingSummary(c fiber.Ctx) error {
	var req dto.GetBillingSummaryRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.ledgerFlow.GetBillingSummary(h.createRequestContext(c, "/api/v1/ledger/summary"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Billing summary failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Billing summary failed", "BILLING_SUMMARY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Billing summary retrieved", result)
}

func (h *LedgerHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *LedgerHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
