package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// BillingHandlerInterface defines the contract for invoice and payout handlers
type BillingHandlerInterface interface {
	GenerateInvoice(c fiber.Ctx) error
	MarkInvoicePaid(c fiber.Ctx) error
	CancelInvoice(c fiber.Ctx) error
	ListInvoices(c fiber.Ctx) error
	GeneratePayout(c fiber.Ctx) error
	ListPayouts(c fiber.Ctx) error
}

// BillingHandler handles invoice and payout HTTP requests
type BillingHandler struct {
	invoiceFlow businessflow.InvoiceFlow
	validator   *validator.Validate
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(invoiceFlow businessflow.InvoiceFlow) *BillingHandler {
	return &BillingHandler{
		invoiceFlow: invoiceFlow,
		validator:   validator.New(),
	}
}

func (h *BillingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *BillingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GenerateInvoice batches approved unbilled conversions into one invoice
// @Summary Generate Invoice
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body dto.GenerateInvoiceRequest true "Generation bounds"
// @Success 201 {object} dto.APIResponse{data=dto.GenerateInvoiceResponse} "Invoice generated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Nothing to invoice"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/invoices [post]
func (h *BillingHandler) GenerateInvoice(c fiber.Ctx) error {
	var req dto.GenerateInvoiceRequest
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

	result, err := h.invoiceFlow.GenerateInvoice(h.createRequestContext(c, "/api/v1/billing/invoices"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsNothingToInvoice(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "No billable conversions in range", "NOTHING_TO_INVOICE", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Invoice generation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Invoice generation failed", "INVOICE_GENERATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// MarkInvoicePaid settles one open invoice
// @Summary Mark Invoice Paid
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param request body dto.InvoiceActionRequest true "Action data"
// @Success 200 {object} dto.APIResponse{data=dto.InvoiceActionResponse} "Invoice paid"
// @Failure 404 {object} dto.APIResponse "Invoice not found"
// @Failure 409 {object} dto.APIResponse "Invoice not open"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/invoices/{id}/paid [post]
func (h *BillingHandler) MarkInvoicePaid(c fiber.Ctx) error {
	return h.runInvoiceAction(c, "paid", h.invoiceFlow.MarkInvoicePaid)
}

// CancelInvoice voids one open invoice and unbills its conversions
// @Summary Cancel Invoice
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path int true "Invoice ID"
// @Param request body dto.InvoiceActionRequest true "Action data"
// @Success 200 {object} dto.APIResponse{data=dto.InvoiceActionResponse} "Invoice canceled"
// @Failure 404 {object} dto.APIResponse "Invoice not found"
// @Failure 409 {object} dto.APIResponse "Invoice not open or has paid conversions"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/invoices/{id}/cancel [post]
func (h *BillingHandler) CancelInvoice(c fiber.Ctx) error {
	return h.runInvoiceAction(c, "cancel", h.invoiceFlow.CancelInvoice)
}

func (h *BillingHandler) runInvoiceAction(c fiber.Ctx, action string, fn func(context.Context, *dto.InvoiceActionRequest, *businessflow.ClientMetadata) (*dto.InvoiceActionResponse, error)) error {
	invoiceID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || invoiceID == 0 {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid invoice ID", "INVALID_INVOICE_ID", nil)
	}

	var req dto.InvoiceActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.InvoiceID = uint(invoiceID)

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := fn(h.createRequestContext(c, "/api/v1/billing/invoices/"+c.Params("id")+"/"+action), &req, metadata)
	if err != nil {
		if businessflow.IsInvoiceNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Invoice not found", "INVOICE_NOT_FOUND", nil)
		}
		if businessflow.IsInvoiceNotOpen(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Invoice is not open", "INVOICE_NOT_OPEN", nil)
		}
		if businessflow.IsConversionLocked(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Invoice has paid conversions", "CONVERSION_LOCKED", nil)
		}

		log.Println("Invoice action failed", action, err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Invoice action failed", "INVOICE_ACTION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ListInvoices lists invoices for a company
// @Summary List Invoices
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body dto.ListInvoicesRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.ListInvoicesResponse} "Invoices listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/invoices/list [post]
func (h *BillingHandler) ListInvoices(c fiber.Ctx) error {
	var req dto.ListInvoicesRequest
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

	result, err := h.invoiceFlow.ListInvoices(h.createRequestContext(c, "/api/v1/billing/invoices/list"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Invoice listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Invoice listing failed", "INVOICE_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Invoices listed", result)
}

// GeneratePayout batches billed unpaid conversions into one payout
// @Summary Generate Payout
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body dto.GeneratePayoutRequest true "Generation bounds"
// @Success 201 {object} dto.APIResponse{data=dto.GeneratePayoutResponse} "Payout generated"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Nothing to pay out"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/payouts [post]
func (h *BillingHandler) GeneratePayout(c fiber.Ctx) error {
	var req dto.GeneratePayoutRequest
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

	result, err := h.invoiceFlow.GeneratePayout(h.createRequestContext(c, "/api/v1/billing/payouts"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsNothingToPayout(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "No payable conversions in range", "NOTHING_TO_PAYOUT", nil)
		}
		if businessflow.IsInvalidRange(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid range keyword", "INVALID_RANGE", nil)
		}

		log.Println("Payout generation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payout generation failed", "PAYOUT_GENERATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, result.Message, result)
}

// ListPayouts lists payouts for a company
// @Summary List Payouts
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body dto.ListPayoutsRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.ListPayoutsResponse} "Payouts listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/payouts/list [post]
func (h *BillingHandler) ListPayouts(c fiber.Ctx) error {
	var req dto.ListPayoutsRequest
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

	result, err := h.invoiceFlow.ListPayouts(h.createRequestContext(c, "/api/v1/billing/payouts/list"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Payout listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Payout listing failed", "PAYOUT_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Payouts listed", result)
}

func (h *BillingHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 60*time.Second)
}

func (h *BillingHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
