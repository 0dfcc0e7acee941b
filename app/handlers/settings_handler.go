// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
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

// SettingsHandlerInterface defines the contract for settings handlers
type SettingsHandlerInterface interface {
	SaveWebhookSettings(c fiber.Ctx) error
	GetWebhookSettings(c fiber.Ctx) error
	ListWebhookDeliveries(c fiber.Ctx) error
	SaveLinkSettings(c fiber.Ctx) error
	GetLinkSettings(c fiber.Ctx) error
}

// SettingsHandler handles webhook and link settings HTTP requests
type SettingsHandler struct {
	settingsFlow businessflow.SettingsFlow
	validator    *validator.Validate
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settingsFlow businessflow.SettingsFlow) *SettingsHandler {
	return &SettingsHandler{
		settingsFlow: settingsFlow,
		validator:    validator.New(),
	}
}

func (h *SettingsHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *SettingsHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SaveWebhookSettings creates or updates a company's webhook configuration
// @Summary Save Webhook Settings
// @Description Configure the endpoint, secret and retry policy for conversion webhooks
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body dto.SaveWebhookSettingsRequest true "Webhook configuration"
// @Success 200 {object} dto.APIResponse{data=dto.WebhookSettingsResponse} "Settings saved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/webhook [put]
func (h *SettingsHandler) SaveWebhookSettings(c fiber.Ctx) error {
	var req dto.SaveWebhookSettingsRequest
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

	result, err := h.settingsFlow.SaveWebhookSettings(h.createRequestContext(c, "/api/v1/settings/webhook"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}
		if businessflow.IsWebhookEndpointRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Webhook endpoint is required", "WEBHOOK_ENDPOINT_REQUIRED", nil)
		}
		if businessflow.IsWebhookSecretRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Webhook secret is required", "WEBHOOK_SECRET_REQUIRED", nil)
		}

		log.Println("Webhook settings save failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook settings save failed", "WEBHOOK_SETTINGS_SAVE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Webhook settings saved", result)
}

// GetWebhookSettings returns a company's webhook configuration
// @Summary Get Webhook Settings
// @Description Current webhook configuration for a company, secret omitted
// @Tags Settings
// @Produce json
// @Param company_id path integer true "Company ID"
// @Success 200 {object} dto.APIResponse{data=dto.WebhookSettingsResponse} "Settings returned"
// @Failure 400 {object} dto.APIResponse "Invalid company ID"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/webhook/{company_id} [get]
func (h *SettingsHandler) GetWebhookSettings(c fiber.Ctx) error {
	companyID, ok := parseCompanyParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid company ID", "INVALID_COMPANY_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.settingsFlow.GetWebhookSettings(h.createRequestContext(c, "/api/v1/settings/webhook/:company_id"), companyID, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Webhook settings fetch failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook settings fetch failed", "WEBHOOK_SETTINGS_FETCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Webhook settings returned", result)
}

// ListWebhookDeliveries lists delivery attempts for a company
// @Summary List Webhook Deliveries
// @Description Delivery attempt log for a company's webhooks, newest first
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body dto.ListWebhookDeliveriesRequest true "Listing filters"
// @Success 200 {object} dto.APIResponse{data=dto.ListWebhookDeliveriesResponse} "Deliveries listed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/webhook/deliveries [post]
func (h *SettingsHandler) ListWebhookDeliveries(c fiber.Ctx) error {
	var req dto.ListWebhookDeliveriesRequest
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

	result, err := h.settingsFlow.ListWebhookDeliveries(h.createRequestContext(c, "/api/v1/settings/webhook/deliveries"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Webhook delivery listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook delivery listing failed", "WEBHOOK_DELIVERY_LISTING_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Webhook deliveries listed", result)
}

// SaveLinkSettings creates or updates a company's link builder configuration
// @Summary Save Link Settings
// @Description Configure UTM defaults, param keys, allowlisted domains and URL templates
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body dto.SaveLinkSettingsRequest true "Link builder configuration"
// @Success 200 {object} dto.APIResponse{data=dto.LinkSettingsResponse} "Settings saved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/link [put]
func (h *SettingsHandler) SaveLinkSettings(c fiber.Ctx) error {
	var req dto.SaveLinkSettingsRequest
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

	result, err := h.settingsFlow.SaveLinkSettings(h.createRequestContext(c, "/api/v1/settings/link"), &req, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Link settings save failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link settings save failed", "LINK_SETTINGS_SAVE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link settings saved", result)
}

// GetLinkSettings returns a company's link builder configuration
// @Summary Get Link Settings
// @Description Current link builder configuration for a company
// @Tags Settings
// @Produce json
// @Param company_id path integer true "Company ID"
// @Success 200 {object} dto.APIResponse{data=dto.LinkSettingsResponse} "Settings returned"
// @Failure 400 {object} dto.APIResponse "Invalid company ID"
// @Failure 404 {object} dto.APIResponse "Company not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/settings/link/{company_id} [get]
func (h *SettingsHandler) GetLinkSettings(c fiber.Ctx) error {
	companyID, ok := parseCompanyParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid company ID", "INVALID_COMPANY_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.settingsFlow.GetLinkSettings(h.createRequestContext(c, "/api/v1/settings/link/:company_id"), companyID, metadata)
	if err != nil {
		if businessflow.IsCompanyNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Company not found", "COMPANY_NOT_FOUND", nil)
		}

		log.Println("Link settings fetch failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link settings fetch failed", "LINK_SETTINGS_FETCH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link settings returned", result)
}

func (h *SettingsHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *SettingsHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
