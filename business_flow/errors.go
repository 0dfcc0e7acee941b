// Package businessflow contains the core business logic and use cases for attribution and billing workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Company-related errors
	ErrCompanyNotFound   = errors.New("company not found")
	ErrCompanyInactive   = errors.New("company is inactive")
	ErrCacheNotAvailable = errors.New("cache not available")

	// Ref code errors
	ErrRefCodeNotFound       = errors.New("ref code not found")
	ErrRefCodeInactive       = errors.New("ref code is inactive")
	ErrRefCodeAlreadyExists  = errors.New("ref code already exists")
	ErrRefCodeRequired       = errors.New("ref code is required")
	ErrInvalidMonetizable    = errors.New("monetizable type must be landing or product")
	ErrInvalidRateType       = errors.New("rate type must be percent or fixed")
	ErrInvalidCommissionRate = errors.New("commission rate is out of range")

	// Click errors
	ErrSessionIDRequired  = errors.New("session ID is required")
	ErrClickNotFound      = errors.New("click not found")
	ErrInvalidFraudReason = errors.New("unrecognized fraud reason")

	// Conversion errors
	ErrConversionNotFound           = errors.New("conversion not found")
	ErrExternalConversionIDRequired = errors.New("external conversion ID is required")
	ErrInvalidConversionValue       = errors.New("conversion value must be positive")
	ErrDuplicateConversion          = errors.New("external conversion ID already ingested")
	ErrInvalidTransition            = errors.New("conversion state transition not allowed")
	ErrConversionLocked             = errors.New("conversion is billed or paid and cannot change")
	ErrConversionAlreadyBilled      = errors.New("conversion is already billed")
	ErrAttributionWindowExpired     = errors.New("attributed click is outside the attribution window")

	// Billing errors
	ErrNothingToInvoice = errors.New("no billable conversions in range")
	ErrNothingToPayout  = errors.New("no payable conversions in range")
	ErrInvoiceNotFound  = errors.New("invoice not found")
	ErrInvoiceNotOpen   = errors.New("invoice is not open")
	ErrPayoutNotFound   = errors.New("payout not found")

	// Ledger errors
	ErrAmountTooLow      = errors.New("amount is too low")
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Link builder errors
	ErrLinkSettingsNotConfigured = errors.New("link settings not configured")
	ErrDomainNotAllowed          = errors.New("target domain not in allowlist")
	ErrInvalidTargetURL          = errors.New("target URL is invalid")

	// Webhook errors
	ErrWebhookEndpointRequired = errors.New("webhook endpoint is required")
	ErrWebhookSecretRequired   = errors.New("webhook secret is required")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrInvalidRange          = errors.New("unrecognized range keyword")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCompanyNotFound(err error) bool {
	return errors.Is(err, ErrCompanyNotFound)
}

func IsCompanyInactive(err error) bool {
	return errors.Is(err, ErrCompanyInactive)
}

func IsCacheNotAvailable(err error) bool {
	return errors.Is(err, ErrCacheNotAvailable)
}

func IsRefCodeNotFound(err error) bool {
	return errors.Is(err, ErrRefCodeNotFound)
}

func IsRefCodeInactive(err error) bool {
	return errors.Is(err, ErrRefCodeInactive)
}

func IsRefCodeAlreadyExists(err error) bool {
	return errors.Is(err, ErrRefCodeAlreadyExists)
}

func IsRefCodeRequired(err error) bool {
	return errors.Is(err, ErrRefCodeRequired)
}

func IsInvalidMonetizable(err error) bool {
	return errors.Is(err, ErrInvalidMonetizable)
}

func IsInvalidRateType(err error) bool {
	return errors.Is(err, ErrInvalidRateType)
}

func IsInvalidCommissionRate(err error) bool {
	return errors.Is(err, ErrInvalidCommissionRate)
}

func IsSessionIDRequired(err error) bool {
	return errors.Is(err, ErrSessionIDRequired)
}

func IsClickNotFound(err error) bool {
	return errors.Is(err, ErrClickNotFound)
}

func IsInvalidFraudReason(err error) bool {
	return errors.Is(err, ErrInvalidFraudReason)
}

func IsConversionNotFound(err error) bool {
	return errors.Is(err, ErrConversionNotFound)
}

func IsExternalConversionIDRequired(err error) bool {
	return errors.Is(err, ErrExternalConversionIDRequired)
}

func IsInvalidConversionValue(err error) bool {
	return errors.Is(err, ErrInvalidConversionValue)
}

func IsDuplicateConversion(err error) bool {
	return errors.Is(err, ErrDuplicateConversion)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsConversionAlreadyBilled(err error) bool {
	return errors.Is(err, ErrConversionAlreadyBilled)
}

func IsConversionLocked(err error) bool {
	return errors.Is(err, ErrConversionLocked)
}

func IsAttributionWindowExpired(err error) bool {
	return errors.Is(err, ErrAttributionWindowExpired)
}

func IsNothingToInvoice(err error) bool {
	return errors.Is(err, ErrNothingToInvoice)
}

func IsNothingToPayout(err error) bool {
	return errors.Is(err, ErrNothingToPayout)
}

func IsInvoiceNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound)
}

func IsInvoiceNotOpen(err error) bool {
	return errors.Is(err, ErrInvoiceNotOpen)
}

func IsPayoutNotFound(err error) bool {
	return errors.Is(err, ErrPayoutNotFound)
}

func IsAmountTooLow(err error) bool {
	return errors.Is(err, ErrAmountTooLow)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsLinkSettingsNotConfigured(err error) bool {
	return errors.Is(err, ErrLinkSettingsNotConfigured)
}

func IsDomainNotAllowed(err error) bool {
	return errors.Is(err, ErrDomainNotAllowed)
}

func IsInvalidTargetURL(err error) bool {
	return errors.Is(err, ErrInvalidTargetURL)
}

func IsWebhookEndpointRequired(err error) bool {
	return errors.Is(err, ErrWebhookEndpointRequired)
}

func IsWebhookSecretRequired(err error) bool {
	return errors.Is(err, ErrWebhookSecretRequired)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsInvalidRange(err error) bool {
	return errors.Is(err, ErrInvalidRange)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}
