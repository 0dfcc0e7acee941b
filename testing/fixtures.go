// Package testing provides test utilities and database setup for testing the affiliate engine
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/lib/pq"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCompany creates an active company
func (tf *TestFixtures) CreateTestCompany() (*models.Company, error) {
	company := &models.Company{
		Name:     fmt.Sprintf("Test Company %d", rand.Intn(1000000)),
		IsActive: true,
	}

	if err := tf.DB.DB.Create(company).Error; err != nil {
		return nil, fmt.Errorf("failed to create test company: %w", err)
	}
	return company, nil
}

// CreateTestRefCode creates an active percent-rate ref code for the company
func (tf *TestFixtures) CreateTestRefCode(companyID uint, rate float64) (*models.RefCode, error) {
	refCode := &models.RefCode{
		CompanyID:       companyID,
		Code:            fmt.Sprintf("RC%06d", rand.Intn(1000000)),
		MonetizableType: models.MonetizableTypeLanding,
		MonetizableID:   "landing-1",
		RateType:        models.RateTypePercent,
		CommissionRate:  rate,
		IsActive:        true,
	}

	if err := tf.DB.DB.Create(refCode).Error; err != nil {
		return nil, fmt.Errorf("failed to create test ref code: %w", err)
	}
	return refCode, nil
}

// CreateTestClick creates a valid click attributed to the ref code
func (tf *TestFixtures) CreateTestClick(refCode *models.RefCode, sessionID string) (*models.Click, error) {
	now := utils.UTCNow()
	click := &models.Click{
		CompanyID:   refCode.CompanyID,
		RefCodeID:   refCode.ID,
		RefCode:     refCode.Code,
		SessionID:   sessionID,
		DedupBucket: now.Truncate(utils.ClickDedupBucket),
		Country:     "US",
		DeviceClass: models.DeviceClassDesktop,
		IsValid:     true,
		Timestamp:   now,
	}

	if err := tf.DB.DB.Create(click).Error; err != nil {
		return nil, fmt.Errorf("failed to create test click: %w", err)
	}
	return click, nil
}

// CreateTestConversion creates a conversion attributed to the ref code. The
// commission amount mirrors a percent-rate snapshot of the value.
func (tf *TestFixtures) CreateTestConversion(refCode *models.RefCode, status models.ConversionStatus, value int64) (*models.Conversion, error) {
	commission := int64(float64(value) * refCode.CommissionRate / 100)
	conversion := &models.Conversion{
		CompanyID:            refCode.CompanyID,
		RefCodeID:            refCode.ID,
		RefCode:              refCode.Code,
		ExternalConversionID: fmt.Sprintf("ext-%d", rand.Intn(100000000)),
		ConversionType:       "sale",
		ConversionValue:      value,
		Currency:             "USD",
		CommissionRate:       refCode.CommissionRate,
		RateType:             refCode.RateType,
		CommissionAmount:     commission,
		Status:               status,
		Timestamp:            utils.UTCNow(),
	}

	if err := tf.DB.DB.Create(conversion).Error; err != nil {
		return nil, fmt.Errorf("failed to create test conversion: %w", err)
	}
	return conversion, nil
}

// CreateTestRecharge adds a completed recharge ledger row
func (tf *TestFixtures) CreateTestRecharge(companyID uint, amount int64) (*models.Transaction, error) {
	tx := &models.Transaction{
		CompanyID:   companyID,
		Type:        models.TransactionTypeRecharge,
		Status:      models.TransactionStatusCompleted,
		Amount:      amount,
		Currency:    "USD",
		Description: "test recharge",
	}

	if err := tf.DB.DB.Create(tx).Error; err != nil {
		return nil, fmt.Errorf("failed to create test recharge: %w", err)
	}
	return tx, nil
}

// CreateTestInvoice creates a draft invoice for the company
func (tf *TestFixtures) CreateTestInvoice(companyID uint, amount int64) (*models.Invoice, error) {
	invoice := &models.Invoice{
		CompanyID:     companyID,
		InvoiceNumber: fmt.Sprintf("INV-%d-%d", companyID, rand.Intn(1000000)),
		Amount:        amount,
		Currency:      "USD",
		Status:        models.InvoiceStatusDraft,
	}

	if err := tf.DB.DB.Create(invoice).Error; err != nil {
		return nil, fmt.Errorf("failed to create test invoice: %w", err)
	}
	return invoice, nil
}

// CreateTestWebhookSettings configures an enabled webhook endpoint
func (tf *TestFixtures) CreateTestWebhookSettings(companyID uint, endpoint string) (*models.WebhookSettings, error) {
	settings := &models.WebhookSettings{
		CompanyID:   companyID,
		Endpoint:    endpoint,
		Secret:      "test-webhook-secret-0123456789",
		Enabled:     true,
		MaxAttempts: 3,
		BackoffBase: time.Second,
	}

	if err := tf.DB.DB.Create(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create test webhook settings: %w", err)
	}
	return settings, nil
}

// CreateTestLinkSettings configures the link builder for the company
func (tf *TestFixtures) CreateTestLinkSettings(companyID uint, domains ...string) (*models.LinkSettings, error) {
	settings := &models.LinkSettings{
		CompanyID:        companyID,
		UTMDefaults:      []byte(`{"source":"affiliate","medium":"referral"}`),
		ParamKeys:        []byte(`{"ref":"ref","sub1":"s1","sub2":"s2"}`),
		AllowlistDomains: pq.StringArray(domains),
		Templates:        []byte(`{"default":"https://{domain}/landing/{landingSlug}?{params}"}`),
	}

	if err := tf.DB.DB.Create(settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link settings: %w", err)
	}
	return settings, nil
}

// CreateTestAuditLog creates a test audit log entry
func (tf *TestFixtures) CreateTestAuditLog(companyID *uint, action string, success bool) (*models.AuditLog, error) {
	description := fmt.Sprintf("Test %s action", action)
	ipAddress := "127.0.0.1"
	userAgent := "Test User Agent"

	audit := &models.AuditLog{
		CompanyID:   companyID,
		Action:      action,
		Description: &description,
		Success:     &success,
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}

	if !success {
		errorMessage := "Test failed action"
		audit.ErrorMessage = &errorMessage
	}

	if err := tf.DB.DB.Create(audit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}

	return audit, nil
}
