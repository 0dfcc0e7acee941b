// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/config"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoiceFlow(testDB *testingutil.TestDB) businessflow.InvoiceFlow {
	return businessflow.NewInvoiceFlow(
		repository.NewInvoiceRepository(testDB.DB),
		repository.NewPayoutRepository(testDB.DB),
		repository.NewConversionRepository(testDB.DB),
		repository.NewTransactionRepository(testDB.DB),
		repository.NewCompanyRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
		nil,
		&config.CacheConfig{},
		nil,
	)
}

func TestGenerateInvoice(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		t.Run("BillsApprovedConversions", func(t *testing.T) {
			for i := 0; i < 3; i++ {
				_, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
				require.NoError(t, err)
			}
			// Pending and reversed conversions stay out of the invoice.
			_, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)
			_, err = fixtures.CreateTestConversion(refCode, models.ConversionStatusReversed, 10000)
			require.NoError(t, err)

			result, err := flow.GenerateInvoice(ctx, &dto.GenerateInvoiceRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, 3, result.ConversionCount)
			assert.Equal(t, int64(3000), result.Amount)
			assert.NotEmpty(t, result.InvoiceNumber)

			var billed int64
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).
				Where("company_id = ? AND billed_at IS NOT NULL", company.ID).
				Count(&billed).Error)
			assert.Equal(t, int64(3), billed)

			// Issuing the invoice debits the ledger in the same transaction.
			var ledgerRow models.Transaction
			require.NoError(t, testDB.DB.Where("invoice_number = ?", result.InvoiceNumber).First(&ledgerRow).Error)
			assert.Equal(t, models.TransactionTypeInvoice, ledgerRow.Type)
			assert.Equal(t, models.TransactionStatusCompleted, ledgerRow.Status)
			assert.Equal(t, int64(-3000), ledgerRow.Amount)
		})

		t.Run("NothingLeftToInvoice", func(t *testing.T) {
			_, err := flow.GenerateInvoice(ctx, &dto.GenerateInvoiceRequest{
				CompanyID: company.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsNothingToInvoice(err))
		})

		t.Run("SecondInvoiceSkipsBilledConversions", func(t *testing.T) {
			_, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 4000)
			require.NoError(t, err)

			result, err := flow.GenerateInvoice(ctx, &dto.GenerateInvoiceRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, 1, result.ConversionCount)
			assert.Equal(t, int64(400), result.Amount)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestInvoiceLifecycle(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		generate := func(t *testing.T) *models.Invoice {
			_, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			result, err := flow.GenerateInvoice(ctx, &dto.GenerateInvoiceRequest{CompanyID: company.ID}, metadata)
			require.NoError(t, err)

			var invoice models.Invoice
			require.NoError(t, testDB.DB.Where("invoice_number = ?", result.InvoiceNumber).First(&invoice).Error)
			return &invoice
		}

		t.Run("MarkPaidSettlesInvoiceAndConversions", func(t *testing.T) {
			invoice := generate(t)

			result, err := flow.MarkInvoicePaid(ctx, &dto.InvoiceActionRequest{
				CompanyID:     company.ID,
				InvoiceID:     invoice.ID,
				Amount:        invoice.Amount,
				PaymentMethod: "bank_transfer",
			}, metadata)
			require.NoError(t, err)
			require.NotNil(t, result.Item)
			assert.Equal(t, string(models.InvoiceStatusPaid), result.Item.Status)

			var paid int64
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).
				Where("invoice_id = ? AND status = ?", invoice.ID, models.ConversionStatusPaid).
				Count(&paid).Error)
			assert.Equal(t, int64(1), paid)

			// The received payment lands in the ledger as a completed credit.
			var ledgerRow models.Transaction
			require.NoError(t, testDB.DB.
				Where("invoice_number = ? AND amount > 0", invoice.InvoiceNumber).
				First(&ledgerRow).Error)
			assert.Equal(t, invoice.Amount, ledgerRow.Amount)
			assert.Equal(t, models.TransactionTypeInvoice, ledgerRow.Type)
			require.NotNil(t, ledgerRow.PaymentMethod)
			assert.Equal(t, "bank_transfer", *ledgerRow.PaymentMethod)
		})

		t.Run("MarkPaidDefaultsToInvoiceAmount", func(t *testing.T) {
			invoice := generate(t)

			_, err := flow.MarkInvoicePaid(ctx, &dto.InvoiceActionRequest{
				CompanyID: company.ID,
				InvoiceID: invoice.ID,
			}, metadata)
			require.NoError(t, err)

			var ledgerRow models.Transaction
			require.NoError(t, testDB.DB.
				Where("invoice_number = ? AND amount > 0", invoice.InvoiceNumber).
				First(&ledgerRow).Error)
			assert.Equal(t, invoice.Amount, ledgerRow.Amount)
			assert.Nil(t, ledgerRow.PaymentMethod)
		})

		t.Run("MarkPaidTwiceFails", func(t *testing.T) {
			invoice := generate(t)
			_, err := flow.MarkInvoicePaid(ctx, &dto.InvoiceActionRequest{CompanyID: company.ID, InvoiceID: invoice.ID}, metadata)
			require.NoError(t, err)

			_, err = flow.MarkInvoicePaid(ctx, &dto.InvoiceActionRequest{CompanyID: company.ID, InvoiceID: invoice.ID}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvoiceNotOpen(err))
		})

		t.Run("CancelReturnsConversionsToPool", func(t *testing.T) {
			invoice := generate(t)

			result, err := flow.CancelInvoice(ctx, &dto.InvoiceActionRequest{
				CompanyID: company.ID,
				InvoiceID: invoice.ID,
			}, metadata)
			require.NoError(t, err)
			require.NotNil(t, result.Item)
			assert.Equal(t, string(models.InvoiceStatusCanceled), result.Item.Status)

			var stillBilled int64
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).
				Where("invoice_id = ?", invoice.ID).
				Count(&stillBilled).Error)
			assert.Equal(t, int64(0), stillBilled)

			// The unbilled conversion is billable again.
			regen, err := flow.GenerateInvoice(ctx, &dto.GenerateInvoiceRequest{CompanyID: company.ID}, metadata)
			require.NoError(t, err)
			assert.Equal(t, 1, regen.ConversionCount)
		})

		t.Run("CancelFailsWhenConversionAlreadyPaid", func(t *testing.T) {
			invoice := generate(t)
			conversionFlow := newConversionFlow(testDB)

			var conversion models.Conversion
			require.NoError(t, testDB.DB.Where("invoice_id = ?", invoice.ID).First(&conversion).Error)
			_, err := conversionFlow.MarkConversionPaid(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)

			_, err = flow.CancelInvoice(ctx, &dto.InvoiceActionRequest{
				CompanyID: company.ID,
				InvoiceID: invoice.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsConversionLocked(err))

			// The rollback leaves the invoice open and the conversion billed.
			var reloaded models.Invoice
			require.NoError(t, testDB.DB.First(&reloaded, invoice.ID).Error)
			assert.Equal(t, models.InvoiceStatusSent, reloaded.Status)

			var stillBilled int64
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).
				Where("invoice_id = ? AND billed_at IS NOT NULL", invoice.ID).
				Count(&stillBilled).Error)
			assert.Equal(t, int64(1), stillBilled)
		})

		t.Run("CancelPaidInvoiceFails", func(t *testing.T) {
			invoice := generate(t)
			_, err := flow.MarkInvoicePaid(ctx, &dto.InvoiceActionRequest{CompanyID: company.ID, InvoiceID: invoice.ID}, metadata)
			require.NoError(t, err)

			_, err = flow.CancelInvoice(ctx, &dto.InvoiceActionRequest{CompanyID: company.ID, InvoiceID: invoice.ID}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvoiceNotOpen(err))
		})

		t.Run("HidesForeignInvoices", func(t *testing.T) {
			other, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			foreign, err := fixtures.CreateTestInvoice(other.ID, 5000)
			require.NoError(t, err)

			_, err = flow.MarkInvoicePaid(ctx, &dto.InvoiceActionRequest{
				CompanyID: company.ID,
				InvoiceID: foreign.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvoiceNotFound(err))
		})

		t.Run("ListFiltersByStatus", func(t *testing.T) {
			result, err := flow.ListInvoices(ctx, &dto.ListInvoicesRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
				Status:    utils.ToPtr(string(models.InvoiceStatusCanceled)),
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGeneratePayout(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newInvoiceFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		t.Run("NothingBilledNothingToPayout", func(t *testing.T) {
			_, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)

			_, err = flow.GeneratePayout(ctx, &dto.GeneratePayoutRequest{CompanyID: company.ID}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsNothingToPayout(err))
		})

		t.Run("PaysOutBilledConversions", func(t *testing.T) {
			_, err := flow.GenerateInvoice(ctx, &dto.GenerateInvoiceRequest{CompanyID: company.ID}, metadata)
			require.NoError(t, err)

			result, err := flow.GeneratePayout(ctx, &dto.GeneratePayoutRequest{CompanyID: company.ID}, metadata)
			require.NoError(t, err)
			assert.Equal(t, 1, result.ConversionCount)
			assert.Equal(t, int64(1000), result.Amount)

			var remaining int64
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).
				Where("company_id = ? AND status = ?", company.ID, models.ConversionStatusPaid).
				Count(&remaining).Error)
			assert.Equal(t, int64(1), remaining)

			// A paid conversion cannot be paid out again.
			_, err = flow.GeneratePayout(ctx, &dto.GeneratePayoutRequest{CompanyID: company.ID}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsNothingToPayout(err))
		})

		t.Run("ListPayouts", func(t *testing.T) {
			result, err := flow.ListPayouts(ctx, &dto.ListPayoutsRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			assert.Equal(t, int64(1000), result.Items[0].Amount)
		})

		return nil
	})
	require.NoError(t, err)
}
