// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/aimarket/affiliate-engine/app/dto"
	businessflow "github.com/aimarket/affiliate-engine/business_flow"
	"github.com/aimarket/affiliate-engine/models"
	"github.com/aimarket/affiliate-engine/repository"
	testingutil "github.com/aimarket/affiliate-engine/testing"
	"github.com/aimarket/affiliate-engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversionFlow(testDB *testingutil.TestDB) businessflow.ConversionFlow {
	return businessflow.NewConversionFlow(
		repository.NewConversionRepository(testDB.DB),
		repository.NewRefCodeRepository(testDB.DB),
		repository.NewClickRepository(testDB.DB),
		repository.NewInvoiceRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
		nil, // no webhook fanout in tests
	)
}

func TestIngestConversion(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newConversionFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 12.5)
		require.NoError(t, err)

		t.Run("SnapshotsCommissionOnIngest", func(t *testing.T) {
			result, err := flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              refCode.Code,
				ExternalConversionID: "order-1001",
				ConversionType:       "purchase",
				ConversionValue:      20000,
				Currency:             "USD",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, string(models.ConversionStatusPending), result.Status)
			assert.Equal(t, int64(2500), result.CommissionAmount)

			var stored models.Conversion
			require.NoError(t, testDB.DB.Where("external_conversion_id = ?", "order-1001").First(&stored).Error)
			assert.Equal(t, 12.5, stored.CommissionRate)
			assert.Equal(t, models.RateTypePercent, stored.RateType)
		})

		t.Run("RejectsDuplicateExternalID", func(t *testing.T) {
			req := &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              refCode.Code,
				ExternalConversionID: "order-1002",
				ConversionValue:      5000,
			}
			first, err := flow.IngestConversion(ctx, req, metadata)
			require.NoError(t, err)

			req.ConversionValue = 99999 // replayed postback with a different value
			_, err = flow.IngestConversion(ctx, req, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsDuplicateConversion(err))

			var stored []models.Conversion
			require.NoError(t, testDB.DB.Where("company_id = ? AND external_conversion_id = ?", company.ID, "order-1002").Find(&stored).Error)
			require.Len(t, stored, 1)
			assert.Equal(t, first.UUID, stored[0].UUID.String())
			assert.Equal(t, int64(5000), stored[0].ConversionValue)
		})

		t.Run("KeepsRateSnapshotAfterRefCodeChange", func(t *testing.T) {
			snapshotCode, err := fixtures.CreateTestRefCode(company.ID, 10)
			require.NoError(t, err)
			first, err := flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              snapshotCode.Code,
				ExternalConversionID: "order-snapshot-1",
				ConversionValue:      10000,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(1000), first.CommissionAmount)

			require.NoError(t, testDB.DB.Model(&models.RefCode{}).Where("id = ?", snapshotCode.ID).Update("commission_rate", 50).Error)

			second, err := flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              snapshotCode.Code,
				ExternalConversionID: "order-snapshot-2",
				ConversionValue:      10000,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(5000), second.CommissionAmount)

			// The earlier conversion keeps the rate it was ingested under.
			var stored models.Conversion
			require.NoError(t, testDB.DB.Where("external_conversion_id = ?", "order-snapshot-1").First(&stored).Error)
			assert.Equal(t, float64(10), stored.CommissionRate)
			assert.Equal(t, int64(1000), stored.CommissionAmount)
		})

		t.Run("RejectsInactiveRefCode", func(t *testing.T) {
			inactive, err := fixtures.CreateTestRefCode(company.ID, 10)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.RefCode{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

			_, err = flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              inactive.Code,
				ExternalConversionID: "order-inactive-1",
				ConversionValue:      1000,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsRefCodeInactive(err))
		})

		t.Run("RejectsUnknownRefCode", func(t *testing.T) {
			_, err := flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              "GHOST",
				ExternalConversionID: "order-ghost-1",
				ConversionValue:      1000,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsRefCodeNotFound(err))
		})

		t.Run("RejectsExpiredAttributionWindow", func(t *testing.T) {
			staleCode, err := fixtures.CreateTestRefCode(company.ID, 10)
			require.NoError(t, err)
			click, err := fixtures.CreateTestClick(staleCode, "sess-stale-1")
			require.NoError(t, err)
			stale := utils.UTCNow().Add(-31 * 24 * time.Hour)
			require.NoError(t, testDB.DB.Model(&models.Click{}).Where("id = ?", click.ID).Update("timestamp", stale).Error)

			_, err = flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              staleCode.Code,
				ExternalConversionID: "order-stale-1",
				ConversionValue:      1000,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsAttributionWindowExpired(err))
		})

		t.Run("RejectsNonPositiveValue", func(t *testing.T) {
			_, err := flow.IngestConversion(ctx, &dto.IngestConversionRequest{
				CompanyID:            company.ID,
				RefCode:              refCode.Code,
				ExternalConversionID: "order-zero-1",
				ConversionValue:      0,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidConversionValue(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestConversionLifecycle(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newConversionFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		t.Run("ApprovesPendingConversion", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)

			result, err := flow.ApproveConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			require.NotNil(t, result.Item)
			assert.Equal(t, string(models.ConversionStatusApproved), result.Item.Status)

			repeat, err := flow.ApproveConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Conversion already approved", repeat.Message)
		})

		t.Run("RejectsApproveOnReversed", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusReversed, 10000)
			require.NoError(t, err)

			_, err = flow.ApproveConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidTransition(err))
		})

		t.Run("ReversesApprovedConversion", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)

			result, err := flow.ReverseConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			require.NotNil(t, result.Item)
			assert.Equal(t, string(models.ConversionStatusReversed), result.Item.Status)

			repeat, err := flow.ReverseConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Conversion already reversed", repeat.Message)
		})

		t.Run("LocksBilledConversionAgainstReversal", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).Where("id = ?", conversion.ID).Update("billed_at", utils.UTCNow()).Error)

			_, err = flow.ReverseConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsConversionLocked(err))
		})

		t.Run("BillsApprovedConversionOntoOpenInvoice", func(t *testing.T) {
			invoice := &models.Invoice{
				CompanyID:     company.ID,
				InvoiceNumber: "INV-TEST-100",
				Amount:        1000,
				Currency:      utils.DefaultCurrency,
				Status:        models.InvoiceStatusSent,
			}
			require.NoError(t, testDB.DB.Create(invoice).Error)

			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)

			result, err := flow.BillConversion(ctx, &dto.BillConversionRequest{
				CompanyID:     company.ID,
				ConversionID:  conversion.ID,
				InvoiceNumber: invoice.InvoiceNumber,
			}, metadata)
			require.NoError(t, err)
			require.NotNil(t, result.Item)

			var reloaded models.Conversion
			require.NoError(t, testDB.DB.First(&reloaded, conversion.ID).Error)
			require.NotNil(t, reloaded.BilledAt)
			require.NotNil(t, reloaded.InvoiceID)
			assert.Equal(t, invoice.ID, *reloaded.InvoiceID)

			_, err = flow.BillConversion(ctx, &dto.BillConversionRequest{
				CompanyID:     company.ID,
				ConversionID:  conversion.ID,
				InvoiceNumber: invoice.InvoiceNumber,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsConversionAlreadyBilled(err))
		})

		t.Run("BillRejectsClosedInvoice", func(t *testing.T) {
			invoice := &models.Invoice{
				CompanyID:     company.ID,
				InvoiceNumber: "INV-TEST-101",
				Amount:        1000,
				Currency:      utils.DefaultCurrency,
				Status:        models.InvoiceStatusPaid,
			}
			require.NoError(t, testDB.DB.Create(invoice).Error)

			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)

			_, err = flow.BillConversion(ctx, &dto.BillConversionRequest{
				CompanyID:     company.ID,
				ConversionID:  conversion.ID,
				InvoiceNumber: invoice.InvoiceNumber,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvoiceNotOpen(err))
		})

		t.Run("BillRejectsPendingConversion", func(t *testing.T) {
			invoice := &models.Invoice{
				CompanyID:     company.ID,
				InvoiceNumber: "INV-TEST-102",
				Amount:        1000,
				Currency:      utils.DefaultCurrency,
				Status:        models.InvoiceStatusSent,
			}
			require.NoError(t, testDB.DB.Create(invoice).Error)

			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)

			_, err = flow.BillConversion(ctx, &dto.BillConversionRequest{
				CompanyID:     company.ID,
				ConversionID:  conversion.ID,
				InvoiceNumber: invoice.InvoiceNumber,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidTransition(err))
		})

		t.Run("UnbillReturnsConversionToPool", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).Where("id = ?", conversion.ID).Update("billed_at", utils.UTCNow()).Error)

			result, err := flow.UnbillConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Conversion unbilled", result.Message)

			var reloaded models.Conversion
			require.NoError(t, testDB.DB.First(&reloaded, conversion.ID).Error)
			assert.Nil(t, reloaded.BilledAt)
			assert.Nil(t, reloaded.InvoiceID)

			repeat, err := flow.UnbillConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Conversion already unbilled", repeat.Message)
		})

		t.Run("UnbillRejectsPaidConversion", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).Where("id = ?", conversion.ID).Update("billed_at", utils.UTCNow()).Error)

			_, err = flow.MarkConversionPaid(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)

			_, err = flow.UnbillConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsConversionLocked(err))
		})

		t.Run("MarksBilledConversionPaid", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Conversion{}).Where("id = ?", conversion.ID).Update("billed_at", utils.UTCNow()).Error)

			result, err := flow.MarkConversionPaid(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			require.NotNil(t, result.Item)
			assert.Equal(t, string(models.ConversionStatusPaid), result.Item.Status)

			repeat, err := flow.MarkConversionPaid(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, "Conversion already paid", repeat.Message)
		})

		t.Run("RejectsPayingUnbilledConversion", func(t *testing.T) {
			conversion, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 10000)
			require.NoError(t, err)

			_, err = flow.MarkConversionPaid(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInvalidTransition(err))
		})

		t.Run("HidesForeignConversions", func(t *testing.T) {
			other, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			otherCode, err := fixtures.CreateTestRefCode(other.ID, 10)
			require.NoError(t, err)
			conversion, err := fixtures.CreateTestConversion(otherCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)

			_, err = flow.ApproveConversion(ctx, &dto.ConversionActionRequest{
				CompanyID:    company.ID,
				ConversionID: conversion.ID,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsConversionNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestListConversions(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newConversionFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 10000)
			require.NoError(t, err)
		}
		approved, err := fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 5000)
		require.NoError(t, err)

		t.Run("ListsAllForCompany", func(t *testing.T) {
			result, err := flow.ListConversions(ctx, &dto.ListConversionsRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
			}, metadata)
			require.NoError(t, err)
			assert.Len(t, result.Items, 4)
		})

		t.Run("FiltersByStatus", func(t *testing.T) {
			status := string(models.ConversionStatusApproved)
			result, err := flow.ListConversions(ctx, &dto.ListConversionsRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
				Status:    &status,
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			assert.Equal(t, approved.ExternalConversionID, result.Items[0].ExternalConversionID)
		})

		t.Run("FiltersByExternalIDQuery", func(t *testing.T) {
			result, err := flow.ListConversions(ctx, &dto.ListConversionsRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
				Query:     utils.ToPtr(approved.ExternalConversionID),
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
		})

		return nil
	})
	require.NoError(t, err)
}
