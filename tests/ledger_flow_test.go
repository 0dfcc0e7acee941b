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

func newLedgerFlow(testDB *testingutil.TestDB) businessflow.LedgerFlow {
	return businessflow.NewLedgerFlow(
		repository.NewTransactionRepository(testDB.DB),
		repository.NewInvoiceRepository(testDB.DB),
		repository.NewConversionRepository(testDB.DB),
		repository.NewCompanyRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		testDB.DB,
		nil, // balance cache disabled
		&config.CacheConfig{},
	)
}

func TestLedgerRechargeAndSpend(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newLedgerFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		t.Run("RechargeIncreasesBalance", func(t *testing.T) {
			result, err := flow.Recharge(ctx, &dto.RechargeRequest{
				CompanyID:     company.ID,
				Amount:        50000,
				PaymentMethod: "bank_transfer",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(50000), result.NewBalance)
			assert.NotEmpty(t, result.TransactionUUID)
		})

		t.Run("SpendDecreasesBalance", func(t *testing.T) {
			result, err := flow.RecordSpend(ctx, &dto.RecordSpendRequest{
				CompanyID:   company.ID,
				Amount:      20000,
				Description: "campaign budget",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(30000), result.NewBalance)
		})

		t.Run("NegativeAdjustmentCorrectsBalance", func(t *testing.T) {
			result, err := flow.RecordAdjustment(ctx, &dto.RecordAdjustmentRequest{
				CompanyID:   company.ID,
				Amount:      -5000,
				Description: "duplicate recharge correction",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(25000), result.NewBalance)
		})

		t.Run("RefundCreditsBalance", func(t *testing.T) {
			result, err := flow.RecordRefund(ctx, &dto.RecordRefundRequest{
				CompanyID:   company.ID,
				Amount:      5000,
				Description: "chargeback credit",
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(30000), result.NewBalance)

			var row models.Transaction
			require.NoError(t, testDB.DB.Where("company_id = ? AND type = ?", company.ID, models.TransactionTypeRefund).First(&row).Error)
			assert.Equal(t, int64(5000), row.Amount)
		})

		t.Run("RejectsZeroAdjustment", func(t *testing.T) {
			_, err := flow.RecordAdjustment(ctx, &dto.RecordAdjustmentRequest{
				CompanyID:   company.ID,
				Amount:      0,
				Description: "noop",
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsAmountTooLow(err))
		})

		t.Run("SpendBeyondBalanceFails", func(t *testing.T) {
			_, err := flow.RecordSpend(ctx, &dto.RecordSpendRequest{
				CompanyID: company.ID,
				Amount:    1000000,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsInsufficientFunds(err))

			// The failed spend must not leave a ledger row behind.
			balance, err := flow.GetBalance(ctx, &dto.GetBalanceRequest{CompanyID: company.ID}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(30000), balance.Balance)
		})

		t.Run("RejectsNonPositiveAmount", func(t *testing.T) {
			_, err := flow.Recharge(ctx, &dto.RechargeRequest{
				CompanyID: company.ID,
				Amount:    0,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsAmountTooLow(err))
		})

		t.Run("RejectsInactiveCompany", func(t *testing.T) {
			dormant, err := fixtures.CreateTestCompany()
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(&models.Company{}).Where("id = ?", dormant.ID).Update("is_active", false).Error)

			_, err = flow.Recharge(ctx, &dto.RechargeRequest{
				CompanyID: dormant.ID,
				Amount:    1000,
			}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsCompanyInactive(err))
		})

		t.Run("RejectsUnknownCompany", func(t *testing.T) {
			_, err := flow.GetBalance(ctx, &dto.GetBalanceRequest{CompanyID: 999999}, metadata)
			require.Error(t, err)
			assert.True(t, businessflow.IsCompanyNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestTransactionHistory(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newLedgerFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := fixtures.CreateTestRecharge(company.ID, 10000)
			require.NoError(t, err)
		}
		_, err = flow.RecordSpend(ctx, &dto.RecordSpendRequest{
			CompanyID: company.ID,
			Amount:    5000,
		}, metadata)
		require.NoError(t, err)

		t.Run("ListsAllTransactions", func(t *testing.T) {
			result, err := flow.GetTransactionHistory(ctx, &dto.GetTransactionHistoryRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
			}, metadata)
			require.NoError(t, err)
			assert.Len(t, result.Items, 4)
		})

		t.Run("FiltersByType", func(t *testing.T) {
			result, err := flow.GetTransactionHistory(ctx, &dto.GetTransactionHistoryRequest{
				CompanyID: company.ID,
				Page:      1,
				PageSize:  10,
				Type:      utils.ToPtr(string(models.TransactionTypeSpend)),
			}, metadata)
			require.NoError(t, err)
			require.Len(t, result.Items, 1)
			assert.Equal(t, int64(-5000), result.Items[0].Amount)
		})

		t.Run("PaginatesHistory", func(t *testing.T) {
			result, err := flow.GetTransactionHistory(ctx, &dto.GetTransactionHistoryRequest{
				CompanyID: company.ID,
				Page:      2,
				PageSize:  3,
			}, metadata)
			require.NoError(t, err)
			assert.Len(t, result.Items, 1)
			assert.Equal(t, int64(4), result.Pagination.TotalItems)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestBillingSummary(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		flow := newLedgerFlow(testDB)
		ctx := testingutil.CreateTestContext()
		metadata := businessflow.NewClientMetadata("127.0.0.1", "test-agent")

		company, err := fixtures.CreateTestCompany()
		require.NoError(t, err)
		_, err = fixtures.CreateTestRecharge(company.ID, 40000)
		require.NoError(t, err)
		_, err = flow.RecordSpend(ctx, &dto.RecordSpendRequest{
			CompanyID: company.ID,
			Amount:    15000,
		}, metadata)
		require.NoError(t, err)
		_, err = fixtures.CreateTestInvoice(company.ID, 7000)
		require.NoError(t, err)

		refCode, err := fixtures.CreateTestRefCode(company.ID, 10)
		require.NoError(t, err)
		// Approved and unbilled counts as payable; pending does not.
		_, err = fixtures.CreateTestConversion(refCode, models.ConversionStatusApproved, 20000)
		require.NoError(t, err)
		_, err = fixtures.CreateTestConversion(refCode, models.ConversionStatusPending, 50000)
		require.NoError(t, err)

		t.Run("AggregatesDashboardNumbers", func(t *testing.T) {
			result, err := flow.GetBillingSummary(ctx, &dto.GetBillingSummaryRequest{
				CompanyID: company.ID,
			}, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(25000), result.Balance)
			assert.Equal(t, int64(2000), result.PayableToAffiliates)
			assert.Equal(t, int64(40000), result.TotalDeposited)
			assert.Equal(t, int64(7000), result.UnpaidInvoiceAmount)
			assert.Equal(t, int64(1), result.UnpaidInvoiceCount)
			assert.Equal(t, int64(15000), result.TotalSpend)
			assert.Equal(t, int64(40000), result.LastRechargeAmount)
			require.NotNil(t, result.LastRechargeAt)
			assert.NotEmpty(t, result.Cashflow)
		})

		return nil
	})
	require.NoError(t, err)
}
