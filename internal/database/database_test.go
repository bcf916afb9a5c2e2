package database

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/internal/config"
	"github.com/Aidin1998/instapay/pkg/models"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:", AutoMigrate: true}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable(&models.Transaction{}))
	assert.True(t, db.Migrator().HasTable(&models.FundRecord{}))
	assert.True(t, db.Migrator().HasTable(&models.TransactionHistory{}))
	assert.True(t, db.Migrator().HasIndex("tbl_insta_payment", SuccessIndex))

	// migration is repeatable
	require.NoError(t, Migrate(db))
}

func TestSuccessIndexAllowsOneSuccessfulPayout(t *testing.T) {
	db, err := NewSQLiteDB("file::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	row := func(state models.State) *models.Transaction {
		return &models.Transaction{ClientCode: "C1", BankAccNo: "111", Amount: decimal.NewFromInt(10), State: state}
	}

	require.NoError(t, db.Create(row(models.StateFailed)).Error)
	require.NoError(t, db.Create(row(models.StatePendingApproval)).Error)
	require.NoError(t, db.Create(row(models.StateSuccess)).Error)

	err = db.Create(row(models.StateVoucherPosted)).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// a different account is unaffected
	other := row(models.StateSuccess)
	other.BankAccNo = "222"
	assert.NoError(t, db.Create(other).Error)
}

func TestFundRecordBeneficiaryIsUnique(t *testing.T) {
	db, err := NewSQLiteDB("file::memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	rec := func() *models.FundRecord {
		return &models.FundRecord{BankAccNo: "111", IFSCCode: "ICIC0001596", BeneName: "RAVI", UCC: "C1"}
	}
	require.NoError(t, db.Create(rec()).Error)
	err = db.Create(rec()).Error
	assert.True(t, IsUniqueViolation(err))
}
