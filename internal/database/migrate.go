package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/Aidin1998/instapay/pkg/models"
)

// SuccessIndex backs the one-successful-payout-per-beneficiary rule
const SuccessIndex = "ux_insta_payment_success"

// Migrate creates the payout tables and the partial unique index
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.FundRecord{}, &models.Transaction{}, &models.TransactionHistory{}); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	// postgres and sqlite share the partial index syntax
	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON tbl_insta_payment (client_code, bank_acc_no) WHERE state IN ('%s', '%s')",
		SuccessIndex, models.StateSuccess, models.StateVoucherPosted,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", SuccessIndex, err)
	}
	return nil
}
