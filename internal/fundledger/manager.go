// Package fundledger keeps one funding record per beneficiary bank identity
package fundledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aidin1998/instapay/pkg/models"
)

// Manager owns tbl_fund_payout_master
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewManager(logger *zap.Logger, db *gorm.DB) *Manager {
	return &Manager{db: db, logger: logger.Named("fundledger")}
}

// FindOrCreate returns the record for the beneficiary's (account, IFSC,
// name), creating it on first use. Amount and bank name are written only
// at creation; later payouts to the same beneficiary do not refresh them.
func (m *Manager) FindOrCreate(ctx context.Context, acc models.BankAccount, clientCode string, amount decimal.Decimal) (*models.FundRecord, error) {
	accountNo := models.Truncate(acc.AccountNo, models.MaxAccountNo)
	ifsc := models.Truncate(acc.IFSC, models.MaxIFSC)
	name := models.Truncate(acc.BeneficiaryName, models.MaxBeneName)

	rec, err := m.find(ctx, accountNo, ifsc, name)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &models.FundRecord{
		EntryDate: time.Now().UTC(),
		UCC:       clientCode,
		Segment:   models.SegmentNSECash,
		BankName:  models.Truncate(acc.BankName, 255),
		BankAccNo: accountNo,
		IFSCCode:  ifsc,
		MICRCode:  models.Truncate(acc.MICR, 20),
		Amount:    amount,
		BeneName:  name,
	}
	// a concurrent creator may win the unique index; read its row back
	res := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bank_acc_no"}, {Name: "ifsc_code"}, {Name: "bene_name"}},
			DoNothing: true,
		}).
		Create(fresh)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create fund record: %w", res.Error)
	}
	if res.RowsAffected == 1 && fresh.RowID != 0 {
		m.logger.Info("fund record created",
			zap.Uint("row_id", fresh.RowID),
			zap.String("client_code", clientCode))
		return fresh, nil
	}

	rec, err = m.find(ctx, accountNo, ifsc, name)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read fund record after conflict: %w", err)
	}
	return rec, nil
}

func (m *Manager) find(ctx context.Context, accountNo, ifsc, name string) (*models.FundRecord, error) {
	var rec models.FundRecord
	err := m.db.WithContext(ctx).
		Where("bank_acc_no = ? AND ifsc_code = ? AND bene_name = ?", accountNo, ifsc, name).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find fund record: %w", err)
	}
	return &rec, nil
}

// MarkStatus records the outcome of the latest submission for the record
func (m *Manager) MarkStatus(ctx context.Context, rowID uint, status string) error {
	err := m.db.WithContext(ctx).Model(&models.FundRecord{}).
		Where("row_id = ?", rowID).
		Update("payment_status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update fund record status: %w", err)
	}
	return nil
}

// LinkTransaction points the record at the payout it funded
func (m *Manager) LinkTransaction(ctx context.Context, rowID, transactionID uint) error {
	err := m.db.WithContext(ctx).Model(&models.FundRecord{}).
		Where("row_id = ?", rowID).
		Update("insta_payment_id", transactionID).Error
	if err != nil {
		return fmt.Errorf("failed to link fund record: %w", err)
	}
	return nil
}

// Get loads a record by row id
func (m *Manager) Get(ctx context.Context, rowID uint) (*models.FundRecord, error) {
	var rec models.FundRecord
	if err := m.db.WithContext(ctx).First(&rec, "row_id = ?", rowID).Error; err != nil {
		return nil, fmt.Errorf("failed to load fund record %d: %w", rowID, err)
	}
	return &rec, nil
}
