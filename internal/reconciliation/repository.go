package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Aidin1998/instapay/internal/database"
	"github.com/Aidin1998/instapay/pkg/models"
)

// ListFilter narrows a payment listing
type ListFilter struct {
	ClientCode string
	Page       int
	PerPage    int
}

// Repository persists transactions and their history. History is
// append-only: there is no update or delete for it.
type Repository interface {
	ExistsSuccessful(ctx context.Context, clientCode, accountNo string) (bool, error)
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, id uint) (*models.Transaction, error)
	GetByUniqueID(ctx context.Context, uniqueID string) (*models.Transaction, error)
	ListPending(ctx context.Context) ([]models.Transaction, error)
	List(ctx context.Context, f ListFilter) ([]models.Transaction, int64, error)
	// ApplyPoll writes the polled fields and appends the history entry in
	// one database transaction, provided the row is still in expected.
	ApplyPoll(ctx context.Context, tx *models.Transaction, expected models.State, entry *models.TransactionHistory) error
	// SetVoucher moves a settled row without voucher to VOUCHER_POSTED.
	// Callers check the derived state of legacy rows first.
	SetVoucher(ctx context.Context, id uint, voucherNo, actor string) error
	History(ctx context.Context, paymentID uint) ([]models.TransactionHistory, error)
}

// GormRepository is the gorm backed Repository
type GormRepository struct {
	db *gorm.DB
}

var _ Repository = (*GormRepository)(nil)

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) ExistsSuccessful(ctx context.Context, clientCode, accountNo string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("client_code = ? AND bank_acc_no = ?", clientCode, accountNo).
		Where("((state IN ?) OR ((state IS NULL OR state = '') AND lower(payment_status) IN ?))",
			[]models.State{models.StateSuccess, models.StateVoucherPosted},
			[]string{"success", "completed"}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check for successful payment: %w", err)
	}
	return count > 0, nil
}

func (r *GormRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicatePayment.Wrap(err).Explain("a successful payment already exists for client %s and account %s", tx.ClientCode, tx.BankAccNo)
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *GormRepository) Get(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound.Explain("transaction %d not found", id)
		}
		return nil, fmt.Errorf("failed to load transaction %d: %w", id, err)
	}
	return &tx, nil
}

func (r *GormRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("unique_id = ?", uniqueID).Order("id DESC").First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound.Explain("transaction %s not found", uniqueID)
		}
		return nil, fmt.Errorf("failed to load transaction %s: %w", uniqueID, err)
	}
	return &tx, nil
}

// ListPending returns PENDING_APPROVAL rows plus rows written before the
// state column existed that are still awaiting settlement.
func (r *GormRepository) ListPending(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("unique_id IS NOT NULL AND unique_id <> ''").
		Where("(state = ? OR ((state IS NULL OR state = '') AND (payment_status = ? OR (payment_status IS NULL AND status = ?))))",
			models.StatePendingApproval, models.SettlementPendingApproval, models.SubmissionPending).
		Order("id").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return txs, nil
}

func (r *GormRepository) List(ctx context.Context, f ListFilter) ([]models.Transaction, int64, error) {
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	q := r.db.WithContext(ctx).Model(&models.Transaction{})
	if f.ClientCode != "" {
		q = q.Where("client_code = ?", f.ClientCode)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	var txs []models.Transaction
	if err := q.Order("id DESC").Offset((f.Page - 1) * f.PerPage).Limit(f.PerPage).Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, total, nil
}

func (r *GormRepository) ApplyPoll(ctx context.Context, tx *models.Transaction, expected models.State, entry *models.TransactionHistory) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		q := db.Model(&models.Transaction{}).Where("id = ?", tx.ID)
		if expected == "" {
			q = q.Where("(state IS NULL OR state = '')")
		} else {
			q = q.Where("state = ?", expected)
		}
		res := q.Updates(map[string]interface{}{
			"payment_status": tx.PaymentStatus,
			"utr_number":     tx.UTRNumber,
			"urn":            tx.URN,
			"state":          tx.State,
			"updated_by":     tx.UpdatedBy,
		})
		if res.Error != nil {
			if database.IsUniqueViolation(res.Error) {
				return ErrDuplicatePayment.Wrap(res.Error).Explain("client %s already has a successful payment to account %s", tx.ClientCode, tx.BankAccNo)
			}
			return fmt.Errorf("failed to update transaction %d: %w", tx.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition.Explain("transaction %d is no longer in state %s", tx.ID, displayState(expected))
		}
		if err := db.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append history for transaction %d: %w", tx.ID, err)
		}
		return nil
	})
}

func (r *GormRepository) SetVoucher(ctx context.Context, id uint, voucherNo, actor string) error {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND (state = ? OR state IS NULL OR state = '') AND (voucher_no IS NULL OR voucher_no = '')", id, models.StateSuccess).
		Updates(map[string]interface{}{
			"voucher_no": voucherNo,
			"state":      models.StateVoucherPosted,
			"updated_by": actor,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to record voucher for transaction %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition.Explain("transaction %d is not awaiting a voucher", id)
	}
	return nil
}

func (r *GormRepository) History(ctx context.Context, paymentID uint) ([]models.TransactionHistory, error) {
	var entries []models.TransactionHistory
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for transaction %d: %w", paymentID, err)
	}
	return entries, nil
}

func displayState(s models.State) string {
	if s == "" {
		return "(legacy)"
	}
	return string(s)
}
