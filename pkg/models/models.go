package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// State is the reconciliation lifecycle state of a payout
type State string

const (
	StateSubmitted       State = "SUBMITTED"
	StatePendingApproval State = "PENDING_APPROVAL"
	StateSuccess         State = "SUCCESS"
	StateFailed          State = "FAILED"
	StateVoucherPosted   State = "VOUCHER_POSTED"
)

// Terminal reports whether no further poll may change the state
func (s State) Terminal() bool {
	return s == StateFailed || s == StateVoucherPosted
}

// Submission status values (tbl_insta_payment.status, tbl_fund_payout_master.payment_status)
const (
	SubmissionPending = "pending"
	SubmissionSuccess = "success"
	SubmissionFailed  = "failed"
)

// SettlementPendingApproval is the gateway's status for a freshly accepted payout
const SettlementPendingApproval = "PENDING FOR APPROVAL"

// Actors recorded on history rows
const (
	ActorCron = "system-cron"
	ActorAPI  = "system-api"
)

// SegmentNSECash is the segment every fund record is opened under
const SegmentNSECash = "NSE_CASH"

// Storage limits for truncated columns
const (
	MaxAccountNo = 50
	MaxIFSC      = 20
	MaxBeneName  = 255
	MaxUniqueID  = 100
)

// Transaction is one payout attempt accepted by the settlement gateway
type Transaction struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	RowID         uint            `json:"row_id" gorm:"column:row_id;index"`
	ClientCode    string          `json:"client_code" gorm:"size:50;index:idx_insta_client_account"`
	BankAccNo     string          `json:"bank_acc_no" gorm:"size:50;index:idx_insta_client_account"`
	IFSCCode      string          `json:"ifsc_code" gorm:"column:ifsc_code;size:20"`
	BeneName      string          `json:"bene_name" gorm:"size:255"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(18,2)"`
	Channel       Channel         `json:"channel" gorm:"size:10"`
	Response      datatypes.JSON  `json:"response,omitempty"`
	Message       string          `json:"message" gorm:"size:255"`
	GatewayUUID   string          `json:"uuid" gorm:"column:gateway_uuid;size:100"`
	UniqueID      string          `json:"unique_id" gorm:"size:100;index"`
	Status        string          `json:"status" gorm:"size:20"`
	PaymentStatus *string         `json:"payment_status" gorm:"size:50"`
	UTRNumber     string          `json:"utr_number" gorm:"column:utr_number;size:100"`
	URN           string          `json:"urn" gorm:"column:urn;size:100"`
	VoucherNo     *string         `json:"voucher_no" gorm:"size:50"`
	State         State           `json:"state" gorm:"size:20;index"`
	CreatedBy     string          `json:"created_by" gorm:"size:50"`
	UpdatedBy     string          `json:"updated_by" gorm:"size:50"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Transaction) TableName() string { return "tbl_insta_payment" }

// CurrentState returns the stored state, deriving one for rows written
// before the state column existed.
func (t *Transaction) CurrentState() State {
	if t.State != "" {
		return t.State
	}
	switch {
	case t.VoucherNo != nil && *t.VoucherNo != "":
		return StateVoucherPosted
	case t.Status == SubmissionFailed:
		return StateFailed
	case t.PaymentStatus == nil && t.Status == SubmissionPending:
		return StatePendingApproval
	case t.PaymentStatus != nil && *t.PaymentStatus == SettlementPendingApproval:
		return StatePendingApproval
	case t.PaymentStatus != nil:
		return StateSuccess
	}
	return StateSubmitted
}

// SettlementStatus dereferences PaymentStatus
func (t *Transaction) SettlementStatus() string {
	if t.PaymentStatus == nil {
		return ""
	}
	return *t.PaymentStatus
}

// FundRecord is the funding request kept per beneficiary bank identity
type FundRecord struct {
	RowID          uint            `json:"row_id" gorm:"column:row_id;primaryKey"`
	EntryDate      time.Time       `json:"entry_date"`
	UCC            string          `json:"ucc" gorm:"column:ucc;size:50;index"`
	Segment        string          `json:"segment" gorm:"size:20"`
	BankName       string          `json:"bank_name" gorm:"size:255"`
	BankAccNo      string          `json:"bank_acc_no" gorm:"size:50;uniqueIndex:ux_fund_beneficiary"`
	IFSCCode       string          `json:"ifsc_code" gorm:"column:ifsc_code;size:20;uniqueIndex:ux_fund_beneficiary"`
	MICRCode       string          `json:"micr_code" gorm:"column:micr_code;size:20"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(18,2)"`
	BeneName       string          `json:"bene_name" gorm:"size:255;uniqueIndex:ux_fund_beneficiary"`
	PaymentStatus  string          `json:"payment_status" gorm:"size:20"`
	InstaPaymentID *uint           `json:"insta_payment_id" gorm:"column:insta_payment_id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (FundRecord) TableName() string { return "tbl_fund_payout_master" }

// TransactionHistory is an append-only record of one received poll response
type TransactionHistory struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	PaymentID     uint            `json:"payment_id" gorm:"index"`
	UniqueID      string          `json:"unique_id" gorm:"size:100;index"`
	ClientCode    string          `json:"client_code" gorm:"size:50"`
	BankAccNo     string          `json:"bank_acc_no" gorm:"size:50"`
	IFSCCode      string          `json:"ifsc_code" gorm:"column:ifsc_code;size:20"`
	BeneName      string          `json:"bene_name" gorm:"size:255"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(18,2)"`
	Status        string          `json:"status" gorm:"size:20"`
	PaymentStatus string          `json:"payment_status" gorm:"size:50"`
	RawResponse   string          `json:"raw_response" gorm:"type:text"`
	URN           string          `json:"urn" gorm:"column:urn;size:100"`
	UTRNumber     string          `json:"utr_number" gorm:"column:utr_number;size:100"`
	CreatedBy     string          `json:"created_by" gorm:"size:50"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (TransactionHistory) TableName() string { return "tbl_transaction_history" }

// BankAccount is one verified beneficiary account from the bank directory
type BankAccount struct {
	AccountNo       string `json:"bank_acno"`
	IFSC            string `json:"ifsc_code_act"`
	BeneficiaryName string `json:"client_name"`
	MICR            string `json:"micr_code"`
	BankName        string `json:"bank_name"`
}

// Initiator identifies who asked for a payout; it is embedded in gateway credentials
type Initiator struct {
	ClientCode string `json:"client_code"`
	Username   string `json:"username"`
	UserID     string `json:"user_id"`
	UserType   string `json:"user_type"`
	UserRole   string `json:"user_role"`
}

// PaymentRequest asks for a payout to a client's registered account
type PaymentRequest struct {
	ClientCode string          `json:"client_code" validate:"required,max=50"`
	BankAccNo  string          `json:"bank_acc_no" validate:"required,max=50"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	AuthToken  string          `json:"-"`
	Initiator  Initiator       `json:"-"`
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
