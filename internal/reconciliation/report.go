package reconciliation

import (
	"time"

	"github.com/Aidin1998/instapay/pkg/models"
)

// PollResult classifies a poll that did not error
type PollResult string

const (
	PollPending       PollResult = "pending"
	PollSettled       PollResult = "settled"
	PollVoucherPosted PollResult = "voucher_posted"
	PollRejected      PollResult = "rejected"
	PollSkipped       PollResult = "skipped"
)

// PollOutcome describes what one poll did to a transaction
type PollOutcome struct {
	TransactionID uint         `json:"transaction_id"`
	UniqueID      string       `json:"unique_id"`
	Result        PollResult   `json:"result"`
	From          models.State `json:"from"`
	To            models.State `json:"to"`
	VoucherNo     string       `json:"voucher_no,omitempty"`
	// LedgerErr is set when the ledger call after settlement failed
	LedgerErr error `json:"-"`
}

// ReconciliationReport summarises one reconcile cycle. Succeeded counts
// polls whose status was applied; Skipped counts malformed payloads.
type ReconciliationReport struct {
	Processed      int           `json:"processed"`
	Succeeded      int           `json:"succeeded"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	Settled        int           `json:"settled"`
	Rejected       int           `json:"rejected"`
	VouchersPosted int           `json:"vouchers_posted"`
	LedgerFailures int           `json:"ledger_failures"`
	Duration       time.Duration `json:"duration"`
	StartedAt      time.Time     `json:"started_at"`
}

func (r *ReconciliationReport) add(out PollOutcome, err error) {
	r.Processed++
	if err != nil {
		r.Failed++
		return
	}
	if out.Result == PollSkipped {
		r.Skipped++
		return
	}
	r.Succeeded++
	switch out.Result {
	case PollSettled:
		r.Settled++
	case PollVoucherPosted:
		r.Settled++
		r.VouchersPosted++
	case PollRejected:
		r.Rejected++
	}
	if out.LedgerErr != nil {
		r.LedgerFailures++
	}
}
