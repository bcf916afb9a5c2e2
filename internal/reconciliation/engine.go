// Package reconciliation drives payouts from submission to settlement and
// voucher posting.
package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/Aidin1998/instapay/internal/bankdirectory"
	"github.com/Aidin1998/instapay/internal/events"
	"github.com/Aidin1998/instapay/internal/gateway"
	"github.com/Aidin1998/instapay/internal/ledger"
	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/metrics"
	"github.com/Aidin1998/instapay/pkg/models"
	"github.com/Aidin1998/instapay/pkg/validation"
)

// BankDirectory resolves a client's registered bank accounts
type BankDirectory interface {
	Lookup(ctx context.Context, clientCode, authToken string) ([]models.BankAccount, error)
}

// FundLedger keeps the funding record of each beneficiary
type FundLedger interface {
	FindOrCreate(ctx context.Context, acc models.BankAccount, clientCode string, amount decimal.Decimal) (*models.FundRecord, error)
	MarkStatus(ctx context.Context, rowID uint, status string) error
	LinkTransaction(ctx context.Context, rowID, transactionID uint) error
}

// SettlementGateway submits payouts and reports their status
type SettlementGateway interface {
	Submit(ctx context.Context, token string, p gateway.Payout) (*gateway.Submission, error)
	PollStatus(ctx context.Context, token string, channel models.Channel, uniqueID string) ([]byte, error)
}

// CredentialIssuer signs the gateway bearer token
type CredentialIssuer interface {
	Issue(initiator models.Initiator) (string, error)
}

// LedgerPoster records settled payouts in the accounting system
type LedgerPoster interface {
	Post(ctx context.Context, clientCode string, amount decimal.Decimal, utr string) (*ledger.Posting, error)
}

// Dependencies are the collaborators of the engine. Ledger may be nil,
// in which case settled payouts stay in SUCCESS. Events defaults to a no-op.
type Dependencies struct {
	Directory   BankDirectory
	Funds       FundLedger
	Gateway     SettlementGateway
	Credentials CredentialIssuer
	Ledger      LedgerPoster
	Events      events.Publisher
	Validator   *validation.Validator
}

// Options tune a reconcile cycle
type Options struct {
	// Concurrency caps parallel polls; 0 means one goroutine per transaction
	Concurrency int
}

// Engine is the payout lifecycle state machine
type Engine struct {
	repo   Repository
	deps   Dependencies
	opts   Options
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger, repo Repository, deps Dependencies, opts Options) *Engine {
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewValidator(logger)
	}
	return &Engine{
		repo:   repo,
		deps:   deps,
		opts:   opts,
		logger: logger.Named("reconciliation"),
	}
}

// Submit pays a client out to one of its registered accounts
func (e *Engine) Submit(ctx context.Context, req models.PaymentRequest) (*models.Transaction, error) {
	req.ClientCode = strings.TrimSpace(req.ClientCode)
	req.BankAccNo = strings.TrimSpace(req.BankAccNo)
	if err := e.deps.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ErrValidation.Explain("amount must be greater than zero").WithField("gt", "amount", "amount must be greater than zero")
	}

	log := e.logger.With(zap.String("client_code", req.ClientCode), zap.String("bank_acc_no", req.BankAccNo))

	dup, err := e.repo.ExistsSuccessful(ctx, req.ClientCode, req.BankAccNo)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicatePayment.Explain("a successful payment already exists for client %s and account %s", req.ClientCode, req.BankAccNo)
	}

	accounts, err := e.deps.Directory.Lookup(ctx, req.ClientCode, req.AuthToken)
	if err != nil {
		return nil, err
	}
	account, ok := bankdirectory.FindAccount(accounts, req.BankAccNo)
	if !ok {
		return nil, ErrNotFound.Explain("account %s is not registered for client %s", req.BankAccNo, req.ClientCode)
	}
	if strings.TrimSpace(account.IFSC) == "" {
		return nil, ErrValidation.Explain("no IFSC code on record for account %s", req.BankAccNo).
			WithField("required", "ifsc_code", "IFSC code is required")
	}

	fund, err := e.deps.Funds.FindOrCreate(ctx, account, req.ClientCode, req.Amount)
	if err != nil {
		return nil, err
	}

	channel := models.ChannelForAmount(req.Amount)
	initiator := req.Initiator
	if initiator.ClientCode == "" {
		initiator.ClientCode = req.ClientCode
	}
	token, err := e.deps.Credentials.Issue(initiator)
	if err != nil {
		return nil, fmt.Errorf("failed to issue gateway credential: %w", err)
	}

	sub, err := e.deps.Gateway.Submit(ctx, token, gateway.Payout{
		Channel:   channel,
		AccountNo: account.AccountNo,
		IFSC:      account.IFSC,
		BeneName:  account.BeneficiaryName,
		Amount:    req.Amount,
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(channel), "error").Inc()
		if markErr := e.deps.Funds.MarkStatus(ctx, fund.RowID, models.SubmissionFailed); markErr != nil {
			log.Error("failed to mark fund record failed", zap.Uint("row_id", fund.RowID), zap.Error(markErr))
		}
		log.Warn("payout submission failed", zap.String("channel", string(channel)), zap.Error(err))
		if errors.Is(err, ErrGatewaySubmission) {
			return nil, err
		}
		return nil, ErrGatewaySubmission.Wrap(err).Explain("payment gateway call failed")
	}

	status := models.SubmissionFailed
	if sub.Accepted {
		status = models.SubmissionSuccess
	}
	if err := e.deps.Funds.MarkStatus(ctx, fund.RowID, status); err != nil {
		log.Error("failed to record submission status on fund record", zap.Uint("row_id", fund.RowID), zap.Error(err))
	}

	if !CanTransition(models.StateSubmitted, models.StatePendingApproval) {
		return nil, ErrInvalidTransition.Explain("cannot move a submitted payout to %s", models.StatePendingApproval)
	}
	settlement := sub.SettlementStatus
	actor := initiator.Username
	if actor == "" {
		actor = models.ActorAPI
	}
	tx := &models.Transaction{
		RowID:         fund.RowID,
		ClientCode:    models.Truncate(req.ClientCode, 50),
		BankAccNo:     models.Truncate(account.AccountNo, models.MaxAccountNo),
		IFSCCode:      models.Truncate(account.IFSC, models.MaxIFSC),
		BeneName:      models.Truncate(account.BeneficiaryName, models.MaxBeneName),
		Amount:        req.Amount,
		Channel:       channel,
		Response:      datatypes.JSON(sub.Raw),
		Message:       models.Truncate(sub.Message, 255),
		GatewayUUID:   models.Truncate(sub.UUID, 100),
		UniqueID:      models.Truncate(sub.UniqueID, models.MaxUniqueID),
		Status:        status,
		PaymentStatus: &settlement,
		State:         models.StatePendingApproval,
		CreatedBy:     actor,
		UpdatedBy:     actor,
	}
	if len(tx.Response) == 0 || !json.Valid(tx.Response) {
		tx.Response = nil
	}
	if err := e.repo.Create(ctx, tx); err != nil {
		// the gateway already accepted the payout, so this needs a human
		log.Error("payout accepted by gateway but not recorded",
			zap.String("unique_id", sub.UniqueID), zap.Error(err))
		return nil, err
	}

	if err := e.deps.Funds.LinkTransaction(ctx, fund.RowID, tx.ID); err != nil {
		log.Error("failed to link fund record", zap.Uint("row_id", fund.RowID), zap.Uint("transaction_id", tx.ID), zap.Error(err))
	}

	metrics.SubmissionsTotal.WithLabelValues(string(channel), status).Inc()
	log.Info("payout recorded",
		zap.Uint("transaction_id", tx.ID),
		zap.String("unique_id", tx.UniqueID),
		zap.String("channel", string(channel)),
		zap.String("amount", req.Amount.String()))
	e.publish(ctx, tx, models.StateSubmitted)
	return tx, nil
}

// Poll asks the gateway for the settlement status of one pending payout
// and applies it. Each received, decodable answer appends exactly one
// history entry; an undecodable answer changes nothing.
func (e *Engine) Poll(ctx context.Context, tx *models.Transaction, actor string) (PollOutcome, error) {
	from := tx.CurrentState()
	out := PollOutcome{TransactionID: tx.ID, UniqueID: tx.UniqueID, From: from, To: from}
	log := e.logger.With(zap.Uint("transaction_id", tx.ID), zap.String("unique_id", tx.UniqueID))

	if from != models.StatePendingApproval {
		return out, ErrInvalidTransition.Explain("transaction %d is %s and cannot be polled", tx.ID, from)
	}
	if tx.UniqueID == "" {
		return out, ErrValidation.Explain("transaction %d has no gateway reference", tx.ID)
	}
	if actor == "" {
		actor = models.ActorCron
	}

	token, err := e.deps.Credentials.Issue(models.Initiator{ClientCode: tx.ClientCode, Username: actor})
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return out, fmt.Errorf("failed to issue gateway credential: %w", err)
	}
	raw, err := e.deps.Gateway.PollStatus(ctx, token, tx.Channel, tx.UniqueID)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		log.Warn("status poll failed", zap.Error(err))
		return out, err
	}

	decoded := gateway.DecodeStatus(raw)
	if !decoded.Ok() {
		metrics.PollsTotal.WithLabelValues("skipped").Inc()
		log.Warn("unreadable status payload, leaving transaction untouched",
			zap.Error(decoded.Err), zap.ByteString("raw", truncateBytes(raw, 512)))
		out.Result = PollSkipped
		return out, nil
	}
	parsed := decoded.Parsed

	to := MapSettlement(*parsed)
	if !CanTransition(from, to) {
		return out, ErrInvalidTransition.Explain("transaction %d cannot move from %s to %s", tx.ID, from, to)
	}

	expected := tx.State
	updated := *tx
	settlement := models.Truncate(parsed.Status, 50)
	updated.PaymentStatus = &settlement
	if parsed.UTR != "" {
		updated.UTRNumber = models.Truncate(parsed.UTR, 100)
	}
	if parsed.URN != "" {
		updated.URN = models.Truncate(parsed.URN, 100)
	}
	updated.State = to
	updated.UpdatedBy = actor

	entry := &models.TransactionHistory{
		PaymentID:     tx.ID,
		UniqueID:      tx.UniqueID,
		ClientCode:    tx.ClientCode,
		BankAccNo:     tx.BankAccNo,
		IFSCCode:      tx.IFSCCode,
		BeneName:      tx.BeneName,
		Amount:        tx.Amount,
		Status:        tx.Status,
		PaymentStatus: settlement,
		RawResponse:   string(raw),
		URN:           updated.URN,
		UTRNumber:     updated.UTRNumber,
		CreatedBy:     actor,
	}
	if err := e.repo.ApplyPoll(ctx, &updated, expected, entry); err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, ErrDuplicatePayment) {
			log.Error("settlement would duplicate a successful payment, left pending for manual review", zap.Error(err))
		}
		return out, err
	}
	changed := tx.State != updated.State || tx.SettlementStatus() != updated.SettlementStatus() ||
		tx.UTRNumber != updated.UTRNumber || tx.URN != updated.URN
	*tx = updated
	out.To = to

	switch to {
	case models.StateSuccess:
		out.Result = PollSettled
		metrics.PollsTotal.WithLabelValues("settled").Inc()
	case models.StateFailed:
		out.Result = PollRejected
		metrics.PollsTotal.WithLabelValues("rejected").Inc()
	default:
		out.Result = PollPending
		metrics.PollsTotal.WithLabelValues("pending").Inc()
	}
	log.Info("status applied",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("settlement_status", settlement),
		zap.String("utr", tx.UTRNumber))
	if changed {
		e.publish(ctx, tx, from)
	}

	if to == models.StateSuccess {
		voucher, err := e.postLedger(ctx, tx, actor)
		if err != nil {
			log.Error("ledger posting failed, transaction stays in SUCCESS", zap.Error(err))
			out.LedgerErr = err
			return out, nil
		}
		if voucher != "" {
			out.Result = PollVoucherPosted
			out.To = models.StateVoucherPosted
			out.VoucherNo = voucher
		}
	}
	return out, nil
}

// postLedger posts a settled payout and records the voucher. It returns an
// empty voucher when the ledger is not configured or produced none.
func (e *Engine) postLedger(ctx context.Context, tx *models.Transaction, actor string) (string, error) {
	if e.deps.Ledger == nil {
		return "", nil
	}
	posting, err := e.deps.Ledger.Post(ctx, tx.ClientCode, tx.Amount, tx.UTRNumber)
	if err != nil {
		if !errors.Is(err, ErrLedgerPosting) {
			err = ErrLedgerPosting.Wrap(err).Explain("ledger posting failed for transaction %d", tx.ID)
		}
		return "", err
	}
	if !posting.Found {
		e.logger.Info("ledger answered without a voucher number",
			zap.Uint("transaction_id", tx.ID), zap.String("return_value", posting.ReturnValue))
		return "", nil
	}
	if !CanTransition(tx.CurrentState(), models.StateVoucherPosted) {
		return "", ErrInvalidTransition.Explain("transaction %d is %s and cannot take a voucher", tx.ID, tx.CurrentState())
	}
	voucher := models.Truncate(posting.VoucherNo, 50)
	if err := e.repo.SetVoucher(ctx, tx.ID, voucher, actor); err != nil {
		return "", err
	}
	tx.VoucherNo = &voucher
	tx.State = models.StateVoucherPosted
	tx.UpdatedBy = actor
	e.publish(ctx, tx, models.StateSuccess)
	return voucher, nil
}

// ReconcileAll polls every pending payout once. A failing poll never
// aborts the others.
func (e *Engine) ReconcileAll(ctx context.Context, actor string) (*ReconciliationReport, error) {
	start := time.Now()
	report := &ReconciliationReport{StartedAt: start.UTC()}

	pending, err := e.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]PollOutcome, len(pending))
	errs := make([]error, len(pending))

	var g errgroup.Group
	if e.opts.Concurrency > 0 {
		g.SetLimit(e.opts.Concurrency)
	}
	for i := range pending {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("poll panicked: %v", r)
				}
			}()
			outcomes[i], errs[i] = e.Poll(ctx, &pending[i], actor)
			return nil
		})
	}
	_ = g.Wait()

	for i := range pending {
		if errs[i] != nil {
			e.logger.Warn("transaction poll failed",
				zap.Uint("transaction_id", pending[i].ID),
				zap.String("unique_id", pending[i].UniqueID),
				zap.Error(errs[i]))
		}
		report.add(outcomes[i], errs[i])
	}
	report.Duration = time.Since(start)
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	e.logger.Info("reconcile cycle finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("settled", report.Settled),
		zap.Int("vouchers_posted", report.VouchersPosted),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// RepostLedger retries the ledger posting of a settled payout that has
// no voucher yet
func (e *Engine) RepostLedger(ctx context.Context, id uint, actor string) (*models.Transaction, error) {
	tx, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if state := tx.CurrentState(); state != models.StateSuccess || (tx.VoucherNo != nil && *tx.VoucherNo != "") {
		return nil, ErrInvalidTransition.Explain("transaction %d is %s; only settled payouts without a voucher can be reposted", id, state)
	}
	if strings.TrimSpace(tx.UTRNumber) == "" {
		return nil, ErrValidation.Explain("transaction %d has no UTR to post", id)
	}
	if e.deps.Ledger == nil {
		return nil, ErrLedgerPosting.Explain("ledger posting is not configured")
	}
	if actor == "" {
		actor = models.ActorAPI
	}
	voucher, err := e.postLedger(ctx, tx, actor)
	if err != nil {
		return nil, err
	}
	if voucher == "" {
		return tx, ErrLedgerPosting.Explain("ledger returned no voucher number for transaction %d", id)
	}
	return tx, nil
}

// TransactionStatus is a transaction with its poll history, newest first
type TransactionStatus struct {
	Transaction *models.Transaction         `json:"transaction"`
	History     []models.TransactionHistory `json:"history"`
}

// Status looks a payout up by its gateway reference
func (e *Engine) Status(ctx context.Context, uniqueID string) (*TransactionStatus, error) {
	uniqueID = strings.TrimSpace(uniqueID)
	if uniqueID == "" {
		return nil, ErrValidation.Explain("uniqueId is required").WithField("required", "uniqueId", "uniqueId is required")
	}
	tx, err := e.repo.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	history, err := e.repo.History(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	return &TransactionStatus{Transaction: tx, History: history}, nil
}

func (e *Engine) ListPayments(ctx context.Context, f ListFilter) ([]models.Transaction, int64, error) {
	return e.repo.List(ctx, f)
}

func (e *Engine) ListPending(ctx context.Context) ([]models.Transaction, error) {
	return e.repo.ListPending(ctx)
}

func (e *Engine) publish(ctx context.Context, tx *models.Transaction, previous models.State) {
	ev := events.NewStatusEvent(tx, previous)
	if err := e.deps.Events.Publish(ctx, ev); err != nil {
		e.logger.Warn("failed to publish status event",
			zap.Uint("transaction_id", tx.ID), zap.String("state", string(ev.State)), zap.Error(err))
	}
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
