package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/api/responses"
	"github.com/Aidin1998/instapay/internal/reconciliation"
	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/models"
	"github.com/Aidin1998/instapay/pkg/validation"
)

// Context keys set by the auth middleware
const (
	InitiatorKey = "initiator"
	AuthTokenKey = "auth_token"
)

// PaymentService is the payout surface of the reconciliation engine
type PaymentService interface {
	Submit(ctx context.Context, req models.PaymentRequest) (*models.Transaction, error)
	Status(ctx context.Context, uniqueID string) (*reconciliation.TransactionStatus, error)
	ListPayments(ctx context.Context, f reconciliation.ListFilter) ([]models.Transaction, int64, error)
	ListPending(ctx context.Context) ([]models.Transaction, error)
	RepostLedger(ctx context.Context, id uint, actor string) (*models.Transaction, error)
}

// CycleRunner runs a reconcile cycle unless one is already in flight
type CycleRunner interface {
	TriggerAs(ctx context.Context, actor string) (*reconciliation.ReconciliationReport, bool, error)
}

// PaymentHandler serves the payout endpoints
type PaymentHandler struct {
	payments  PaymentService
	cycles    CycleRunner
	validator *validation.Validator
	logger    *zap.Logger
}

func NewPaymentHandler(logger *zap.Logger, payments PaymentService, cycles CycleRunner, v *validation.Validator) *PaymentHandler {
	return &PaymentHandler{payments: payments, cycles: cycles, validator: v, logger: logger.Named("payments")}
}

type submitRequest struct {
	ClientCode string          `json:"client_code"`
	BankAccNo  string          `json:"bank_acc_no"`
	Amount     decimal.Decimal `json:"amount"`
}

// Submit handles POST /v1/payment/instanet
func (h *PaymentHandler) Submit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		responses.BadRequest(c, "request body must be JSON with client_code, bank_acc_no and amount")
		return
	}
	initiator := initiatorOf(c)
	req := models.PaymentRequest{
		ClientCode: h.validator.Sanitize(body.ClientCode),
		BankAccNo:  h.validator.Sanitize(body.BankAccNo),
		Amount:     body.Amount,
		AuthToken:  c.GetString(AuthTokenKey),
		Initiator:  initiator,
	}
	if req.Initiator.ClientCode == "" {
		req.Initiator.ClientCode = req.ClientCode
	}

	tx, err := h.payments.Submit(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("payout rejected",
			zap.String("client_code", req.ClientCode),
			zap.String("username", initiator.Username),
			zap.Error(err))
		responses.Fail(c, err)
		return
	}
	responses.Created(c, tx, "Payment initiated")
}

// List handles GET /v1/payment
func (h *PaymentHandler) List(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 20)
	if perPage > 100 {
		perPage = 100
	}
	filter := reconciliation.ListFilter{
		ClientCode: h.validator.Sanitize(c.Query("client_code")),
		Page:       page,
		PerPage:    perPage,
	}
	txs, total, err := h.payments.ListPayments(c.Request.Context(), filter)
	if err != nil {
		responses.Fail(c, err)
		return
	}
	responses.Paginated(c, txs, responses.CreatePaginationMeta(page, perPage, total))
}

// Status handles GET /v1/transaction-status?uniqueId=
func (h *PaymentHandler) Status(c *gin.Context) {
	uniqueID := strings.TrimSpace(c.Query("uniqueId"))
	if uniqueID == "" {
		responses.BadRequest(c, "uniqueId is required", errors.ValidationError{Field: "uniqueId", Message: "uniqueId is required", Code: "required"})
		return
	}
	st, err := h.payments.Status(c.Request.Context(), uniqueID)
	if err != nil {
		responses.Fail(c, err)
		return
	}
	responses.Success(c, st)
}

// Pending handles GET /v1/pending-transactions
func (h *PaymentHandler) Pending(c *gin.Context) {
	txs, err := h.payments.ListPending(c.Request.Context())
	if err != nil {
		responses.Fail(c, err)
		return
	}
	responses.Success(c, txs)
}

// Reconcile handles POST /v1/transactions/reconcile
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	actor := actorOf(c)
	report, ran, err := h.cycles.TriggerAs(c.Request.Context(), actor)
	if !ran {
		responses.Fail(c, errors.Busy.Explain("a reconcile cycle is already running"))
		return
	}
	if err != nil {
		responses.Fail(c, err)
		return
	}
	h.logger.Info("manual reconcile cycle finished", zap.String("actor", actor), zap.Int("processed", report.Processed))
	responses.Success(c, report, "Reconcile cycle completed")
}

// RepostLedger handles POST /v1/transactions/:id/ledger
func (h *PaymentHandler) RepostLedger(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		responses.BadRequest(c, "transaction id must be a positive integer")
		return
	}
	tx, err := h.payments.RepostLedger(c.Request.Context(), uint(id), actorOf(c))
	if err != nil {
		responses.Fail(c, err)
		return
	}
	responses.Success(c, tx, "Voucher posted")
}

func initiatorOf(c *gin.Context) models.Initiator {
	if v, ok := c.Get(InitiatorKey); ok {
		if in, ok := v.(models.Initiator); ok {
			return in
		}
	}
	return models.Initiator{}
}

func actorOf(c *gin.Context) string {
	if name := initiatorOf(c).Username; name != "" {
		return models.Truncate(name, 50)
	}
	return models.ActorAPI
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
