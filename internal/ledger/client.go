// Package ledger posts settled payouts into the accounting system and
// extracts the voucher number it assigns.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/metrics"
)

const paymentPath = "/techexcelapi/index.cfm/PaymentNormal/PaymentNormal"

var voucherPattern = regexp.MustCompile(`VoucherNo-([A-Z0-9]+)`)

// ExtractVoucherNo finds the voucher number in the accounting system's free text answer
func ExtractVoucherNo(raw string) (string, bool) {
	m := voucherPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Options configures the accounting system client
type Options struct {
	BaseURL   string
	Username  string
	Password  string
	BankCode  string
	Segment   string
	Narration string
	// Databases maps a data year to its accounting database
	Databases map[int]string
	Timeout   time.Duration
}

// Posting is the outcome of a ledger call
type Posting struct {
	VoucherNo   string
	Found       bool
	ReturnValue string
	Records     []map[string]interface{}
}

// Client posts payment vouchers
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func NewClient(logger *zap.Logger, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.Named("ledger"),
		now:        time.Now,
	}
}

// Post records a paid-out amount against the client's account, referencing
// the settlement UTR. A response without a voucher number is not an error:
// the returned Posting has Found == false.
func (c *Client) Post(ctx context.Context, clientCode string, amount decimal.Decimal, utr string) (*Posting, error) {
	now := c.now()
	year := now.Year()
	database, ok := c.opts.Databases[year]
	if !ok {
		metrics.LedgerPostings.WithLabelValues("error").Inc()
		return nil, errors.LedgerPosting.Explain("no accounting database configured for year %d", year)
	}

	params := url.Values{}
	params.Set("AccountCode", clientCode)
	params.Set("VoucherDate", now.Format("02/01/2006"))
	params.Set("PostCOCDdata", c.opts.Segment)
	params.Set("Bank_Codedata", c.opts.BankCode)
	params.Set("Amount", amount.StringFixed(2))
	params.Set("Chequeno", "")
	params.Set("NARRATION", c.opts.Narration)
	params.Set("ReferanceNo", utr)
	params.Set("LiveExport", "")
	params.Set("RecoDate", "")
	params.Set("CHEQUE_CAN", "")
	params.Set("UrlUserName", c.opts.Username)
	params.Set("UrlPassword", c.opts.Password)
	params.Set("UrlDatabase", database)
	params.Set("UrlDataYear", strconv.Itoa(year))

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + paymentPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.LedgerPosting.Wrap(err).Explain("failed to build ledger request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.LedgerPostings.WithLabelValues("error").Inc()
		return nil, errors.LedgerPosting.Wrap(err).Explain("ledger call failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.LedgerPostings.WithLabelValues("error").Inc()
		return nil, errors.LedgerPosting.Wrap(err).Explain("failed to read ledger response")
	}
	if resp.StatusCode >= 300 {
		metrics.LedgerPostings.WithLabelValues("error").Inc()
		return nil, errors.LedgerPosting.Explain("ledger answered %d", resp.StatusCode).WithPayload(strings.TrimSpace(string(body)))
	}

	records, err := DecodeRecords(body)
	if err != nil {
		metrics.LedgerPostings.WithLabelValues("error").Inc()
		return nil, errors.LedgerPosting.Wrap(err).Explain("unreadable ledger response")
	}

	posting := &Posting{Records: records}
	if len(records) > 0 {
		if rv, ok := records[0]["returnvalue"]; ok && rv != nil {
			posting.ReturnValue = fmt.Sprint(rv)
		}
	}
	posting.VoucherNo, posting.Found = ExtractVoucherNo(posting.ReturnValue)

	if posting.Found {
		metrics.LedgerPostings.WithLabelValues("posted").Inc()
	} else {
		metrics.LedgerPostings.WithLabelValues("no_voucher").Inc()
	}
	c.logger.Info("ledger posting completed",
		zap.String("client_code", clientCode),
		zap.String("utr", utr),
		zap.Bool("voucher_found", posting.Found),
		zap.String("voucher_no", posting.VoucherNo))
	return posting, nil
}

type resultSet struct {
	Columns []string        `json:"COLUMNS"`
	Data    [][]interface{} `json:"DATA"`
}

// DecodeRecords turns the accounting system's column/row result set into
// records keyed by lower-case column name.
func DecodeRecords(body []byte) ([]map[string]interface{}, error) {
	var sets []resultSet
	if err := json.Unmarshal(body, &sets); err != nil {
		// a single result set is also accepted
		var one resultSet
		if err2 := json.Unmarshal(body, &one); err2 != nil {
			return nil, fmt.Errorf("failed to decode result set: %w", err)
		}
		sets = []resultSet{one}
	}
	if len(sets) == 0 {
		return nil, nil
	}

	first := sets[0]
	records := make([]map[string]interface{}, 0, len(first.Data))
	for _, row := range first.Data {
		rec := make(map[string]interface{}, len(first.Columns))
		for i, col := range first.Columns {
			if i < len(row) {
				rec[strings.ToLower(col)] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
