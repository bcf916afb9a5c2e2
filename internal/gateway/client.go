// Package gateway talks to the RTGS/NEFT settlement gateway over mutual TLS
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/metrics"
	"github.com/Aidin1998/instapay/pkg/models"
)

const defaultTimeout = 30 * time.Second

// Payout is one instruction to move money to a beneficiary
type Payout struct {
	Channel   models.Channel
	AccountNo string
	IFSC      string
	BeneName  string
	Amount    decimal.Decimal
}

// Submission is what the gateway answered to an accepted payout
type Submission struct {
	// Accepted mirrors the gateway's top level status flag
	Accepted         bool
	UniqueID         string
	SettlementStatus string
	Message          string
	UUID             string
	Raw              json.RawMessage
}

type submitResponse struct {
	Status             json.RawMessage `json:"status"`
	Message            string          `json:"message"`
	TransactionDetails struct {
		Response json.RawMessage `json:"response"`
		UUID     string          `json:"uuid"`
	} `json:"transactionDetails"`
}

type submitDetail struct {
	UniqueID string `json:"UNIQUEID"`
	Status   string `json:"STATUS"`
}

// Client is the settlement gateway client
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient creates a gateway client. tlsConfig may be nil for plain HTTP
// test gateways; production passes the mTLS configuration.
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration, tlsConfig *tls.Config) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: transport},
		timeout:    timeout,
		logger:     logger.Named("gateway"),
	}
}

// Submit sends a payout on its channel. RTGS names the beneficiary
// payeeName, NEFT names it beneName.
func (c *Client) Submit(ctx context.Context, token string, p Payout) (*Submission, error) {
	if !p.Channel.Valid() {
		return nil, errors.Validation.Explain("unknown settlement channel %q", p.Channel)
	}
	nameField := "beneName"
	if p.Channel == models.ChannelRTGS {
		nameField = "payeeName"
	}
	payload := map[string]interface{}{
		"beneAccNo": p.AccountNo,
		"beneIFSC":  p.IFSC,
		"amount":    json.Number(p.Amount.String()),
		nameField:   p.BeneName,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payout: %w", err)
	}

	status, raw, err := c.do(ctx, http.MethodPost, "/"+string(p.Channel), token, body, "submit")
	if err != nil {
		if errors.Is(err, errors.GatewayTimeout) {
			return nil, err
		}
		return nil, errors.GatewaySubmission.Wrap(err).Explain("payment gateway call failed")
	}
	if status >= 300 {
		return nil, errors.GatewaySubmission.Explain("payment gateway rejected the payout with status %d", status).
			WithPayload(payloadOf(raw))
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.GatewaySubmission.Wrap(err).Explain("payment gateway answer is not JSON").
			WithPayload(payloadOf(raw))
	}

	detail := submitDetail{}
	if inner, ok := unquote(resp.TransactionDetails.Response); ok {
		_ = json.Unmarshal(inner, &detail)
	} else if len(resp.TransactionDetails.Response) > 0 {
		_ = json.Unmarshal(resp.TransactionDetails.Response, &detail)
	}
	if detail.UniqueID == "" {
		return nil, errors.GatewaySubmission.Explain("payment gateway returned no transaction reference").
			WithPayload(payloadOf(raw))
	}

	sub := &Submission{
		Accepted:         truthy(resp.Status),
		UniqueID:         detail.UniqueID,
		SettlementStatus: detail.Status,
		Message:          resp.Message,
		UUID:             resp.TransactionDetails.UUID,
		Raw:              json.RawMessage(raw),
	}
	if sub.SettlementStatus == "" {
		sub.SettlementStatus = models.SettlementPendingApproval
	}
	c.logger.Info("payout submitted",
		zap.String("channel", string(p.Channel)),
		zap.String("unique_id", sub.UniqueID),
		zap.String("settlement_status", sub.SettlementStatus))
	return sub, nil
}

// PollStatus fetches the raw status payload for a submitted payout. The
// payload is returned undecoded; see DecodeStatus.
func (c *Client) PollStatus(ctx context.Context, token string, channel models.Channel, uniqueID string) ([]byte, error) {
	if !channel.Valid() {
		return nil, errors.Validation.Explain("unknown settlement channel %q", channel)
	}
	path := "/" + string(channel) + "/tx-status?transRefNo=" + url.QueryEscape(uniqueID)
	status, raw, err := c.do(ctx, http.MethodGet, path, token, nil, "poll")
	if err != nil {
		if errors.Is(err, errors.GatewayTimeout) {
			return nil, err
		}
		return nil, errors.Gateway.Wrap(err).Explain("failed to fetch transaction status")
	}
	if status >= 300 {
		return nil, errors.Gateway.Explain("status endpoint answered %d", status).WithPayload(payloadOf(raw))
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte, op string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		if isTimeout(err) {
			return 0, nil, errors.GatewayTimeout.Wrap(err).Explain("payment gateway did not answer within %s", c.timeout)
		}
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return 0, nil, errors.GatewayTimeout.Wrap(err).Explain("payment gateway did not answer within %s", c.timeout)
		}
		return 0, nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// payloadOf keeps the gateway's error body, decoded when it is JSON
func payloadOf(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(raw))
}

// truthy follows the gateway's loose status flag: true, "true", "success", 1
func truthy(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && s != "false" && s != "failed" && s != "0"
	}
	return false
}
