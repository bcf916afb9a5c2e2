// Package bankdirectory resolves a client's verified beneficiary bank accounts
package bankdirectory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/models"
)

const bankDetailsPath = "/v2/account-profile/bank-details"

// Cache keeps recent directory answers per client code
type Cache interface {
	Get(ctx context.Context, clientCode string) ([]models.BankAccount, bool, error)
	Set(ctx context.Context, clientCode string, accounts []models.BankAccount) error
}

// Client calls the account-profile service
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

type bankDetailsResponse struct {
	Status  bool                 `json:"status"`
	Message string               `json:"message"`
	Data    []models.BankAccount `json:"data"`
}

// NewClient creates a directory client. cache may be nil.
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration, cache Cache) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		logger:     logger.Named("bankdirectory"),
	}
}

// Lookup returns every account registered for clientCode. authToken is the
// caller's own token and is forwarded unchanged.
func (c *Client) Lookup(ctx context.Context, clientCode, authToken string) ([]models.BankAccount, error) {
	if c.cache != nil {
		accounts, ok, err := c.cache.Get(ctx, clientCode)
		if err != nil {
			c.logger.Warn("bank directory cache read failed", zap.String("client_code", clientCode), zap.Error(err))
		} else if ok {
			return accounts, nil
		}
	}

	accounts, err := c.fetch(ctx, clientCode, authToken)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, clientCode, accounts); err != nil {
			c.logger.Warn("bank directory cache write failed", zap.String("client_code", clientCode), zap.Error(err))
		}
	}
	return accounts, nil
}

func (c *Client) fetch(ctx context.Context, clientCode, authToken string) ([]models.BankAccount, error) {
	endpoint := c.baseURL + bankDetailsPath + "?client_code=" + url.QueryEscape(clientCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build bank details request: %w", err)
	}
	req.Header.Set("authToken", authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bank details: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bank details: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NotFound.Explain("no bank details found for client %s", clientCode)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errors.Unauthorized.Explain("bank directory rejected the caller's token")
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bank details fetch failed with status %d", resp.StatusCode)
	}

	var out bankDetailsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode bank details: %w", err)
	}
	if !out.Status {
		c.logger.Info("bank directory returned no data", zap.String("client_code", clientCode), zap.String("message", out.Message))
		return nil, errors.NotFound.Explain("no bank details found for client %s", clientCode)
	}
	return out.Data, nil
}

// FindAccount picks the entry whose account number matches
func FindAccount(accounts []models.BankAccount, accountNo string) (models.BankAccount, bool) {
	for _, a := range accounts {
		if a.AccountNo == accountNo {
			return a, true
		}
	}
	return models.BankAccount{}, false
}
