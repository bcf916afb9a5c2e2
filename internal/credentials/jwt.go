// Package credentials issues the bearer tokens presented to the settlement
// gateway and verifies the tokens presented to the payout API.
package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/models"
)

// Payload is the data block the gateway expects inside its token
type Payload struct {
	ClientCode string `json:"client_code"`
	Username   string `json:"username"`
	UserID     string `json:"user_id"`
	UserType   string `json:"user_type"`
	UserRole   string `json:"user_role"`
	Nonce      string `json:"nonce"`
}

// GatewayClaims wraps Payload with the registered claims
type GatewayClaims struct {
	Data Payload `json:"data"`
	jwt.RegisteredClaims
}

// Issuer signs one short-lived HS256 token per gateway call
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// NewNonce builds a per-call nonce: client code, unix millis, random suffix
func NewNonce(clientCode string, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", clientCode, at.UnixMilli(), uuid.NewString())
}

// Issue signs a token naming the initiator and a fresh nonce
func (i *Issuer) Issue(initiator models.Initiator) (string, error) {
	now := i.now()
	claims := GatewayClaims{
		Data: Payload{
			ClientCode: initiator.ClientCode,
			Username:   initiator.Username,
			UserID:     initiator.UserID,
			UserType:   initiator.UserType,
			UserRole:   initiator.UserRole,
			Nonce:      NewNonce(initiator.ClientCode, now),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign gateway token: %w", err)
	}
	return token, nil
}

// Parse verifies a token produced by Issue
func (i *Issuer) Parse(tokenString string) (*GatewayClaims, error) {
	claims := &GatewayClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, hmacKey(i.secret), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway token: %w", err)
	}
	return claims, nil
}

// APIClaims identifies the caller of the payout API
type APIClaims struct {
	models.Initiator
	jwt.RegisteredClaims
}

// Verifier checks inbound API bearer tokens
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates signature and expiry and returns the caller
func (v *Verifier) Verify(tokenString string) (*APIClaims, error) {
	claims := &APIClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, hmacKey(v.secret))
	if err != nil || !token.Valid {
		return nil, errors.Unauthorized.Wrap(err).Explain("invalid or expired token")
	}
	if claims.ClientCode == "" && claims.Username == "" {
		return nil, errors.Unauthorized.Explain("token carries no caller identity")
	}
	return claims, nil
}

// Sign issues an API token; used by operators and tests
func (v *Verifier) Sign(initiator models.Initiator, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := APIClaims{
		Initiator: initiator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   initiator.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func hmacKey(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}
}
