package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/go-storefront/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	AccountID int64       `json:"account_id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenMaker issues and verifies HS256 access tokens.
type TokenMaker struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenMaker(secret string, ttl time.Duration) (*TokenMaker, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	return &TokenMaker{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (m *TokenMaker) Create(account *models.Account) (string, time.Time, error) {
	issued := m.now()
	expires := issued.Add(m.ttl)
	claims := &Claims{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(account.ID, 10),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(issued),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (m *TokenMaker) Verify(tokenStr string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.AccountID == 0 || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return &Principal{AccountID: claims.AccountID, Email: claims.Email, Role: claims.Role}, nil
}
