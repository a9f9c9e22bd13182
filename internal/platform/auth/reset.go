package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const resetPurpose = "password_reset"

// ResetTokenIssuer issues and verifies password-reset tokens.
type ResetTokenIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, passwordHash string) (string, error)
	Verify(ctx context.Context, token string) (*ResetGrant, error)
	Consume(ctx context.Context, grant *ResetGrant) error
}

// ResetGrant is a verified reset token.
type ResetGrant struct {
	UserID      uuid.UUID
	TokenID     string
	Fingerprint string
	ExpiresAt   time.Time
}

// Matches reports whether the grant was issued against passwordHash.
func (g *ResetGrant) Matches(passwordHash string) bool {
	return g.Fingerprint == Fingerprint(passwordHash)
}

type resetClaims struct {
	jwt.RegisteredClaims
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"pwf"`
}

type jwtResetIssuer struct {
	key         []byte
	ttl         time.Duration
	revocations RevocationStore
	now         func() time.Time
}

// NewResetTokenIssuer returns a JWT-backed issuer. Tokens become unusable
// once consumed or once the user's password hash changes.
func NewResetTokenIssuer(key []byte, ttl time.Duration, revocations RevocationStore) ResetTokenIssuer {
	return &jwtResetIssuer{key: key, ttl: ttl, revocations: revocations, now: time.Now}
}

// Fingerprint is a short digest of a password hash.
func Fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

func (i *jwtResetIssuer) Issue(_ context.Context, userID uuid.UUID, passwordHash string) (string, error) {
	now := i.now()
	claims := resetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Purpose:     resetPurpose,
		Fingerprint: Fingerprint(passwordHash),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

func (i *jwtResetIssuer) Verify(ctx context.Context, token string) (*ResetGrant, error) {
	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.Purpose != resetPurpose || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	revoked, err := i.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	return &ResetGrant{
		UserID:      userID,
		TokenID:     claims.ID,
		Fingerprint: claims.Fingerprint,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Consume revokes the grant's token. A second consume of the same token
// fails with ErrTokenInvalid.
func (i *jwtResetIssuer) Consume(ctx context.Context, grant *ResetGrant) error {
	ok, err := i.revocations.Revoke(ctx, grant.TokenID, grant.ExpiresAt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenInvalid
	}
	return nil
}
