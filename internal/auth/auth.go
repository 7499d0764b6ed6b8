package auth

import (
	"crypto/rsa"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

// ClaimsKey is the request-context key under which the authentication
// middleware stores the verified Claims.
const ClaimsKey ctxKey = 1

const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleAdmin    = "admin"
)

// Claims is the (userId, role) pair the identity provider hands us per
// request. Subject carries the user id; the core trusts the pair
// unconditionally once the signature checks out.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// UserID parses the token subject into the numeric user id.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id in token subject %q: %w", c.Subject, err)
	}
	return id, nil
}

// IsPrivileged reports whether the role may act on orders it does not own.
func IsPrivileged(role string) bool {
	return role == RoleSeller || role == RoleAdmin
}

type Keys struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// NewKeys builds the verification keys. privatePEM may be empty when the
// service only validates tokens issued elsewhere.
func NewKeys(privatePEM, publicPEM []byte) (*Keys, error) {
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	k := &Keys{publicKey: publicKey}
	if len(privatePEM) > 0 {
		privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		k.privateKey = privateKey
	}
	return k, nil
}

// NewKeysFromRSA wraps an in-memory key pair, used by tests to mint tokens
// without PEM files on disk.
func NewKeysFromRSA(privateKey *rsa.PrivateKey) *Keys {
	return &Keys{privateKey: privateKey, publicKey: &privateKey.PublicKey}
}

func (k *Keys) GenerateToken(userID int64, role string, ttl time.Duration) (string, error) {
	if k.privateKey == nil {
		return "", fmt.Errorf("no private key configured")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "marketplace-backend",
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(k.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (k *Keys) ValidateToken(tokenStr string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return k.publicKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}
	return claims, nil
}
