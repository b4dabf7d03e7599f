package credentials

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

//Issuer signs and verifies session tokens carrying an account identifier
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

//NewIssuer creates an HS256 token issuer
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

//Issue returns a signed token for the account
func (i *Issuer) Issue(acct string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   acct,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

//Verify validates a token and returns the account it was issued for
func (i *Issuer) Verify(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}

	return claims.Subject, nil
}
