package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
)

// Issuer выпускает и проверяет сессионные JWT (HS256).
// Токены не хранятся на сервере: валидность вычисляется по подписи и exp.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer создаёт Issuer, пустой секрет - ошибка конфигурации
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, apperr.ErrNoSecret
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// NewToken генерирует JWT-токен для указанного пользователя
func (i *Issuer) NewToken(userID int64) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ParseToken проверяет подпись и срок действия, возвращает ID пользователя из sub
func (i *Issuer) ParseToken(tokenStr string) (int64, error) {
	if tokenStr == "" {
		return 0, apperr.ErrTokenMissing
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperr.ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", apperr.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return 0, apperr.ErrTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid subject", apperr.ErrTokenInvalid)
	}
	return userID, nil
}
