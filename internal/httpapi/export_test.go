package httpapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Spok95/achievement-service/internal/models"
)

// IssueToken подписывает токен для пользователя (HS256).
func IssueToken(secret string, actor models.Actor, ttl time.Duration, now time.Time) (string, error) {
	roles := make([]string, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		roles = append(roles, string(r))
	}
	claims := Claims{
		UserID: actor.ID,
		Name:   actor.Name,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
