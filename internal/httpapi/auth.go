package httpapi

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/models"
)

const (
	actorKey     = "actor"
	requestIDKey = "requestid"
)

// Claims — токен выпускает внешний сервис авторизации, мы его только проверяем.
type Claims struct {
	UserID string   `json:"userId"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// ParseToken проверяет подпись и срок действия и возвращает пользователя.
func ParseToken(secret, raw string) (models.Actor, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Actor{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Actor{}, jwt.ErrSignatureInvalid
	}
	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return models.Actor{}, fmt.Errorf("token has no subject")
	}
	actor := models.Actor{ID: id, Name: claims.Name}
	for _, r := range claims.Roles {
		actor.Roles = append(actor.Roles, models.Role(strings.ToUpper(strings.TrimSpace(r))))
	}
	return actor, nil
}

// AuthRequired достаёт пользователя из заголовка Authorization: Bearer <jwt>.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bearer := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if bearer == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		if len(bearer) < 7 || !strings.EqualFold(bearer[:7], "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "malformed authorization header")
		}
		actor, err := ParseToken(secret, strings.TrimSpace(bearer[7:]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(actorKey, actor)
		c.SetUserContext(ctxutil.WithActorID(c.UserContext(), actor.ID))
		return c.Next()
	}
}

// RolesRequired пропускает только пользователей с одной из ролей.
func RolesRequired(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !actorFrom(c).HasAnyRole(roles...) {
			return fiber.NewError(fiber.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

func actorFrom(c *fiber.Ctx) models.Actor {
	a, _ := c.Locals(actorKey).(models.Actor)
	return a
}
