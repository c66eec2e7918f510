package httpapi

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/ctxutil"
	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

// Pinger — проверка хранилища для /healthz (у memory-режима его нет).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	JWTSecret     string
	ApproverRoles []models.Role
	Location      *time.Location
	Logger        *zap.Logger
	Health        Pinger
}

type Server struct {
	app    *fiber.App
	svc    *workflow.Service
	log    *zap.Logger
	loc    *time.Location
	health Pinger
}

func New(svc *workflow.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if len(opts.ApproverRoles) == 0 {
		opts.ApproverRoles = []models.Role{models.RoleBK}
	}
	s := &Server{
		svc:    svc,
		log:    opts.Logger,
		loc:    opts.Location,
		health: opts.Health,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "achievement-service",
		ErrorHandler:          errorHandler(opts.Logger),
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{ContextKey: requestIDKey}))
	s.app.Use(cors.New())
	s.app.Use(s.accessLog)

	s.app.Get("/healthz", s.healthz)
	s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := s.app.Group("/api/v1", AuthRequired(opts.JWTSecret))
	ach := api.Group("/achievements")
	// статические пути регистрируются раньше /:id
	ach.Get("/hall-of-fame", s.hallOfFame)
	ach.Get("/stats/summary", s.statsSummary)
	ach.Get("/stats/export", s.statsExport)
	ach.Get("/", s.list)
	ach.Post("/", s.submit)
	ach.Get("/:id", s.get)
	ach.Put("/:id", s.update)
	ach.Delete("/:id", s.remove)

	approvers := RolesRequired(opts.ApproverRoles...)
	ach.Post("/:id/approve", approvers, s.approve)
	ach.Post("/:id/reject", approvers, s.reject)
	return s
}

// App — для app.Test в тестах и для Listen в main.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

// accessLog пишет строку на запрос и считает метрику по шаблону маршрута.
func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	rid, _ := c.Locals(requestIDKey).(string)
	c.SetUserContext(ctxutil.WithRequestID(c.UserContext(), rid))

	err := c.Next()
	if err != nil {
		// ErrorHandler сам запишет ответ; статус берём уже после него
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	code := c.Response().StatusCode()
	route := c.Route().Path
	metrics.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(code)).Inc()

	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("route", route),
		zap.Int("status", code),
		zap.Duration("took", time.Since(start)),
		zap.String("request_id", rid),
	}
	if id, ok := ctxutil.ActorID(c.UserContext()); ok {
		fields = append(fields, zap.String("actor_id", id))
	}
	switch {
	case code >= 500:
		s.log.Error("http request", fields...)
	case code >= 400:
		s.log.Info("http request", fields...)
	default:
		s.log.Debug("http request", fields...)
	}
	return nil
}

func (s *Server) healthz(c *fiber.Ctx) error {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 800*time.Millisecond)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("db not ok: " + err.Error())
		}
	}
	return c.SendString("ok")
}
