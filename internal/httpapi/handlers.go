package httpapi

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Spok95/achievement-service/internal/export"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

const (
	defaultHallOfFameLimit = 10
	maxHallOfFameLimit     = 100
	// выгрузка берёт записи постранично, но не больше этого числа
	maxExportRows = 10_000
)

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, badInput("invalid achievement id", map[string]string{"id": "must be a valid UUID"})
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return badInput("malformed request body", nil)
	}
	return nil
}

// parseStudent — необязательный studentId из query.
func parseStudent(c *fiber.Ctx, fields map[string]string) *uuid.UUID {
	raw := strings.TrimSpace(c.Query("studentId"))
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fields["studentId"] = "must be a valid UUID"
		return nil
	}
	return &id
}

func parseSemester(c *fiber.Ctx, fields map[string]string) int {
	raw := strings.TrimSpace(c.Query("semester"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fields["semester"] = "must be 1 or 2"
		return 0
	}
	return n
}

func (s *Server) submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.normalize()
	if err := validateStruct(&req); err != nil {
		return err
	}
	in, err := req.toInput(s.loc)
	if err != nil {
		return err
	}
	a, err := s.svc.Submit(c.UserContext(), in, actorFrom(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "achievement submitted", a)
}

func (s *Server) list(c *fiber.Ctx) error {
	fields := map[string]string{}
	f := models.AchievementFilter{
		StudentID:    parseStudent(c, fields),
		Status:       models.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
		Semester:     parseSemester(c, fields),
		SortAsc:      strings.EqualFold(c.Query("order"), "asc"),
	}
	if len(fields) > 0 {
		return badInput("invalid query", fields)
	}
	page, search := parsePage(c)
	f.Search = search

	res, err := s.svc.Query(c.UserContext(), f, page)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "ok", pageResponse[models.Achievement]{
		Items: res.Items,
		Pagination: pagination{
			Offset: res.Offset, Limit: res.Limit, Total: res.Total, TotalPages: res.TotalPages(),
		},
	})
}

func (s *Server) get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := s.svc.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "ok", d)
}

func (s *Server) update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := validateStruct(&req); err != nil {
		return err
	}
	patch, err := req.toPatch(s.loc)
	if err != nil {
		return err
	}
	a, err := s.svc.Edit(c.UserContext(), id, patch, actorFrom(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "achievement updated", a)
}

// remove всегда отвечает 200: повторное удаление, неизвестный и нечитаемый id — не ошибка.
func (s *Server) remove(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		// такой записи быть не может, удалять нечего
		return respond(c, fiber.StatusOK, "achievement deleted", nil)
	}
	if err := s.svc.SoftDelete(c.UserContext(), id, actorFrom(c)); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "achievement deleted", nil)
}

func (s *Server) approve(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	if err := validateStruct(&req); err != nil {
		return err
	}
	a, err := s.svc.Approve(c.UserContext(), id, req.toInput(), actorFrom(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "achievement approved", a)
}

func (s *Server) reject(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rejectRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.RejectionReason = strings.TrimSpace(req.RejectionReason)
	if err := validateStruct(&req); err != nil {
		return err
	}
	a, err := s.svc.Reject(c.UserContext(), id, workflow.RejectInput{RejectionReason: req.RejectionReason}, actorFrom(c))
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "achievement rejected", a)
}

func (s *Server) hallOfFame(c *fiber.Ctx) error {
	limit := defaultHallOfFameLimit
	if n, ok := atoi(strings.TrimSpace(c.Query("limit"))); ok && n > 0 {
		limit = n
	}
	if limit > maxHallOfFameLimit {
		limit = maxHallOfFameLimit
	}
	entries, err := s.svc.HallOfFame(c.UserContext(), models.HallOfFameFilter{
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
		Limit:        limit,
	})
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.HallOfFameEntry{}
	}
	return respond(c, fiber.StatusOK, "ok", entries)
}

func (s *Server) statisticsFilter(c *fiber.Ctx) (models.StatisticsFilter, error) {
	fields := map[string]string{}
	f := models.StatisticsFilter{
		StudentID:    parseStudent(c, fields),
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
		Semester:     parseSemester(c, fields),
	}
	if len(fields) > 0 {
		return f, badInput("invalid query", fields)
	}
	return f, nil
}

func (s *Server) statsSummary(c *fiber.Ctx) error {
	f, err := s.statisticsFilter(c)
	if err != nil {
		return err
	}
	sum, err := s.svc.StatsSummary(c.UserContext(), f)
	if err != nil {
		return err
	}
	// строки по ученикам отдаются только в выгрузке
	sum.Records = nil
	return respond(c, fiber.StatusOK, "ok", sum)
}

func (s *Server) statsExport(c *fiber.Ctx) error {
	f, err := s.statisticsFilter(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	sum, err := s.svc.StatsSummary(ctx, f)
	if err != nil {
		return err
	}
	items, err := s.svc.QueryAll(ctx, models.AchievementFilter{
		StudentID:    f.StudentID,
		AcademicYear: f.AcademicYear,
		Semester:     f.Semester,
	}, maxExportRows)
	if err != nil {
		return err
	}
	wb, err := export.StatisticsReport(sum, items)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()
	data, err := wb.Bytes()
	if err != nil {
		return err
	}
	c.Attachment(export.StatisticsFilename(f.AcademicYear, f.Semester))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Status(fiber.StatusOK).Send(data)
}
