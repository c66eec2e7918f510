package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/achievement-service/internal/metrics"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/scoring"
)

const (
	DefaultPageLimit = 25
	MaxPageLimit     = 100
)

type Options struct {
	Table scoring.Table
	// HallOfFameLevels — пусто: DefaultHallOfFameLevels.
	HallOfFameLevels []models.Level
	// ApproverRoles — роли, которым разрешено согласование. Пусто: проверку делает транспорт.
	ApproverRoles []models.Role
	Now           func() time.Time
	Logger        *zap.Logger
}

// Service — оркестратор жизненного цикла достижения. Каждая операция выполняется
// в одной транзакции: запись, журнал, статистика и доска почёта меняются вместе.
type Service struct {
	store Store
	dir   Directory

	table         scoring.Table
	approverRoles []models.Role
	now           func() time.Time
	log           *zap.Logger

	history *HistoryRecorder
	stats   *StatisticsAggregator
	hof     *HallOfFamePromoter
}

func New(store Store, dir Directory, opts Options) *Service {
	if opts.Table.Level == nil || opts.Table.Rank == nil {
		opts.Table = scoring.DefaultTable()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		dir:           dir,
		table:         opts.Table,
		approverRoles: opts.ApproverRoles,
		now:           opts.Now,
		log:           opts.Logger,
		history:       NewHistoryRecorder(opts.Now),
		stats:         NewStatisticsAggregator(store),
		hof:           NewHallOfFamePromoter(opts.HallOfFameLevels, opts.Now),
	}
}

// Detail — запись вместе с журналом согласования.
type Detail struct {
	Achievement *models.Achievement           `json:"achievement"`
	History     []models.ApprovalHistoryEntry `json:"history"`
}

type QueryResult struct {
	Items  []models.Achievement `json:"items"`
	Total  int                  `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

// TotalPages — число страниц при текущем лимите.
func (r *QueryResult) TotalPages() int {
	if r.Limit <= 0 {
		return 0
	}
	return (r.Total + r.Limit - 1) / r.Limit
}

func (s *Service) finish(op string, start time.Time, err error, fields ...zap.Field) {
	result := "ok"
	if err != nil {
		result = strings.ToLower(string(KindOf(err)))
	}
	metrics.ObserveWorkflow(op, result, time.Since(start))
	switch KindOf(err) {
	case "":
		s.log.Debug(op, fields...)
	case KindInternal:
		s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	default:
		s.log.Info(op+" rejected", append(fields, zap.String("reason", Message(err)))...)
	}
}

func requireActor(op string, actor models.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return forbiddenErr(op, "actor is required")
	}
	return nil
}

func (s *Service) requireApprover(op string, actor models.Actor) error {
	if err := requireActor(op, actor); err != nil {
		return err
	}
	if len(s.approverRoles) > 0 && !actor.HasAnyRole(s.approverRoles...) {
		return forbiddenErr(op, "only approvers can process achievements")
	}
	return nil
}

// Submit создаёт запись в статусе PENDING с рассчитанными баллами.
func (s *Service) Submit(ctx context.Context, in SubmitInput, actor models.Actor) (res *models.Achievement, err error) {
	const op = "achievement.submit"
	start := time.Now()
	defer func() {
		s.finish(op, start, err, zap.String("actor", actor.ID), zap.Stringer("student", in.StudentID))
	}()

	if err = requireActor(op, actor); err != nil {
		return nil, err
	}
	now := s.now()
	if errs := validateSubmit(in, now); len(errs) > 0 {
		return nil, validationErr(op, errs)
	}

	student, err := s.dir.Student(ctx, in.StudentID)
	if err != nil {
		return nil, referenceErr(op, "studentId", "student", err)
	}
	category, err := s.dir.Category(ctx, in.CategoryID)
	if err != nil {
		return nil, referenceErr(op, "categoryId", "category", err)
	}

	a := s.build(in, student, category, actor, now)

	if a.IdempotencyKey != nil {
		existing, err := s.byIdempotencyKey(ctx, *a.IdempotencyKey)
		if err != nil {
			return nil, wrap(op, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertAchievement(ctx, a); err != nil {
			return err
		}
		if _, err := s.history.Record(ctx, tx, a.ID, models.ActionSubmit, models.StatusPending, models.StatusPending, actor, ""); err != nil {
			return err
		}
		return s.stats.ApplyCreate(ctx, tx, a)
	})
	if errors.Is(err, ErrDuplicateKey) && a.IdempotencyKey != nil {
		// параллельная отправка с тем же ключом успела раньше
		existing, lerr := s.byIdempotencyKey(ctx, *a.IdempotencyKey)
		if lerr == nil && existing != nil {
			return existing, nil
		}
		return nil, conflictErr(op, "duplicate submission")
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	return a, nil
}

func (s *Service) byIdempotencyKey(ctx context.Context, key string) (*models.Achievement, error) {
	var found *models.Achievement
	err := s.store.WithTx(ctx, func(tx Tx) error {
		a, err := tx.AchievementByIdempotencyKey(ctx, key)
		found = a
		return err
	})
	return found, err
}

func referenceErr(op, field, what string, err error) error {
	if errors.Is(err, ErrUnknownReference) {
		return validationErr(op, map[string]string{field: what + " does not exist"})
	}
	return internalErr(op, err)
}

func (s *Service) build(in SubmitInput, st *models.Student, cat *models.Category, actor models.Actor, now time.Time) *models.Achievement {
	score := s.table.Score(cat.BasePoints, in.Level, in.Rank)
	now = now.UTC()
	a := &models.Achievement{
		ID:              uuid.New(),
		StudentID:       in.StudentID,
		StudentNISN:     st.NISN,
		StudentName:     st.Name,
		StudentClass:    st.ClassName,
		CategoryID:      in.CategoryID,
		CategoryCode:    cat.Code,
		CategoryName:    cat.Name,
		CategoryType:    cat.Type.Normalize(),
		ReportedBy:      actor.ID,
		ReportedByName:  actor.Name,
		ReporterRole:    actor.PrimaryRole(),
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		AchievementDate: in.AchievementDate.UTC(),
		Location:        in.Location,
		Organizer:       in.Organizer,
		Level:           in.Level,
		StudentRole:     in.StudentRole,
		CertificateURL:  in.CertificateURL,
		EvidenceURLs:    append([]string{}, in.EvidenceURLs...),
		PhotoURLs:       append([]string{}, in.PhotoURLs...),
		BasePoints:      score.BasePoints,
		LevelMultiplier: score.LevelMultiplier,
		RankMultiplier:  score.RankMultiplier,
		Points:          score.Points,
		Status:          models.StatusPending,
		AcademicYear:    in.AcademicYear,
		Semester:        in.Semester,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       actor.ID,
	}
	if in.Rank != nil {
		a.Rank = models.RankPtr(*in.Rank)
	}
	if in.IsTeamAchievement {
		a.IsTeamAchievement = true
		a.TeamName = in.TeamName
		a.TeamMembers = append([]models.TeamMember(nil), in.TeamMembers...)
	}
	if k := strings.TrimSpace(in.IdempotencyKey); k != "" {
		a.IdempotencyKey = &k
	}
	return a
}

// load — запись под блокировкой; удалённая запись для операций не существует.
func load(ctx context.Context, op string, tx Tx, id uuid.UUID) (*models.Achievement, error) {
	a, err := tx.AchievementByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Deleted() {
		return nil, notFoundErr(op, "achievement")
	}
	return a, nil
}

// Approve переводит PENDING -> APPROVED и при необходимости включает запись в доску почёта.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, in ApproveInput, actor models.Actor) (res *models.Achievement, err error) {
	const op = "achievement.approve"
	start := time.Now()
	defer func() { s.finish(op, start, err, zap.Stringer("id", id), zap.String("actor", actor.ID)) }()

	if err = s.requireApprover(op, actor); err != nil {
		return nil, err
	}
	now := s.now()
	if errs := validateApprove(in, now); len(errs) > 0 {
		return nil, validationErr(op, errs)
	}

	var promoted *models.HallOfFameEntry
	err = s.store.WithTx(ctx, func(tx Tx) error {
		cur, err := load(ctx, op, tx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(op, cur.Status, models.StatusApproved); err != nil {
			return err
		}
		from := cur.Status
		at := now.UTC()
		next := cur.Clone()
		next.Status = models.StatusApproved
		next.ApprovedAt = &at
		next.ApprovedBy = models.StrPtr(actor.ID)
		next.ApprovedByName = models.StrPtr(actor.Name)
		if in.Notes != "" {
			next.ApprovalNotes = models.StrPtr(in.Notes)
		}
		next.IsPublished = in.IsPublished
		next.IsFeatured = in.IsFeatured
		next.FeaturedUntil = nil
		if in.IsFeatured && in.FeaturedUntil != nil {
			fu := in.FeaturedUntil.UTC()
			next.FeaturedUntil = &fu
		}
		next.UpdatedAt = at
		next.UpdatedBy = actor.ID

		ok, err := tx.TransitionStatus(ctx, next, from)
		if err != nil {
			return err
		}
		if !ok {
			return conflictErr(op, "achievement is already processed")
		}
		if _, err := s.history.Record(ctx, tx, id, models.ActionApprove, from, models.StatusApproved, actor, in.Notes); err != nil {
			return err
		}
		if err := s.stats.ApplyTransition(ctx, tx, next, from, models.StatusApproved); err != nil {
			return err
		}
		promoted, err = s.hof.MaybePromote(ctx, tx, next)
		if err != nil {
			return err
		}
		res = next
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	if promoted != nil {
		metrics.HallOfFamePromotions.Inc()
		s.log.Info("hall of fame entry created", zap.Stringer("achievement", id), zap.String("level", string(promoted.Level)))
	}
	return res, nil
}

// Reject переводит PENDING -> REJECTED с обязательной причиной.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, in RejectInput, actor models.Actor) (res *models.Achievement, err error) {
	const op = "achievement.reject"
	start := time.Now()
	defer func() { s.finish(op, start, err, zap.Stringer("id", id), zap.String("actor", actor.ID)) }()

	if err = s.requireApprover(op, actor); err != nil {
		return nil, err
	}
	if errs := validateReject(in); len(errs) > 0 {
		return nil, validationErr(op, errs)
	}
	reason := strings.TrimSpace(in.RejectionReason)

	err = s.store.WithTx(ctx, func(tx Tx) error {
		cur, err := load(ctx, op, tx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(op, cur.Status, models.StatusRejected); err != nil {
			return err
		}
		from := cur.Status
		at := s.now().UTC()
		next := cur.Clone()
		next.Status = models.StatusRejected
		next.RejectedAt = &at
		next.RejectedBy = models.StrPtr(actor.ID)
		next.RejectedByName = models.StrPtr(actor.Name)
		next.RejectionReason = models.StrPtr(reason)
		next.UpdatedAt = at
		next.UpdatedBy = actor.ID

		ok, err := tx.TransitionStatus(ctx, next, from)
		if err != nil {
			return err
		}
		if !ok {
			return conflictErr(op, "achievement is already processed")
		}
		if _, err := s.history.Record(ctx, tx, id, models.ActionReject, from, models.StatusRejected, actor, reason); err != nil {
			return err
		}
		if err := s.stats.ApplyTransition(ctx, tx, next, from, models.StatusRejected); err != nil {
			return err
		}
		res = next
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return res, nil
}

// Edit правит описательные поля PENDING-записи. Баллы и статистика не меняются.
func (s *Service) Edit(ctx context.Context, id uuid.UUID, patch EditPatch, actor models.Actor) (res *models.Achievement, err error) {
	const op = "achievement.edit"
	start := time.Now()
	defer func() { s.finish(op, start, err, zap.Stringer("id", id), zap.String("actor", actor.ID)) }()

	if err = requireActor(op, actor); err != nil {
		return nil, err
	}
	now := s.now()
	err = s.store.WithTx(ctx, func(tx Tx) error {
		cur, err := load(ctx, op, tx, id)
		if err != nil {
			return err
		}
		if err := CheckEditable(op, cur.Status); err != nil {
			return err
		}
		if patch.Empty() {
			res = cur
			return nil
		}
		next := applyPatch(cur, patch)
		if errs := validateEdited(next, now); len(errs) > 0 {
			return validationErr(op, errs)
		}
		next.AchievementDate = next.AchievementDate.UTC()
		next.UpdatedAt = now.UTC()
		next.UpdatedBy = actor.ID
		ok, err := tx.UpdateContent(ctx, next)
		if err != nil {
			return err
		}
		if !ok {
			return conflictErr(op, "cannot update achievement that is already processed")
		}
		if !next.AchievementDate.Equal(cur.AchievementDate) {
			if err := s.stats.RefreshLastDate(ctx, tx, next.StatisticsKey()); err != nil {
				return err
			}
		}
		res = next
		return nil
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return res, nil
}

// SoftDelete помечает запись удалённой и снимает её вклад из статистики.
// Повторное удаление и удаление несуществующей записи ничего не делают.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID, actor models.Actor) (err error) {
	const op = "achievement.delete"
	start := time.Now()
	defer func() { s.finish(op, start, err, zap.Stringer("id", id), zap.String("actor", actor.ID)) }()

	if err = requireActor(op, actor); err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx Tx) error {
		cur, err := tx.AchievementByID(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil || cur.Deleted() {
			return nil
		}
		ok, err := tx.MarkDeleted(ctx, id, actor.ID, s.now().UTC())
		if err != nil || !ok {
			return err
		}
		return s.stats.ApplyDelete(ctx, tx, cur)
	})
	return wrap(op, err)
}

// NormalizePage приводит пагинацию к допустимым границам.
func NormalizePage(p models.Page) models.Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Query — список по фильтрам. Фильтры проверяются, удалённые записи не возвращаются.
func (s *Service) Query(ctx context.Context, f models.AchievementFilter, p models.Page) (res *QueryResult, err error) {
	const op = "achievement.query"
	start := time.Now()
	defer func() { s.finish(op, start, err) }()

	errs := fieldErrors{}
	if f.Status != "" && !f.Status.Valid() {
		errs.add("status", "must be one of PENDING, APPROVED, REJECTED")
	}
	if f.AcademicYear != "" {
		if _, perr := models.ParseAcademicYear(f.AcademicYear); perr != nil {
			errs.add("academicYear", "must be in YYYY/YYYY format")
		}
	}
	if f.Semester != 0 && f.Semester != 1 && f.Semester != 2 {
		errs.add("semester", "must be 1 or 2")
	}
	if len(errs) > 0 {
		return nil, validationErr(op, errs)
	}
	f.Search = strings.TrimSpace(f.Search)
	p = NormalizePage(p)

	items, total, err := s.store.ListAchievements(ctx, f, p)
	if err != nil {
		return nil, wrap(op, err)
	}
	if items == nil {
		items = []models.Achievement{}
	}
	return &QueryResult{Items: items, Total: total, Offset: p.Offset, Limit: p.Limit}, nil
}

// QueryAll выбирает все записи по фильтру постранично, но не больше max.
func (s *Service) QueryAll(ctx context.Context, f models.AchievementFilter, max int) ([]models.Achievement, error) {
	out := []models.Achievement{}
	p := models.Page{Limit: MaxPageLimit}
	for len(out) < max {
		res, err := s.Query(ctx, f, p)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		if len(res.Items) < p.Limit || p.Offset+len(res.Items) >= res.Total {
			break
		}
		p.Offset += p.Limit
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// Get — запись с журналом согласования.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (res *Detail, err error) {
	const op = "achievement.get"
	start := time.Now()
	defer func() { s.finish(op, start, err, zap.Stringer("id", id)) }()

	a, err := s.store.GetAchievement(ctx, id)
	if err != nil {
		return nil, wrap(op, err)
	}
	if a == nil || a.Deleted() {
		return nil, notFoundErr(op, "achievement")
	}
	h, err := s.history.HistoryFor(ctx, s.store, id)
	if err != nil {
		return nil, wrap(op, err)
	}
	if h == nil {
		h = []models.ApprovalHistoryEntry{}
	}
	return &Detail{Achievement: a, History: h}, nil
}

// History — только журнал согласования.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]models.ApprovalHistoryEntry, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.History, nil
}

// HallOfFame — активные записи: сначала более высокий уровень, затем более свежая дата.
func (s *Service) HallOfFame(ctx context.Context, f models.HallOfFameFilter) (res []models.HallOfFameEntry, err error) {
	const op = "halloffame.list"
	start := time.Now()
	defer func() { s.finish(op, start, err) }()

	if f.AcademicYear != "" {
		if _, perr := models.ParseAcademicYear(f.AcademicYear); perr != nil {
			return nil, validationErr(op, map[string]string{"academicYear": "must be in YYYY/YYYY format"})
		}
	}
	res, err = s.store.ListHallOfFame(ctx, f)
	if err != nil {
		return nil, wrap(op, err)
	}
	SortHallOfFame(res)
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (s *Service) StatsSummary(ctx context.Context, f models.StatisticsFilter) (res *models.StatisticsSummary, err error) {
	const op = "statistics.summary"
	start := time.Now()
	defer func() { s.finish(op, start, err) }()

	if f.AcademicYear != "" {
		if _, perr := models.ParseAcademicYear(f.AcademicYear); perr != nil {
			return nil, validationErr(op, map[string]string{"academicYear": "must be in YYYY/YYYY format"})
		}
	}
	if f.Semester != 0 && f.Semester != 1 && f.Semester != 2 {
		return nil, validationErr(op, map[string]string{"semester": "must be 1 or 2"})
	}
	res, err = s.stats.SummaryFor(ctx, f)
	if err != nil {
		return nil, wrap(op, err)
	}
	return res, nil
}

// Recompute перестраивает одну строку статистики. true — найдено и исправлено расхождение.
func (s *Service) Recompute(ctx context.Context, key models.StatisticsKey) (drift bool, err error) {
	const op = "statistics.recompute"
	start := time.Now()
	defer func() { s.finish(op, start, err, zap.Stringer("student", key.StudentID)) }()

	drift, err = s.stats.Recompute(ctx, key)
	if err != nil {
		return false, wrap(op, err)
	}
	if drift {
		metrics.StatisticsDrift.Inc()
		s.log.Warn("statistics drift repaired",
			zap.Stringer("student", key.StudentID), zap.String("year", key.AcademicYear), zap.Int("semester", key.Semester))
	}
	return drift, nil
}

// ReconcileStatistics проходит по всем ключам статистики; возвращает число исправленных строк.
func (s *Service) ReconcileStatistics(ctx context.Context) (int, error) {
	keys, err := s.store.StatisticsKeys(ctx)
	if err != nil {
		return 0, wrap("statistics.reconcile", err)
	}
	fixed := 0
	for _, k := range keys {
		if ctx.Err() != nil {
			return fixed, ctx.Err()
		}
		drift, err := s.Recompute(ctx, k)
		if err != nil {
			return fixed, err
		}
		if drift {
			fixed++
		}
	}
	return fixed, nil
}

// ExpireFeatured снимает признак «избранное» с записей, у которых истёк срок.
func (s *Service) ExpireFeatured(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireFeatured(ctx, s.now().UTC())
	if err != nil {
		return 0, wrap("achievement.expire_featured", err)
	}
	if n > 0 {
		s.log.Info("featured flags expired", zap.Int64("count", n))
	}
	return n, nil
}
