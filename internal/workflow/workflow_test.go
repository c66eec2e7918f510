package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/achievement-service/internal/directory"
	"github.com/Spok95/achievement-service/internal/memstore"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

var (
	reporter = models.Actor{ID: "u-wali", Name: "Bu Rina", Roles: []models.Role{models.RoleWaliKelas}}
	bk       = models.Actor{ID: "u-bk", Name: "Pak Budi", Roles: []models.Role{models.RoleBK}}
)

type fixture struct {
	svc     *workflow.Service
	store   *memstore.Store
	dir     *directory.Static
	student uuid.UUID
	other   uuid.UUID
	cat50   uuid.UUID
	cat100  uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T, mod ...func(*workflow.Options)) *fixture {
	t.Helper()
	dir, sid, cid := directory.Demo()
	other := dir.AddStudent(models.Student{ID: uuid.NewString(), NISN: "0099", Name: "Dewi Lestari", ClassName: "11 IPS 2"})
	cat100 := dir.AddCategory(models.Category{ID: uuid.NewString(), Code: "FLS2N", Name: "FLS2N Tari", Type: models.CategoryArts, BasePoints: 100})
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	store := memstore.New()
	opts := workflow.Options{Now: func() time.Time { return now }}
	for _, m := range mod {
		m(&opts)
	}
	return &fixture{
		svc:     workflow.New(store, dir, opts),
		store:   store,
		dir:     dir,
		student: sid,
		other:   other,
		cat50:   cid,
		cat100:  cat100,
		now:     now,
	}
}

func (f *fixture) input(level models.Level, rank *models.Rank) workflow.SubmitInput {
	return workflow.SubmitInput{
		StudentID:       f.student,
		CategoryID:      f.cat50,
		Title:           "Juara Olimpiade Matematika",
		Description:     "Olimpiade matematika tingkat provinsi Jawa Barat",
		AchievementDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Level:           level,
		Rank:            rank,
		AcademicYear:    "2024/2025",
		Semester:        2,
	}
}

func (f *fixture) submit(t *testing.T, in workflow.SubmitInput) *models.Achievement {
	t.Helper()
	a, err := f.svc.Submit(context.Background(), in, reporter)
	require.NoError(t, err)
	return a
}

func (f *fixture) stats(t *testing.T, student uuid.UUID) models.StatisticsRecord {
	t.Helper()
	recs, err := f.store.ListStatistics(context.Background(), models.StatisticsFilter{StudentID: &student})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func kind(t *testing.T, err error) workflow.Kind {
	t.Helper()
	require.Error(t, err)
	return workflow.KindOf(err)
}

func TestSubmit_ScoresAndCounts(t *testing.T) {
	f := newFixture(t)
	a := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))

	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, 90, a.Points)
	assert.Equal(t, 50, a.BasePoints)
	assert.InDelta(t, 1.8, a.LevelMultiplier, 1e-9)
	assert.InDelta(t, 1.0, a.RankMultiplier, 1e-9)
	assert.Equal(t, "Ahmad Fauzi", a.StudentName)
	assert.Equal(t, "10 IPA 1", a.StudentClass)
	assert.Equal(t, models.CategoryAcademic, a.CategoryType)
	assert.Equal(t, reporter.ID, a.ReportedBy)

	d, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, d.History, 1)
	h := d.History[0]
	assert.Equal(t, models.ActionSubmit, h.Action)
	assert.Equal(t, models.StatusPending, h.FromStatus)
	assert.Equal(t, models.StatusPending, h.ToStatus)
	assert.Equal(t, reporter.ID, h.ActorID)
	assert.Equal(t, models.RoleWaliKelas, h.ActorRole)

	st := f.stats(t, f.student)
	assert.Equal(t, 1, st.TotalAchievements)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, 90, st.TotalPoints)
	assert.Equal(t, 1, st.ByCategory[models.CategoryAcademic])
	assert.Equal(t, 1, st.ByLevel[models.LevelProvinsi])
	assert.Equal(t, 1, st.ByRank[models.RankJuara1])
	require.NotNil(t, st.LastAchievementDate)
	assert.True(t, st.LastAchievementDate.Equal(a.AchievementDate))
}

func TestSubmit_NonTopRankNotCountedInRankBucket(t *testing.T) {
	f := newFixture(t)
	in := f.input(models.LevelNasional, models.RankPtr(models.RankFinalis))
	in.CategoryID = f.cat100
	a := f.submit(t, in)
	assert.Equal(t, 60, a.Points)

	st := f.stats(t, f.student)
	assert.Empty(t, st.ByRank[models.RankFinalis])
	assert.Equal(t, 1, st.ByCategory[models.CategoryArts])
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		mut   func(*workflow.SubmitInput)
		field string
	}{
		"unknown student":  {func(in *workflow.SubmitInput) { in.StudentID = uuid.New() }, "studentId"},
		"unknown category": {func(in *workflow.SubmitInput) { in.CategoryID = uuid.New() }, "categoryId"},
		"future date":      {func(in *workflow.SubmitInput) { in.AchievementDate = f.now.Add(48 * time.Hour) }, "achievementDate"},
		"bad year":         {func(in *workflow.SubmitInput) { in.AcademicYear = "2024/2026" }, "academicYear"},
		"bad semester":     {func(in *workflow.SubmitInput) { in.Semester = 3 }, "semester"},
		"bad level":        {func(in *workflow.SubmitInput) { in.Level = "REGIONAL" }, "level"},
		"bad rank":         {func(in *workflow.SubmitInput) { in.Rank = models.RankPtr("JUARA_4") }, "rank"},
		"team without name": {func(in *workflow.SubmitInput) {
			in.IsTeamAchievement = true
			in.TeamMembers = []models.TeamMember{{Name: "Rudi"}}
		}, "teamName"},
		"team without members": {func(in *workflow.SubmitInput) {
			in.IsTeamAchievement = true
			in.TeamName = "Tim A"
		}, "teamMembers"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := f.input(models.LevelProvinsi, nil)
			tc.mut(&in)
			_, err := f.svc.Submit(ctx, in, reporter)
			assert.Equal(t, workflow.KindValidation, kind(t, err))
			assert.ErrorIs(t, err, workflow.ErrValidation)
			assert.Contains(t, workflow.FieldErrors(err), tc.field)
		})
	}

	res, err := f.svc.Query(ctx, models.AchievementFilter{}, models.Page{})
	require.NoError(t, err)
	assert.Zero(t, res.Total, "после ошибок валидации ничего не записано")

	_, err = f.svc.Submit(ctx, f.input(models.LevelProvinsi, nil), models.Actor{})
	assert.Equal(t, workflow.KindForbidden, kind(t, err))
}

func TestSubmit_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	in := f.input(models.LevelKabupaten, models.RankPtr(models.RankJuara3))
	in.IdempotencyKey = "form-123"

	a1 := f.submit(t, in)
	a2 := f.submit(t, in)
	assert.Equal(t, a1.ID, a2.ID)

	st := f.stats(t, f.student)
	assert.Equal(t, 1, st.TotalAchievements)
	assert.Equal(t, 1, st.PendingCount)
}

func TestApprove_PromotesToHallOfFame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input(models.LevelNasional, models.RankPtr(models.RankFinalis))
	in.CategoryID = f.cat100
	in.PhotoURLs = []string{"https://cdn.example/p1.jpg", "https://cdn.example/p2.jpg"}
	a := f.submit(t, in)

	got, err := f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsPublished: true, Notes: "ok"}, bk)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, bk.ID, *got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	assert.Equal(t, 60, got.Points, "баллы не пересчитываются при согласовании")

	hof, err := f.svc.HallOfFame(ctx, models.HallOfFameFilter{})
	require.NoError(t, err)
	require.Len(t, hof, 1)
	assert.Equal(t, a.ID, hof[0].AchievementID)
	assert.Equal(t, "https://cdn.example/p1.jpg", hof[0].PhotoURL)
	assert.Equal(t, models.LevelNasional, hof[0].Level)

	st := f.stats(t, f.student)
	assert.Equal(t, 0, st.PendingCount)
	assert.Equal(t, 1, st.ApprovedCount)
	assert.Equal(t, 1, st.TotalAchievements)
	assert.Equal(t, 60, st.TotalPoints)

	_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsPublished: true}, bk)
	assert.Equal(t, workflow.KindConflict, kind(t, err))
	assert.Contains(t, workflow.Message(err), "already processed")

	d, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, d.History, 2)
	assert.Equal(t, models.ActionApprove, d.History[1].Action)
	assert.Equal(t, models.StatusPending, d.History[1].FromStatus)
	assert.Equal(t, models.StatusApproved, d.History[1].ToStatus)
	assert.True(t, d.History[1].ActionDate.After(d.History[0].ActionDate))

	hof, err = f.svc.HallOfFame(ctx, models.HallOfFameFilter{})
	require.NoError(t, err)
	assert.Len(t, hof, 1)
}

func TestApprove_NoPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unpublished := f.submit(t, f.input(models.LevelInternasional, models.RankPtr(models.RankJuara1)))
	_, err := f.svc.Approve(ctx, unpublished.ID, workflow.ApproveInput{IsPublished: false}, bk)
	require.NoError(t, err)

	provincial := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))
	_, err = f.svc.Approve(ctx, provincial.ID, workflow.ApproveInput{IsPublished: true}, bk)
	require.NoError(t, err)

	hof, err := f.svc.HallOfFame(ctx, models.HallOfFameFilter{})
	require.NoError(t, err)
	assert.Empty(t, hof)
}

func TestApprove_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelSekolah, nil))

	_, err := f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsFeatured: true}, bk)
	assert.Contains(t, workflow.FieldErrors(err), "featuredUntil")

	past := f.now.Add(-time.Hour)
	_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsFeatured: true, FeaturedUntil: &past}, bk)
	assert.Contains(t, workflow.FieldErrors(err), "featuredUntil")

	_, err = f.svc.Approve(ctx, uuid.New(), workflow.ApproveInput{}, bk)
	assert.Equal(t, workflow.KindNotFound, kind(t, err))
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestApprove_ApproverRoles(t *testing.T) {
	f := newFixture(t, func(o *workflow.Options) { o.ApproverRoles = []models.Role{models.RoleBK} })
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelSekolah, nil))

	_, err := f.svc.Approve(ctx, a.ID, workflow.ApproveInput{}, reporter)
	assert.Equal(t, workflow.KindForbidden, kind(t, err))
	_, err = f.svc.Reject(ctx, a.ID, workflow.RejectInput{RejectionReason: "Sertifikat tidak terbaca"}, reporter)
	assert.Equal(t, workflow.KindForbidden, kind(t, err))

	lower := models.Actor{ID: "u-bk2", Name: "Bu Sari", Roles: []models.Role{"bk"}}
	_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{}, lower)
	require.NoError(t, err)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelKecamatan, models.RankPtr(models.RankHarapan1)))

	_, err := f.svc.Reject(ctx, a.ID, workflow.RejectInput{RejectionReason: "  short  "}, bk)
	assert.Contains(t, workflow.FieldErrors(err), "rejectionReason")
	_, err = f.svc.Reject(ctx, a.ID, workflow.RejectInput{}, bk)
	assert.Contains(t, workflow.FieldErrors(err), "rejectionReason")

	got, err := f.svc.Reject(ctx, a.ID, workflow.RejectInput{RejectionReason: "Bukti sertifikat tidak valid"}, bk)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "Bukti sertifikat tidak valid", *got.RejectionReason)

	st := f.stats(t, f.student)
	assert.Equal(t, 0, st.PendingCount)
	assert.Equal(t, 1, st.RejectedCount)
	assert.Equal(t, 1, st.TotalAchievements)

	_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{}, bk)
	assert.Equal(t, workflow.KindConflict, kind(t, err))

	d, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, d.History, 2)
	assert.Equal(t, models.ActionReject, d.History[1].Action)
	assert.Equal(t, "Bukti sertifikat tidak valid", d.History[1].Notes)
}

func TestApproveReject_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.input(models.LevelInternasional, models.RankPtr(models.RankJuara2))
	a := f.submit(t, in)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsPublished: true}, bk)
			} else {
				_, err = f.svc.Reject(ctx, a.ID, workflow.RejectInput{RejectionReason: "Tidak sesuai ketentuan"}, bk)
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, workflow.ErrConflict):
				conflicts++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	st := f.stats(t, f.student)
	assert.Equal(t, 1, st.ApprovedCount+st.RejectedCount)
	assert.Equal(t, 0, st.PendingCount)

	hof, err := f.svc.HallOfFame(ctx, models.HallOfFameFilter{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hof), 1)
	assert.Equal(t, st.ApprovedCount, len(hof))

	d, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, d.History, 2)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))

	title := "Juara 1 Olimpiade Matematika Provinsi"
	got, err := f.svc.Edit(ctx, a.ID, workflow.EditPatch{Title: &title}, reporter)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, 90, got.Points)

	team := true
	_, err = f.svc.Edit(ctx, a.ID, workflow.EditPatch{IsTeamAchievement: &team}, reporter)
	assert.Contains(t, workflow.FieldErrors(err), "teamName")

	d, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, title, d.Achievement.Title)
	assert.False(t, d.Achievement.IsTeamAchievement, "неуспешная правка не применяется")
	assert.Len(t, d.History, 1, "правка не пишется в журнал согласования")

	_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{}, bk)
	require.NoError(t, err)
	_, err = f.svc.Edit(ctx, a.ID, workflow.EditPatch{Title: &title}, reporter)
	assert.Equal(t, workflow.KindConflict, kind(t, err))
	assert.Contains(t, workflow.Message(err), "already processed")
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))
	b := f.submit(t, f.input(models.LevelKabupaten, models.RankPtr(models.RankJuara3)))
	_, err := f.svc.Approve(ctx, b.ID, workflow.ApproveInput{}, bk)
	require.NoError(t, err)

	require.NoError(t, f.svc.SoftDelete(ctx, b.ID, reporter))
	require.NoError(t, f.svc.SoftDelete(ctx, b.ID, reporter), "повторное удаление ничего не делает")
	require.NoError(t, f.svc.SoftDelete(ctx, uuid.New(), reporter))

	st := f.stats(t, f.student)
	assert.Equal(t, 1, st.TotalAchievements)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, 0, st.ApprovedCount)
	assert.Equal(t, a.Points, st.TotalPoints)
	assert.Equal(t, 0, st.ByLevel[models.LevelKabupaten])
	assert.Equal(t, 0, st.ByRank[models.RankJuara3])

	_, err = f.svc.Get(ctx, b.ID)
	assert.Equal(t, workflow.KindNotFound, kind(t, err))
	_, err = f.svc.Reject(ctx, b.ID, workflow.RejectInput{RejectionReason: "Sudah dihapus sebelumnya"}, bk)
	assert.Equal(t, workflow.KindNotFound, kind(t, err))

	res, err := f.svc.Query(ctx, models.AchievementFilter{}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	drift, err := f.svc.Recompute(ctx, a.StatisticsKey())
	require.NoError(t, err)
	assert.False(t, drift)
}

func TestLastAchievementDate_FollowsDeleteAndEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jan := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	in := f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1))
	in.AchievementDate = jan
	early := f.submit(t, in)
	in.AchievementDate = mar
	late := f.submit(t, in)
	require.NotNil(t, f.stats(t, f.student).LastAchievementDate)
	assert.True(t, mar.Equal(*f.stats(t, f.student).LastAchievementDate))

	require.NoError(t, f.svc.SoftDelete(ctx, late.ID, reporter))
	st := f.stats(t, f.student)
	require.NotNil(t, st.LastAchievementDate)
	assert.True(t, jan.Equal(*st.LastAchievementDate), "удалённая запись не определяет дату")

	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Edit(ctx, early.ID, workflow.EditPatch{AchievementDate: &feb}, reporter)
	require.NoError(t, err)
	st = f.stats(t, f.student)
	require.NotNil(t, st.LastAchievementDate)
	assert.True(t, feb.Equal(*st.LastAchievementDate))

	fixed, err := f.svc.ReconcileStatistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed)

	require.NoError(t, f.svc.SoftDelete(ctx, early.ID, reporter))
	assert.Nil(t, f.stats(t, f.student).LastAchievementDate)
}

func TestRecompute_RepairsStaleLastDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))

	stale := f.stats(t, f.student)
	wrong := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	stale.LastAchievementDate = &wrong
	f.store.UpsertStatistics(stale)

	drift, err := f.svc.Recompute(ctx, a.StatisticsKey())
	require.NoError(t, err)
	assert.True(t, drift, "одна только дата тоже считается расхождением")
	st := f.stats(t, f.student)
	require.NotNil(t, st.LastAchievementDate)
	assert.True(t, a.AchievementDate.Equal(*st.LastAchievementDate))
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		in := f.input(models.LevelSekolah, nil)
		in.AchievementDate = time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC)
		in.Title = fmt.Sprintf("Lomba cerdas cermat %02d", i)
		if i%3 == 0 {
			in.StudentID = f.other
		}
		f.submit(t, in)
	}

	res, err := f.svc.Query(ctx, models.AchievementFilter{}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Total)
	assert.Equal(t, workflow.DefaultPageLimit, res.Limit)
	assert.Len(t, res.Items, 25)
	assert.Equal(t, 2, res.TotalPages())
	assert.True(t, res.Items[0].AchievementDate.After(res.Items[1].AchievementDate), "по умолчанию сначала новые")

	res, err = f.svc.Query(ctx, models.AchievementFilter{StudentID: &f.other}, models.Page{Offset: 5, Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, workflow.MaxPageLimit, res.Limit)
	assert.Len(t, res.Items, 5)

	res, err = f.svc.Query(ctx, models.AchievementFilter{Search: "cermat 07"}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	res, err = f.svc.Query(ctx, models.AchievementFilter{Status: models.StatusApproved}, models.Page{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Items)

	_, err = f.svc.Query(ctx, models.AchievementFilter{Status: "DONE"}, models.Page{})
	assert.Contains(t, workflow.FieldErrors(err), "status")
	_, err = f.svc.Query(ctx, models.AchievementFilter{AcademicYear: "2024"}, models.Page{})
	assert.Contains(t, workflow.FieldErrors(err), "academicYear")
}

func TestHallOfFame_Ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dates := []time.Time{
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
	}
	levels := []models.Level{models.LevelNasional, models.LevelNasional, models.LevelInternasional}
	for i := range dates {
		in := f.input(levels[i], models.RankPtr(models.RankJuara1))
		in.AchievementDate = dates[i]
		a := f.submit(t, in)
		_, err := f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsPublished: true}, bk)
		require.NoError(t, err)
	}

	hof, err := f.svc.HallOfFame(ctx, models.HallOfFameFilter{})
	require.NoError(t, err)
	require.Len(t, hof, 3)
	assert.Equal(t, models.LevelInternasional, hof[0].Level)
	assert.True(t, hof[1].AchievementDate.Equal(dates[1]))
	assert.True(t, hof[2].AchievementDate.Equal(dates[0]))

	hof, err = f.svc.HallOfFame(ctx, models.HallOfFameFilter{AcademicYear: "2023/2024"})
	require.NoError(t, err)
	assert.Empty(t, hof)
}

func TestStatsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))
	in := f.input(models.LevelNasional, models.RankPtr(models.RankJuara2))
	in.StudentID = f.other
	in.CategoryID = f.cat100
	b := f.submit(t, in)
	_, err := f.svc.Approve(ctx, a.ID, workflow.ApproveInput{}, bk)
	require.NoError(t, err)

	sum, err := f.svc.StatsSummary(ctx, models.StatisticsFilter{AcademicYear: "2024/2025"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 2, sum.Students)
	assert.Equal(t, 1, sum.ByStatus[models.StatusApproved])
	assert.Equal(t, 1, sum.ByStatus[models.StatusPending])
	assert.Equal(t, 0, sum.ByStatus[models.StatusRejected])
	assert.Equal(t, a.Points+b.Points, sum.TotalPoints)
	assert.Equal(t, 1, sum.ByRank[models.RankJuara2])

	sum, err = f.svc.StatsSummary(ctx, models.StatisticsFilter{StudentID: &f.other})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, b.Points, sum.TotalPoints)

	_, err = f.svc.StatsSummary(ctx, models.StatisticsFilter{Semester: 4})
	assert.Equal(t, workflow.KindValidation, kind(t, err))
}

// Счётчики статистики совпадают с пересчётом по записям после любой последовательности операций.
func TestStatistics_NoDriftUnderRandomOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(42))
	var ids []uuid.UUID

	for step := 0; step < 300; step++ {
		switch op := rnd.Intn(5); {
		case op <= 1 || len(ids) == 0:
			in := f.input(models.Levels[rnd.Intn(len(models.Levels))], nil)
			if r := rnd.Intn(len(models.Ranks) + 1); r < len(models.Ranks) {
				in.Rank = models.RankPtr(models.Ranks[r])
			}
			if rnd.Intn(2) == 0 {
				in.StudentID = f.other
				in.CategoryID = f.cat100
			}
			in.Semester = 1 + rnd.Intn(2)
			ids = append(ids, f.submit(t, in).ID)
		case op == 2:
			_, err := f.svc.Approve(ctx, ids[rnd.Intn(len(ids))], workflow.ApproveInput{IsPublished: true}, bk)
			if err != nil {
				k := workflow.KindOf(err)
				require.Contains(t, []workflow.Kind{workflow.KindConflict, workflow.KindNotFound}, k)
			}
		case op == 3:
			_, err := f.svc.Reject(ctx, ids[rnd.Intn(len(ids))], workflow.RejectInput{RejectionReason: "Tidak memenuhi syarat"}, bk)
			if err != nil {
				k := workflow.KindOf(err)
				require.Contains(t, []workflow.Kind{workflow.KindConflict, workflow.KindNotFound}, k)
			}
		default:
			require.NoError(t, f.svc.SoftDelete(ctx, ids[rnd.Intn(len(ids))], reporter))
		}
	}

	fixed, err := f.svc.ReconcileStatistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, fixed, "инкрементальные счётчики должны совпасть с пересчётом")

	sum, err := f.svc.StatsSummary(ctx, models.StatisticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, sum.Total, sum.ByStatus[models.StatusPending]+sum.ByStatus[models.StatusApproved]+sum.ByStatus[models.StatusRejected])
	for _, r := range sum.Records {
		assert.GreaterOrEqual(t, r.PendingCount, 0)
		assert.GreaterOrEqual(t, r.TotalPoints, 0)
	}
}

func TestRecompute_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelProvinsi, models.RankPtr(models.RankJuara1)))

	broken := models.NewStatisticsRecord(a.StatisticsKey())
	broken.StudentName = a.StudentName
	broken.TotalAchievements = 7
	broken.ApprovedCount = 7
	broken.TotalPoints = 1000
	f.store.UpsertStatistics(broken)

	drift, err := f.svc.Recompute(ctx, a.StatisticsKey())
	require.NoError(t, err)
	assert.True(t, drift)

	st := f.stats(t, f.student)
	assert.Equal(t, 1, st.TotalAchievements)
	assert.Equal(t, 1, st.PendingCount)
	assert.Equal(t, 0, st.ApprovedCount)
	assert.Equal(t, 90, st.TotalPoints)

	drift, err = f.svc.Recompute(ctx, a.StatisticsKey())
	require.NoError(t, err)
	assert.False(t, drift)
}

func TestAtomicity_FailedStatisticsRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelNasional, models.RankPtr(models.RankJuara1)))

	boom := errors.New("disk full")
	f.store.SetFailHook(func(op string) error {
		if op == "ApplyStatistics" {
			return boom
		}
		return nil
	})

	_, err := f.svc.Submit(ctx, f.input(models.LevelSekolah, nil), reporter)
	assert.Equal(t, workflow.KindInternal, kind(t, err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "internal server error", workflow.Message(err))

	_, err = f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsPublished: true}, bk)
	assert.Equal(t, workflow.KindInternal, kind(t, err))

	f.store.SetFailHook(nil)

	res, err := f.svc.Query(ctx, models.AchievementFilter{}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, models.StatusPending, res.Items[0].Status)

	d, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, d.History, 1)

	hof, err := f.svc.HallOfFame(ctx, models.HallOfFameFilter{})
	require.NoError(t, err)
	assert.Empty(t, hof)
}

func TestExpireFeatured(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	clock := now
	f := newFixture(t, func(o *workflow.Options) { o.Now = func() time.Time { return clock } })
	ctx := context.Background()
	a := f.submit(t, f.input(models.LevelProvinsi, nil))
	until := now.Add(24 * time.Hour)
	_, err := f.svc.Approve(ctx, a.ID, workflow.ApproveInput{IsFeatured: true, FeaturedUntil: &until}, bk)
	require.NoError(t, err)

	n, err := f.svc.ExpireFeatured(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = now.Add(25 * time.Hour)
	n, err = f.svc.ExpireFeatured(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	d, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, d.Achievement.IsFeatured)
}

func TestQueryAll(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < workflow.MaxPageLimit+5; i++ {
		f.submit(t, f.input(models.LevelSekolah, nil))
	}
	all, err := f.svc.QueryAll(context.Background(), models.AchievementFilter{}, 1000)
	require.NoError(t, err)
	assert.Len(t, all, workflow.MaxPageLimit+5)

	capped, err := f.svc.QueryAll(context.Background(), models.AchievementFilter{}, 7)
	require.NoError(t, err)
	assert.Len(t, capped, 7)
}
