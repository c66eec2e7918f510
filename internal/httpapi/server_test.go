package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/achievement-service/internal/directory"
	"github.com/Spok95/achievement-service/internal/httpapi"
	"github.com/Spok95/achievement-service/internal/memstore"
	"github.com/Spok95/achievement-service/internal/models"
	"github.com/Spok95/achievement-service/internal/workflow"
)

const secret = "test-secret"

var (
	teacher = models.Actor{ID: "u-wali", Name: "Bu Rina", Roles: []models.Role{models.RoleWaliKelas}}
	bk      = models.Actor{ID: "u-bk", Name: "Pak Budi", Roles: []models.Role{models.RoleBK}}
)

type env struct {
	srv     *httpapi.Server
	student uuid.UUID
	cat     uuid.UUID
	wali    string
	bk      string
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newEnv(t *testing.T, health httpapi.Pinger) *env {
	t.Helper()
	dir, sid, cid := directory.Demo()
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	svc := workflow.New(memstore.New(), dir, workflow.Options{Now: func() time.Time { return now }})
	srv := httpapi.New(svc, httpapi.Options{JWTSecret: secret, Location: time.UTC, Health: health})
	return &env{srv: srv, student: sid, cat: cid, wali: token(t, teacher), bk: token(t, bk)}
}

func token(t *testing.T, a models.Actor) string {
	t.Helper()
	tok, err := httpapi.IssueToken(secret, a, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

type reply struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind   string            `json:"kind"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, method, path, tok string, body any, headers ...string) (int, reply) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var r reply
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &r))
	}
	return resp.StatusCode, r
}

func (e *env) submitBody(level, rank string) map[string]any {
	body := map[string]any{
		"studentId":       e.student.String(),
		"categoryId":      e.cat.String(),
		"title":           "Juara Olimpiade Matematika",
		"description":     "Olimpiade matematika tingkat provinsi Jawa Barat",
		"achievementDate": "2025-02-10",
		"level":           level,
		"academicYear":    "2024/2025",
		"semester":        2,
	}
	if rank != "" {
		body["rank"] = rank
	}
	return body
}

func (e *env) submit(t *testing.T, level, rank string) models.Achievement {
	t.Helper()
	code, r := e.do(t, http.MethodPost, "/api/v1/achievements/", e.wali, e.submitBody(level, rank))
	require.Equal(t, http.StatusCreated, code, r.Message)
	var a models.Achievement
	require.NoError(t, json.Unmarshal(r.Data, &a))
	return a
}

func TestSubmit(t *testing.T) {
	e := newEnv(t, nil)
	a := e.submit(t, "provinsi", "juara_1")
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, models.LevelProvinsi, a.Level)
	assert.Equal(t, 90, a.Points)
	assert.Equal(t, "Bu Rina", a.ReportedByName)
}

func TestSubmit_Validation(t *testing.T) {
	e := newEnv(t, nil)
	body := e.submitBody("NASIONAL", "")
	body["title"] = "short"
	body["semester"] = 3
	body["evidenceUrls"] = []string{"not a url"}
	code, r := e.do(t, http.MethodPost, "/api/v1/achievements/", e.wali, body)
	require.Equal(t, http.StatusBadRequest, code)
	assert.False(t, r.Success)
	require.NotNil(t, r.Error)
	assert.Equal(t, "VALIDATION", r.Error.Kind)
	assert.Contains(t, r.Error.Fields, "title")
	assert.Contains(t, r.Error.Fields, "semester")
	assert.Contains(t, r.Error.Fields, "evidenceUrls[0]")
}

func TestSubmit_BusinessValidation(t *testing.T) {
	e := newEnv(t, nil)
	body := e.submitBody("NASIONAL", "")
	body["isTeamAchievement"] = true
	code, r := e.do(t, http.MethodPost, "/api/v1/achievements/", e.wali, body)
	require.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, r.Error)
	assert.Contains(t, r.Error.Fields, "teamName")
}

func TestAuth(t *testing.T) {
	e := newEnv(t, nil)
	code, _ := e.do(t, http.MethodGet, "/api/v1/achievements/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/achievements/", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	other, err := httpapi.IssueToken("other-secret", bk, time.Hour, time.Now())
	require.NoError(t, err)
	code, _ = e.do(t, http.MethodGet, "/api/v1/achievements/", other, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	expired, err := httpapi.IssueToken(secret, bk, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	code, _ = e.do(t, http.MethodGet, "/api/v1/achievements/", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestParseToken(t *testing.T) {
	tok := token(t, models.Actor{ID: "u1", Name: "Sari", Roles: []models.Role{"bk", "ADMIN"}})
	a, err := httpapi.ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", a.ID)
	assert.Equal(t, []models.Role{models.RoleBK, models.RoleAdmin}, a.Roles)
}

func TestApproveFlow(t *testing.T) {
	e := newEnv(t, nil)
	a := e.submit(t, "NASIONAL", "JUARA_1")
	path := "/api/v1/achievements/" + a.ID.String() + "/approve"

	code, _ := e.do(t, http.MethodPost, path, e.wali, map[string]any{"isPublished": true})
	assert.Equal(t, http.StatusForbidden, code)

	code, r := e.do(t, http.MethodPost, path, e.bk, map[string]any{"isPublished": true, "notes": "ok"})
	require.Equal(t, http.StatusOK, code, r.Message)
	var got models.Achievement
	require.NoError(t, json.Unmarshal(r.Data, &got))
	assert.Equal(t, models.StatusApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)

	code, r = e.do(t, http.MethodPost, path, e.bk, map[string]any{"isPublished": true})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, r.Error)
	assert.Equal(t, "CONFLICT", r.Error.Kind)

	code, r = e.do(t, http.MethodGet, "/api/v1/achievements/hall-of-fame", e.wali, nil)
	require.Equal(t, http.StatusOK, code)
	var hof []models.HallOfFameEntry
	require.NoError(t, json.Unmarshal(r.Data, &hof))
	require.Len(t, hof, 1)
	assert.Equal(t, a.ID, hof[0].AchievementID)

	code, r = e.do(t, http.MethodGet, "/api/v1/achievements/"+a.ID.String(), e.wali, nil)
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		Achievement models.Achievement            `json:"achievement"`
		History     []models.ApprovalHistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &detail))
	require.Len(t, detail.History, 2)
	assert.Equal(t, models.ActionSubmit, detail.History[0].Action)
	assert.Equal(t, models.ActionApprove, detail.History[1].Action)
}

func TestApprove_FeaturedNeedsDeadline(t *testing.T) {
	e := newEnv(t, nil)
	a := e.submit(t, "NASIONAL", "")
	code, r := e.do(t, http.MethodPost, "/api/v1/achievements/"+a.ID.String()+"/approve", e.bk,
		map[string]any{"isFeatured": true})
	require.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, r.Error)
	assert.Contains(t, r.Error.Fields, "featuredUntil")
}

func TestReject(t *testing.T) {
	e := newEnv(t, nil)
	a := e.submit(t, "SEKOLAH", "")
	path := "/api/v1/achievements/" + a.ID.String() + "/reject"

	code, r := e.do(t, http.MethodPost, path, e.bk, map[string]any{"rejectionReason": "short"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, r.Error.Fields, "rejectionReason")

	code, r = e.do(t, http.MethodPost, path, e.bk, map[string]any{"rejectionReason": "insufficient evidence"})
	require.Equal(t, http.StatusOK, code)
	var got models.Achievement
	require.NoError(t, json.Unmarshal(r.Data, &got))
	assert.Equal(t, models.StatusRejected, got.Status)
	require.NotNil(t, got.RejectionReason)
	assert.Equal(t, "insufficient evidence", *got.RejectionReason)
}

func TestNotFoundAndBadID(t *testing.T) {
	e := newEnv(t, nil)
	code, r := e.do(t, http.MethodGet, "/api/v1/achievements/"+uuid.NewString(), e.wali, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", r.Error.Kind)

	code, _ = e.do(t, http.MethodGet, "/api/v1/achievements/not-a-uuid", e.wali, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/achievements/"+uuid.NewString()+"/approve", e.bk, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEditAndDelete(t *testing.T) {
	e := newEnv(t, nil)
	a := e.submit(t, "KABUPATEN", "")
	path := "/api/v1/achievements/" + a.ID.String()

	code, r := e.do(t, http.MethodPut, path, e.wali, map[string]any{"location": "Bandung"})
	require.Equal(t, http.StatusOK, code, r.Message)
	var got models.Achievement
	require.NoError(t, json.Unmarshal(r.Data, &got))
	assert.Equal(t, "Bandung", got.Location)
	assert.Equal(t, a.Points, got.Points)

	code, _ = e.do(t, http.MethodPost, path+"/reject", e.bk, map[string]any{"rejectionReason": "not verifiable anymore"})
	require.Equal(t, http.StatusOK, code)

	code, r = e.do(t, http.MethodPut, path, e.wali, map[string]any{"location": "Bogor"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "CONFLICT", r.Error.Kind)

	code, _ = e.do(t, http.MethodDelete, path, e.wali, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodDelete, path, e.wali, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodDelete, "/api/v1/achievements/"+uuid.NewString(), e.wali, nil)
	assert.Equal(t, http.StatusOK, code)
	code, r = e.do(t, http.MethodDelete, "/api/v1/achievements/not-a-uuid", e.wali, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, r.Success)

	code, _ = e.do(t, http.MethodGet, path, e.wali, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestList_Paging(t *testing.T) {
	e := newEnv(t, nil)
	for i := 0; i < 3; i++ {
		e.submit(t, "SEKOLAH", "")
	}
	type page struct {
		Items      []models.Achievement `json:"items"`
		Pagination struct {
			Offset     int `json:"offset"`
			Limit      int `json:"limit"`
			Total      int `json:"total"`
			TotalPages int `json:"totalPages"`
		} `json:"pagination"`
	}

	code, r := e.do(t, http.MethodGet, "/api/v1/achievements/?limit=2&page=2", e.wali, nil)
	require.Equal(t, http.StatusOK, code)
	var p page
	require.NoError(t, json.Unmarshal(r.Data, &p))
	assert.Len(t, p.Items, 1)
	assert.Equal(t, 2, p.Pagination.Offset)
	assert.Equal(t, 3, p.Pagination.Total)
	assert.Equal(t, 2, p.Pagination.TotalPages)

	code, r = e.do(t, http.MethodGet, "/api/v1/achievements/?limit=500", e.wali, nil,
		"x-paging-offset", "1", "x-paging-search", "AHMAD")
	require.Equal(t, http.StatusOK, code)
	p = page{}
	require.NoError(t, json.Unmarshal(r.Data, &p))
	assert.Len(t, p.Items, 2)
	assert.Equal(t, 100, p.Pagination.Limit)

	code, r = e.do(t, http.MethodGet, "/api/v1/achievements/?search=nobody", e.wali, nil)
	require.Equal(t, http.StatusOK, code)
	p = page{}
	require.NoError(t, json.Unmarshal(r.Data, &p))
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)

	code, r = e.do(t, http.MethodGet, "/api/v1/achievements/?status=DONE&semester=x", e.wali, nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, r.Error.Fields, "semester")
}

func TestStats(t *testing.T) {
	e := newEnv(t, nil)
	a := e.submit(t, "PROVINSI", "JUARA_1")
	e.submit(t, "SEKOLAH", "")
	code, _ := e.do(t, http.MethodPost, "/api/v1/achievements/"+a.ID.String()+"/approve", e.bk, nil)
	require.Equal(t, http.StatusOK, code)

	code, r := e.do(t, http.MethodGet, "/api/v1/achievements/stats/summary?academicYear=2024/2025&studentId="+e.student.String(), e.wali, nil)
	require.Equal(t, http.StatusOK, code)
	var sum models.StatisticsSummary
	require.NoError(t, json.Unmarshal(r.Data, &sum))
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.ByStatus[models.StatusApproved])
	assert.Equal(t, 1, sum.ByStatus[models.StatusPending])
	assert.Equal(t, 0, sum.ByStatus[models.StatusRejected])
	assert.Equal(t, 140, sum.TotalPoints)
	assert.Empty(t, sum.Records)

	code, _ = e.do(t, http.MethodGet, "/api/v1/achievements/stats/summary?academicYear=2024", e.wali, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatsExport(t *testing.T) {
	e := newEnv(t, nil)
	e.submit(t, "NASIONAL", "JUARA_2")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/achievements/stats/export?academicYear=2024/2025", nil)
	req.Header.Set("Authorization", "Bearer "+e.wali)
	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "achievements_2024-2025_all.xlsx")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// xlsx — это zip
	assert.Equal(t, []byte("PK"), raw[:2])
}

func TestHealthz(t *testing.T) {
	ok := newEnv(t, fakePinger{})
	resp, err := ok.srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bad := newEnv(t, fakePinger{err: errors.New("connection refused")})
	resp, err = bad.srv.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = ok.srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
