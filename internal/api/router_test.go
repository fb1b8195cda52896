package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/maheshrc27/contentops/internal/transfer"
	"github.com/maheshrc27/contentops/pkg/utils"
	"github.com/rs/zerolog"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type recordingKicker struct {
	reasons []string
}

func (k *recordingKicker) Kick(reason string) error {
	k.reasons = append(k.reasons, reason)
	return nil
}

type fixture struct {
	db      *repository.DB
	jobs    repository.JobRepository
	content repository.ContentRepository
	rates   repository.RateLimitRepository
	kicker  *recordingKicker
	token   string
}

func newFixture(t *testing.T, withKicker bool) (*fixture, func(req *http.Request) *http.Response) {
	t.Helper()
	return newFixtureWithThreshold(t, withKicker, 15*time.Minute)
}

func newFixtureWithThreshold(t *testing.T, withKicker bool, stuckAfter time.Duration) (*fixture, func(req *http.Request) *http.Response) {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:      db,
		jobs:    repository.NewJobRepository(db),
		content: repository.NewContentRepository(db),
		rates:   repository.NewRateLimitRepository(db),
	}
	var kicker service.CycleKicker
	if withKicker {
		f.kicker = &recordingKicker{}
		kicker = f.kicker
	}

	f.token, err = utils.GenerateToken(testSecret, "ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := NewApp(Deps{
		DB:        db,
		Ops:       service.NewOpsService(f.jobs, f.content, f.rates, kicker, stuckAfter, zerolog.Nop()),
		SecretKey: testSecret,
		Log:       zerolog.Nop(),
	})
	do := func(req *http.Request) *http.Response {
		t.Helper()
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
		}
		return resp
	}
	return f, do
}

func (f *fixture) authed(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func (f *fixture) seed(t *testing.T, id string) {
	t.Helper()
	err := f.content.CreateContentItem(context.Background(), &models.ContentItem{
		ID:       id,
		Platform: models.PlatformFacebook,
		PostType: models.PostTypeText,
		Caption:  "Hello",
		Status:   models.ContentStatusApproved,
	})
	if err != nil {
		t.Fatalf("CreateContentItem: %v", err)
	}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	t.Parallel()
	_, do := newFixture(t, false)

	resp := do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var body map[string]string
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}

	resp = do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	t.Parallel()
	_, do := newFixture(t, false)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if resp := do(req); resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", tt.name, resp.StatusCode)
		}
	}

	other, err := utils.GenerateToken("ffffffffffffffffffffffffffffffff", "intruder", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	if resp := do(req); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("foreign signature: status = %d, want 401", resp.StatusCode)
	}
}

func TestScheduleContent(t *testing.T) {
	t.Parallel()
	f, do := newFixture(t, true)
	f.seed(t, "c1")

	future := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	resp := do(f.authed(http.MethodPost, "/api/content/c1/schedule", `{"scheduled_for":"`+future.Format(time.RFC3339)+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedule status = %d", resp.StatusCode)
	}
	var job models.PublishJob
	decode(t, resp, &job)
	if job.Status != models.JobStatusScheduled || job.Attempts != 0 || !job.RunAt.Equal(future) {
		t.Fatalf("job = %+v", job)
	}
	if len(f.kicker.reasons) != 0 {
		t.Fatalf("future schedule should not kick, got %v", f.kicker.reasons)
	}

	item, err := f.content.GetContentItem(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != models.ContentStatusScheduled || item.ScheduledFor == nil || !item.ScheduledFor.Equal(future) {
		t.Fatalf("item = %+v", item)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	resp = do(f.authed(http.MethodPost, "/api/content/c1/schedule", `{"scheduled_for":"`+past+`"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-arm status = %d", resp.StatusCode)
	}
	if len(f.kicker.reasons) != 1 {
		t.Fatalf("due-now schedule should kick once, got %v", f.kicker.reasons)
	}
}

func TestScheduleContentRejections(t *testing.T) {
	t.Parallel()
	f, do := newFixture(t, false)
	ctx := context.Background()
	f.seed(t, "running")
	f.seed(t, "posted")

	when := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := `{"scheduled_for":"` + when + `"}`

	job, err := f.jobs.ScheduleContentItem(ctx, "running", "j-running", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	running := models.JobStatusRunning
	if err := f.jobs.UpdateJob(ctx, job.ID, models.JobUpdate{Status: &running}); err != nil {
		t.Fatal(err)
	}
	posted := models.ContentStatusPosted
	if err := f.content.UpdateContentItem(ctx, "posted", models.ContentUpdate{Status: &posted}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "running job", target: "/api/content/running/schedule", body: body, want: http.StatusConflict},
		{name: "posted item", target: "/api/content/posted/schedule", body: body, want: http.StatusConflict},
		{name: "missing item", target: "/api/content/nope/schedule", body: body, want: http.StatusNotFound},
		{name: "bad timestamp", target: "/api/content/running/schedule", body: `{"scheduled_for":"tomorrow"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp := do(f.authed(http.MethodPost, tt.target, tt.body)); resp.StatusCode != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
	}
}

func TestListJobsAndRequeue(t *testing.T) {
	t.Parallel()
	f, do := newFixtureWithThreshold(t, true, time.Millisecond)
	ctx := context.Background()
	f.seed(t, "c1")
	f.seed(t, "c2")

	if _, err := f.jobs.ScheduleContentItem(ctx, "c1", "j1", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := f.jobs.ScheduleContentItem(ctx, "c2", "j2", time.Now()); err != nil {
		t.Fatal(err)
	}
	running := models.JobStatusRunning
	if err := f.jobs.UpdateJob(ctx, "j2", models.JobUpdate{Status: &running}); err != nil {
		t.Fatal(err)
	}

	var list transfer.JobList
	decode(t, do(f.authed(http.MethodGet, "/api/jobs", "")), &list)
	if list.Count != 2 || list.Jobs[0].ID != "j1" || list.Jobs[0].Content == nil {
		t.Fatalf("jobs = %+v", list)
	}

	decode(t, do(f.authed(http.MethodGet, "/api/jobs?status=RUNNING", "")), &list)
	if list.Count != 1 || list.Jobs[0].ID != "j2" {
		t.Fatalf("running jobs = %+v", list)
	}

	if resp := do(f.authed(http.MethodGet, "/api/jobs?status=PAUSED", "")); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status filter: %d", resp.StatusCode)
	}

	if resp := do(f.authed(http.MethodPost, "/api/jobs/j1/requeue", "")); resp.StatusCode != http.StatusConflict {
		t.Fatalf("requeue scheduled job: %d, want 409", resp.StatusCode)
	}
	if resp := do(f.authed(http.MethodPost, "/api/jobs/missing/requeue", "")); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("requeue missing job: %d, want 404", resp.StatusCode)
	}
	time.Sleep(20 * time.Millisecond)
	if resp := do(f.authed(http.MethodPost, "/api/jobs/j2/requeue", "")); resp.StatusCode != http.StatusOK {
		t.Fatalf("requeue running job: %d", resp.StatusCode)
	}

	job, err := f.jobs.GetJob(ctx, "j2")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusScheduled {
		t.Fatalf("requeued job status = %s", job.Status)
	}
	if len(f.kicker.reasons) != 1 {
		t.Fatalf("requeue should kick, got %v", f.kicker.reasons)
	}
}

func TestRequeueRefusesFreshClaim(t *testing.T) {
	t.Parallel()
	f, do := newFixture(t, true)
	ctx := context.Background()
	f.seed(t, "c1")

	if _, err := f.jobs.ScheduleContentItem(ctx, "c1", "j1", time.Now()); err != nil {
		t.Fatal(err)
	}
	running := models.JobStatusRunning
	if err := f.jobs.UpdateJob(ctx, "j1", models.JobUpdate{Status: &running}); err != nil {
		t.Fatal(err)
	}

	if resp := do(f.authed(http.MethodPost, "/api/jobs/j1/requeue", "")); resp.StatusCode != http.StatusConflict {
		t.Fatalf("requeue of a job claimed just now: %d, want 409", resp.StatusCode)
	}
	job, err := f.jobs.GetJob(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobStatusRunning {
		t.Fatalf("job status = %s, want RUNNING", job.Status)
	}
	if len(f.kicker.reasons) != 0 {
		t.Fatalf("refused requeue should not kick, got %v", f.kicker.reasons)
	}
}

func TestRateLimitsView(t *testing.T) {
	t.Parallel()
	f, do := newFixture(t, false)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	err := f.rates.UpsertRateLimitCounter(context.Background(), &models.RateLimitCounter{
		Platform:       models.PlatformFacebook,
		Endpoint:       "feed",
		CallCount:      5,
		WindowStart:    start,
		WindowMinutes:  60,
		LimitPerWindow: 200,
		LastCallAt:     start.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	var views []transfer.RateLimitView
	decode(t, do(f.authed(http.MethodGet, "/api/rate-limits", "")), &views)
	if len(views) != 1 {
		t.Fatalf("views = %+v", views)
	}
	v := views[0]
	if v.Remaining != 195 || !v.ResetsAt.Equal(start.Add(time.Hour)) {
		t.Fatalf("view = %+v", v)
	}
}

func TestKickCycle(t *testing.T) {
	t.Parallel()
	f, do := newFixture(t, true)
	if resp := do(f.authed(http.MethodPost, "/api/cycles", "")); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("kick status = %d", resp.StatusCode)
	}
	if len(f.kicker.reasons) != 1 || !strings.Contains(f.kicker.reasons[0], "ops@example.com") {
		t.Fatalf("reasons = %v", f.kicker.reasons)
	}

	g, doNoQueue := newFixture(t, false)
	if resp := doNoQueue(g.authed(http.MethodPost, "/api/cycles", "")); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("kick without queue = %d", resp.StatusCode)
	}
}
