package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/contentops/configs"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/rs/zerolog"
)

// memStore is an in-memory JobStore that also keeps rate-limit counters.
type memStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.PublishJob
	items    map[string]*models.ContentItem
	counters map[string]models.RateLimitCounter
	listed   int

	// listFailures makes the next n ListDueJobs calls fail.
	listFailures int
	upsertErr    error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[string]*models.PublishJob{},
		items:    map[string]*models.ContentItem{},
		counters: map[string]models.RateLimitCounter{},
	}
}

func (m *memStore) add(item *models.ContentItem, runAt time.Time) *models.PublishJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.Status = models.ContentStatusScheduled
	item.ScheduledFor = &runAt
	m.items[item.ID] = item
	job := &models.PublishJob{ID: "job-" + item.ID, ContentItemID: item.ID, RunAt: runAt, Status: models.JobStatusScheduled}
	m.jobs[job.ID] = job
	return job
}

func (m *memStore) job(id string) models.PublishJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) item(id string) models.ContentItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.items[id]
}

func (m *memStore) ListDueJobs(_ context.Context, now time.Time, limit int) ([]*models.PublishJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listed++
	if m.listFailures > 0 {
		m.listFailures--
		return nil, errors.New("database is locked")
	}

	var due []*models.PublishJob
	for _, j := range m.jobs {
		if j.Status == models.JobStatusScheduled && !j.RunAt.After(now) {
			cp := *j
			item := *m.items[j.ContentItemID]
			cp.Content = &item
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].ID < due[b].ID
		}
		return due[a].RunAt.Before(due[b].RunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memStore) UpdateJob(_ context.Context, id string, u models.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Attempts != nil {
		j.Attempts = *u.Attempts
	}
	if u.ClearError {
		j.LastError = nil
	} else if u.LastError != nil {
		s := *u.LastError
		j.LastError = &s
	}
	if u.RunAt != nil {
		j.RunAt = *u.RunAt
	}
	if u.NextAttemptAt != nil {
		t := *u.NextAttemptAt
		j.NextAttemptAt = &t
	}
	return nil
}

func (m *memStore) UpdateContentItem(_ context.Context, id string, u models.ContentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Status != nil {
		it.Status = *u.Status
	}
	if u.PostedAt != nil {
		t := *u.PostedAt
		it.PostedAt = &t
	}
	if u.ExternalPostID != nil {
		s := *u.ExternalPostID
		it.ExternalPostID = &s
	}
	if u.ClearError {
		it.Error = nil
	} else if u.Error != nil {
		s := *u.Error
		it.Error = &s
	}
	return nil
}

func (m *memStore) GetRateLimitCounter(_ context.Context, p models.Platform, endpoint string) (*models.RateLimitCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[string(p)+"/"+endpoint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memStore) UpsertRateLimitCounter(_ context.Context, c *models.RateLimitCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.counters[string(c.Platform)+"/"+c.Endpoint] = *c
	return nil
}

type staticCreds struct{}

func (staticCreds) Resolve(_ context.Context, p models.Platform) (models.Credentials, error) {
	switch p {
	case models.PlatformFacebook:
		return models.FacebookCredentials{PageID: "page", PageAccessToken: "tok"}, nil
	case models.PlatformInstagram:
		return models.InstagramCredentials{AccountID: "ig", AccessToken: "tok"}, nil
	default:
		return nil, service.ErrNoCredentials
	}
}

// fakePublisher returns ids in call order, or err when set.
type fakePublisher struct {
	mu       sync.Mutex
	err      error
	calls    []string
	messages []string
	onCall   func()
}

func (f *fakePublisher) Publish(_ context.Context, item *models.ContentItem, message string, _ models.Credentials) (*service.PublishResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.ID)
	f.messages = append(f.messages, message)
	hook := f.onCall
	err := f.err
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &service.PublishResult{PostID: "pid_" + item.ID, Endpoint: service.FacebookEndpointFeed}, nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	store *memStore
	pub   *fakePublisher
	sched *Scheduler
	clock time.Time
}

func newHarness(t *testing.T, publisher service.Publisher) *harness {
	t.Helper()
	h := &harness{store: newMemStore(), clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	if fp, ok := publisher.(*fakePublisher); ok {
		h.pub = fp
	}
	cfg := config.Worker{PollInterval: time.Hour, MaxAttempts: 3, BackoffMinutes: []int{1, 5, 15}, BatchSize: 10}
	h.sched = NewScheduler(Deps{
		Store:       h.store,
		Credentials: staticCreds{},
		Publisher:   publisher,
		RateLimits:  service.NewRateLimitTracker(h.store, config.RateLimit{WindowMinutes: 60, PerWindow: 200}),
	}, cfg, zerolog.Nop())
	h.sched.now = func() time.Time { return h.clock }
	return h
}

func fbItem(id string) *models.ContentItem {
	return &models.ContentItem{ID: id, Platform: models.PlatformFacebook, PostType: models.PostTypeText, Caption: "caption " + id}
}

func TestRenderMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		caption  string
		hashtags []string
		want     string
	}{
		{caption: "Hello", hashtags: []string{"leader", "#builder"}, want: "Hello\n\n#leader #builder"},
		{caption: "Hello", hashtags: nil, want: "Hello"},
		{caption: "Hello", hashtags: []string{}, want: "Hello"},
		{caption: "", hashtags: []string{"a"}, want: "\n\n#a"},
	}
	for _, tt := range tests {
		if got := RenderMessage(tt.caption, tt.hashtags); got != tt.want {
			t.Fatalf("RenderMessage(%q, %v) = %q, want %q", tt.caption, tt.hashtags, got, tt.want)
		}
	}
}

func TestBackoffFor(t *testing.T) {
	t.Parallel()
	table := []int{1, 5, 15}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: time.Minute},
		{attempts: 2, want: 5 * time.Minute},
		{attempts: 3, want: 15 * time.Minute},
		{attempts: 7, want: 15 * time.Minute},
		{attempts: 0, want: time.Minute},
	}
	for _, tt := range tests {
		if got := BackoffFor(table, tt.attempts); got != tt.want {
			t.Fatalf("BackoffFor(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRunCycleBatchCapAndOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})

	// 12 due jobs inserted newest first, plus one in the future
	for i := 12; i >= 1; i-- {
		h.store.add(fbItem(fmt.Sprintf("c%02d", i)), h.clock.Add(-time.Duration(i)*time.Minute))
	}
	h.store.add(fbItem("future"), h.clock.Add(time.Hour))

	report, err := h.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Due != 10 || report.Succeeded != 10 {
		t.Fatalf("report = %+v", report)
	}

	// oldest runAt first: c12 was due 12 minutes ago
	calls := h.pub.calls
	if calls[0] != "c12" || calls[9] != "c03" {
		t.Fatalf("processing order = %v", calls)
	}
	for _, id := range []string{"c01", "c02", "future"} {
		if j := h.store.job("job-" + id); j.Status != models.JobStatusScheduled {
			t.Fatalf("%s should still be scheduled, got %s", id, j.Status)
		}
	}
}

func TestRunCycleNoJobs(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	report, err := h.sched.RunCycle(context.Background())
	if err != nil || report.Due != 0 {
		t.Fatalf("RunCycle = %+v, %v", report, err)
	}
}

func TestSuccessfulFacebookPublish(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	item := fbItem("c1")
	item.Caption = "Hello"
	item.Hashtags = []string{"leader", "#builder"}
	job := h.store.add(item, h.clock)

	if _, err := h.sched.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	got := h.store.item("c1")
	if got.Status != models.ContentStatusPosted || got.ExternalPostID == nil || *got.ExternalPostID != "pid_c1" {
		t.Fatalf("content = %+v", got)
	}
	if got.PostedAt == nil || !got.PostedAt.Equal(h.clock) || got.Error != nil {
		t.Fatalf("content = %+v", got)
	}
	if j := h.store.job(job.ID); j.Status != models.JobStatusSuccess {
		t.Fatalf("job status = %s", j.Status)
	}
	if h.pub.messages[0] != "Hello\n\n#leader #builder" {
		t.Fatalf("message = %q", h.pub.messages[0])
	}

	c, err := h.store.GetRateLimitCounter(context.Background(), models.PlatformFacebook, service.FacebookEndpointFeed)
	if err != nil || c.CallCount != 1 {
		t.Fatalf("rate limit counter = %+v, %v", c, err)
	}
}

func TestRepeatedFailureBackoffAndTerminal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{err: errors.New("Facebook API error: boom (code: 1)")})
	job := h.store.add(fbItem("c1"), h.clock)
	ctx := context.Background()

	// attempt 1 -> +1m
	h.sched.RunCycle(ctx)
	j := h.store.job(job.ID)
	if j.Status != models.JobStatusScheduled || j.Attempts != 1 || !j.RunAt.Equal(h.clock.Add(time.Minute)) {
		t.Fatalf("after attempt 1: %+v", j)
	}
	if j.NextAttemptAt == nil || !j.NextAttemptAt.Equal(j.RunAt) || j.LastError == nil {
		t.Fatalf("after attempt 1: %+v", j)
	}
	if it := h.store.item("c1"); it.Status != models.ContentStatusScheduled {
		t.Fatalf("content should stay scheduled during retries, got %s", it.Status)
	}

	// not due yet: nothing happens
	h.sched.RunCycle(ctx)
	if h.pub.callCount() != 1 {
		t.Fatalf("job ran before its backoff elapsed")
	}

	// attempt 2 -> +5m
	h.clock = h.clock.Add(time.Minute)
	h.sched.RunCycle(ctx)
	j = h.store.job(job.ID)
	if j.Attempts != 2 || !j.RunAt.Equal(h.clock.Add(5*time.Minute)) {
		t.Fatalf("after attempt 2: %+v", j)
	}
	runAtBeforeTerminal := j.RunAt

	// attempt 3 -> terminal
	h.clock = h.clock.Add(5 * time.Minute)
	h.sched.RunCycle(ctx)
	j = h.store.job(job.ID)
	if j.Status != models.JobStatusFailed || j.Attempts != 3 || !j.RunAt.Equal(runAtBeforeTerminal) {
		t.Fatalf("after attempt 3: %+v", j)
	}
	if j.LastError == nil || !strings.Contains(*j.LastError, "boom") {
		t.Fatalf("lastError = %v", j.LastError)
	}
	it := h.store.item("c1")
	if it.Status != models.ContentStatusFailed || it.Error == nil {
		t.Fatalf("content = %+v", it)
	}

	// terminal jobs are never picked up again
	h.clock = h.clock.Add(24 * time.Hour)
	for i := 0; i < 3; i++ {
		h.sched.RunCycle(ctx)
	}
	if h.pub.callCount() != 3 {
		t.Fatalf("publisher called %d times, want 3", h.pub.callCount())
	}
	if after := h.store.job(job.ID); after.Attempts != 3 || after.Status != models.JobStatusFailed {
		t.Fatalf("terminal job mutated: %+v", after)
	}
}

func TestInstagramWithoutImageConsumesAttempt(t *testing.T) {
	t.Parallel()
	pubs := service.Publishers{
		models.PlatformInstagram: service.NewInstagramPublisher("http://graph.invalid", nil),
	}
	h := newHarness(t, pubs)
	job := h.store.add(&models.ContentItem{ID: "ig1", Platform: models.PlatformInstagram, PostType: models.PostTypeText, Caption: "no image"}, h.clock)

	if _, err := h.sched.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	j := h.store.job(job.ID)
	if j.Attempts != 1 || j.Status != models.JobStatusScheduled || !j.RunAt.Equal(h.clock.Add(time.Minute)) {
		t.Fatalf("job = %+v", j)
	}
	if j.LastError == nil || !strings.HasPrefix(*j.LastError, "Instagram posts require an image") {
		t.Fatalf("lastError = %v", j.LastError)
	}
}

func TestMissingCredentialsCountsAsAttempt(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	job := h.store.add(&models.ContentItem{ID: "x1", Platform: models.PlatformX, Caption: "tweet"}, h.clock)

	h.sched.RunCycle(context.Background())
	j := h.store.job(job.ID)
	if j.Attempts != 1 || j.LastError == nil || !strings.Contains(*j.LastError, "no credentials") {
		t.Fatalf("job = %+v", j)
	}
	if h.pub.callCount() != 0 {
		t.Fatal("publisher should not be called without credentials")
	}
}

func TestPublisherPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	pub := &fakePublisher{onCall: func() { panic("nil map") }}
	h := newHarness(t, pub)
	job := h.store.add(fbItem("c1"), h.clock)

	report, err := h.sched.RunCycle(context.Background())
	if err != nil || report.Retried != 1 {
		t.Fatalf("RunCycle = %+v, %v", report, err)
	}
	if j := h.store.job(job.ID); j.Status != models.JobStatusScheduled || j.Attempts != 1 {
		t.Fatalf("job = %+v", j)
	}
}

func TestShutdownStopsBetweenJobs(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &fakePublisher{onCall: cancel}
	h := newHarness(t, pub)
	first := h.store.add(fbItem("a"), h.clock.Add(-2*time.Minute))
	second := h.store.add(fbItem("b"), h.clock.Add(-time.Minute))

	report, err := h.sched.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !report.Interrupted || report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	// the in-flight job completed its bookkeeping despite the cancellation
	if j := h.store.job(first.ID); j.Status != models.JobStatusSuccess {
		t.Fatalf("first job = %s", j.Status)
	}
	if j := h.store.job(second.ID); j.Status != models.JobStatusScheduled || j.Attempts != 0 {
		t.Fatalf("second job should be untouched: %+v", j)
	}
}

func TestTriggerCoalesces(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	for i := 0; i < 5; i++ {
		h.sched.Trigger()
	}
	if n := len(h.sched.kick); n != 1 {
		t.Fatalf("pending kicks = %d, want 1", n)
	}
}

func TestRunStartsImmediatelyAndHonoursKick(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return h.store.listCount() >= 1 })
	h.sched.Trigger()
	waitFor(t, func() bool { return h.store.listCount() >= 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func (m *memStore) listCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRateLimitFailureDoesNotFailPublish(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	h.store.upsertErr = errors.New("disk I/O error")
	job := h.store.add(fbItem("c1"), h.clock)

	report, err := h.sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Succeeded != 1 || report.Retried != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if got := h.store.job(job.ID); got.Status != models.JobStatusSuccess || got.Attempts != 0 || got.LastError != nil {
		t.Fatalf("job = %+v", got)
	}
	item := h.store.item("c1")
	if item.Status != models.ContentStatusPosted || item.ExternalPostID == nil || *item.ExternalPostID != "pid_c1" {
		t.Fatalf("item = %+v", item)
	}
	if len(h.store.counters) != 0 {
		t.Fatalf("counters = %v, want none written", h.store.counters)
	}
}

func TestRunSurvivesStoreError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &fakePublisher{})
	h.sched.cfg.PollInterval = 10 * time.Millisecond
	h.store.listFailures = 1
	job := h.store.add(fbItem("c1"), h.clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.sched.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool { return h.store.listCount() >= 2 })
	waitFor(t, func() bool { return h.store.job(job.ID).Status == models.JobStatusSuccess })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.store.item("c1").Status != models.ContentStatusPosted {
		t.Fatalf("item = %+v", h.store.item("c1"))
	}
}
