package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/nyashahama/sepet-backend/internal/analysis"
	"github.com/nyashahama/sepet-backend/internal/db"
	"github.com/nyashahama/sepet-backend/internal/email"
	"github.com/nyashahama/sepet-backend/internal/events"
	"github.com/nyashahama/sepet-backend/internal/store"
	"github.com/nyashahama/sepet-backend/internal/triage"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

type stubStore struct {
	mu sync.Mutex

	c          store.Case
	loadErrs   []error // consumed one per call, nil afterwards
	recordErrs []error
	pending    []uuid.UUID

	loads    int
	records  []store.RecordDecisionParams
	failed   map[uuid.UUID]string
	pollArgs [2]int
	claimed  map[uuid.UUID]bool
	released int
}

func (s *stubStore) ClaimTriage(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[id] {
		return store.ErrAnalysisInProgress
	}
	if s.claimed == nil {
		s.claimed = map[uuid.UUID]bool{}
	}
	s.claimed[id] = true
	return nil
}

func (s *stubStore) ReleaseClaim(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	delete(s.claimed, id)
	return nil
}

func (s *stubStore) LoadCase(_ context.Context, _ uuid.UUID) (store.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if len(s.loadErrs) > 0 {
		err := s.loadErrs[0]
		s.loadErrs = s.loadErrs[1:]
		if err != nil {
			return store.Case{}, err
		}
	}
	return s.c, nil
}

func (s *stubStore) RecordDecision(_ context.Context, p store.RecordDecisionParams) (db.Triage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, p)
	if len(s.recordErrs) > 0 {
		err := s.recordErrs[0]
		s.recordErrs = s.recordErrs[1:]
		if err != nil {
			return db.Triage{}, err
		}
	}
	// Recording clears the claim and takes the triage off the pending list.
	delete(s.claimed, p.TriageID)
	s.c.Triage.Opinion = sql.NullString{String: p.Decision.Opinion, Valid: true}
	kept := s.pending[:0]
	for _, id := range s.pending {
		if id != p.TriageID {
			kept = append(kept, id)
		}
	}
	s.pending = kept
	return db.Triage{ID: p.TriageID}, nil
}

func (s *stubStore) MarkAnalysisFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[uuid.UUID]string{}
	}
	s.failed[id] = reason
	delete(s.claimed, id)
	return nil
}

func (s *stubStore) ListPending(_ context.Context, maxAttempts, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollArgs = [2]int{maxAttempts, limit}
	return append([]uuid.UUID(nil), s.pending...), nil
}

func (s *stubStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type countingDecider struct {
	mu       sync.Mutex
	calls    int
	delay    time.Duration
	analysis analysis.Analysis
}

func (d *countingDecider) Analyse(_ context.Context, _ triage.Screening, _ triage.Profile) analysis.Analysis {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	time.Sleep(d.delay)
	return d.analysis
}

func (d *countingDecider) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.TriageAnalysed
	err error
}

func (p *recordingPublisher) PublishTriageAnalysed(_ context.Context, e events.TriageAnalysed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, e)
	return p.err
}

type recordingMailer struct {
	email.Nop
	mu    sync.Mutex
	ready []email.AnalysisReadyParams
	err   error
}

func (m *recordingMailer) SendAnalysisReady(_ context.Context, p email.AnalysisReadyParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, p)
	return m.err
}

func (m *recordingMailer) readyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ready)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rexCase(tutorEmail string) store.Case {
	return store.Case{
		Triage: db.Triage{ID: uuid.New()},
		Appointment: db.Appointment{
			ID:           uuid.New(),
			TenantID:     "tenant-a",
			TutorName:    "Ana",
			PetName:      "Rex",
			ReceiptToken: uuid.New(),
		},
		Document: store.TriageDocument{
			Screening: triage.Screening{AnestheticRiskAck: true, Fasted12h: true},
			Tutor:     store.TutorMeta{Email: tutorEmail},
		},
	}
}

func newTestRunner(st *stubStore, d *countingDecider, pub *recordingPublisher, m *recordingMailer) *Runner {
	job := NewJob(st, d, pub, m, discardLogger())
	r := NewRunner(job, st, RunnerConfig{MaxRetries: 3}, discardLogger())
	r.delay = time.Millisecond
	return r
}

var rexAnalysis = analysis.Analysis{
	Decision: triage.Decision{RiskFlag: true, Opinion: "Rex needs a closer look."},
	Source:   "sequential",
}

// ─── PROCESS ──────────────────────────────────────────────────────────────────

func TestProcess_PersistsAndNotifies(t *testing.T) {
	c := rexCase("ana@example.com")
	st := &stubStore{c: c}
	d := &countingDecider{analysis: rexAnalysis}
	pub := &recordingPublisher{}
	m := &recordingMailer{}

	res, err := NewJob(st, d, pub, m, discardLogger()).Process(context.Background(), c.Triage.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Decision != rexAnalysis.Decision || res.Source != "sequential" || res.Fallback {
		t.Errorf("unexpected result %+v", res)
	}
	if len(st.records) != 1 || st.records[0].AppointmentID != c.Appointment.ID {
		t.Errorf("expected one record for the appointment, got %+v", st.records)
	}
	if len(pub.got) != 1 || pub.got[0].TenantID != "tenant-a" || !pub.got[0].RiskFlag {
		t.Errorf("unexpected events %+v", pub.got)
	}
	if len(m.ready) != 1 || m.ready[0].To != "ana@example.com" || m.ready[0].PetName != "Rex" {
		t.Errorf("unexpected emails %+v", m.ready)
	}
	if len(m.ready) == 1 && m.ready[0].ReceiptToken != c.Appointment.ReceiptToken.String() {
		t.Errorf("email should link the receipt token, got %q", m.ready[0].ReceiptToken)
	}
}

func TestProcess_NotifyFailuresAreNotFatal(t *testing.T) {
	c := rexCase("ana@example.com")
	st := &stubStore{c: c}
	pub := &recordingPublisher{err: errors.New("nats down")}
	m := &recordingMailer{err: errors.New("resend down")}

	_, err := NewJob(st, &countingDecider{analysis: rexAnalysis}, pub, m, discardLogger()).
		Process(context.Background(), c.Triage.ID)
	if err != nil {
		t.Errorf("notify failures should not fail the job: %v", err)
	}
}

func TestProcess_SkipsEmailWithoutAddress(t *testing.T) {
	c := rexCase("")
	m := &recordingMailer{}

	_, err := NewJob(&stubStore{c: c}, &countingDecider{analysis: rexAnalysis}, &recordingPublisher{}, m, discardLogger()).
		Process(context.Background(), c.Triage.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.ready) != 0 {
		t.Errorf("expected no email, got %d", len(m.ready))
	}
}

func TestProcess_LoadErrorIsReturned(t *testing.T) {
	st := &stubStore{loadErrs: []error{sql.ErrNoRows}}
	d := &countingDecider{analysis: rexAnalysis}

	_, err := NewJob(st, d, &recordingPublisher{}, &recordingMailer{}, discardLogger()).
		Process(context.Background(), uuid.New())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
	if d.calls != 0 {
		t.Errorf("decider should not run without a case")
	}
}

func TestProcess_ClaimedTriageIsRejected(t *testing.T) {
	c := rexCase("")
	st := &stubStore{c: c, claimed: map[uuid.UUID]bool{c.Triage.ID: true}}
	d := &countingDecider{analysis: rexAnalysis}

	_, err := NewJob(st, d, &recordingPublisher{}, &recordingMailer{}, discardLogger()).
		Process(context.Background(), c.Triage.ID)
	if !errors.Is(err, store.ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	if st.loads != 0 || d.calls != 0 {
		t.Errorf("claimed triage was processed: loads=%d calls=%d", st.loads, d.calls)
	}
}

func TestProcess_LoadFailureReleasesClaim(t *testing.T) {
	c := rexCase("")
	st := &stubStore{c: c, loadErrs: []error{errors.New("conn reset")}}

	_, err := NewJob(st, &countingDecider{analysis: rexAnalysis}, &recordingPublisher{}, &recordingMailer{}, discardLogger()).
		Process(context.Background(), c.Triage.ID)
	if err == nil {
		t.Fatal("expected load error")
	}
	if st.claimed[c.Triage.ID] {
		t.Error("claim should be released after a failed load")
	}
}

// ─── RUNNER ───────────────────────────────────────────────────────────────────

func TestRunWithRetry_ClaimedTriageIsSkipped(t *testing.T) {
	c := rexCase("")
	st := &stubStore{c: c, claimed: map[uuid.UUID]bool{c.Triage.ID: true}}
	d := &countingDecider{analysis: rexAnalysis}
	r := newTestRunner(st, d, &recordingPublisher{}, &recordingMailer{})

	r.runWithRetry(context.Background(), c.Triage.ID, discardLogger())

	if st.loads != 0 || d.calls != 0 {
		t.Errorf("claimed triage was processed: loads=%d calls=%d", st.loads, d.calls)
	}
	if len(st.failed) != 0 {
		t.Error("a held claim is not a failure")
	}
	if !st.claimed[c.Triage.ID] {
		t.Error("someone else's claim must not be released")
	}
}

func TestRunWithRetry_DecidedTriageIsSkipped(t *testing.T) {
	c := rexCase("")
	c.Triage.Opinion = sql.NullString{String: "already done", Valid: true}
	st := &stubStore{c: c}
	d := &countingDecider{analysis: rexAnalysis}
	r := newTestRunner(st, d, &recordingPublisher{}, &recordingMailer{})

	r.runWithRetry(context.Background(), c.Triage.ID, discardLogger())

	if d.calls != 0 || len(st.records) != 0 {
		t.Errorf("decided triage was analysed again: calls=%d records=%d", d.calls, len(st.records))
	}
	if st.claimed[c.Triage.ID] || st.released != 1 {
		t.Errorf("claim should be released once, released=%d", st.released)
	}
}

func TestStart_OneDecisionWhilePollOverlapsSlowDecider(t *testing.T) {
	c := rexCase("ana@example.com")
	st := &stubStore{c: c, pending: []uuid.UUID{c.Triage.ID}}
	d := &countingDecider{analysis: rexAnalysis, delay: 100 * time.Millisecond}
	pub := &recordingPublisher{}
	m := &recordingMailer{}
	job := NewJob(st, d, pub, m, discardLogger())
	r := NewRunner(job, st, RunnerConfig{Workers: 3, PollInterval: 10 * time.Millisecond, MaxRetries: 3}, discardLogger())
	r.delay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	if err := r.Enqueue(ctx, c.Triage.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Several poll cycles land while the first decision is still running.
	deadline := time.Now().Add(2 * time.Second)
	for st.recordCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if n := d.callCount(); n != 1 {
		t.Errorf("decider called %d times, want 1", n)
	}
	if n := st.recordCount(); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
	if n := m.readyCount(); n != 1 {
		t.Errorf("analysis emails = %d, want 1", n)
	}
}

func TestRunWithRetry_PersistRetriedDecisionAskedOnce(t *testing.T) {
	c := rexCase("")
	st := &stubStore{c: c, recordErrs: []error{errors.New("conn reset"), errors.New("conn reset")}}
	d := &countingDecider{analysis: rexAnalysis}
	pub := &recordingPublisher{}
	r := newTestRunner(st, d, pub, &recordingMailer{})

	r.runWithRetry(context.Background(), c.Triage.ID, discardLogger())

	if d.calls != 1 {
		t.Errorf("decider called %d times, want 1", d.calls)
	}
	if len(st.records) != 3 {
		t.Errorf("persist attempts = %d, want 3", len(st.records))
	}
	for i, rec := range st.records {
		if rec.Decision != rexAnalysis.Decision {
			t.Errorf("attempt %d persisted a different decision: %+v", i, rec.Decision)
		}
	}
	if len(st.failed) != 0 {
		t.Errorf("triage should not be marked failed")
	}
	if len(pub.got) != 1 {
		t.Errorf("expected one event after success, got %d", len(pub.got))
	}
}

func TestRunWithRetry_ExhaustedPersistMarksFailed(t *testing.T) {
	c := rexCase("")
	boom := errors.New("disk full")
	st := &stubStore{c: c, recordErrs: []error{boom, boom, boom}}
	pub := &recordingPublisher{}
	r := newTestRunner(st, &countingDecider{analysis: rexAnalysis}, pub, &recordingMailer{})

	r.runWithRetry(context.Background(), c.Triage.ID, discardLogger())

	reason, ok := st.failed[c.Triage.ID]
	if !ok {
		t.Fatal("expected triage to be marked failed")
	}
	if reason == "" {
		t.Error("expected a failure reason")
	}
	if len(pub.got) != 0 {
		t.Error("no event should be published for an unsaved decision")
	}
}

func TestRunWithRetry_MissingTriageIsDropped(t *testing.T) {
	st := &stubStore{loadErrs: []error{sql.ErrNoRows}}
	d := &countingDecider{analysis: rexAnalysis}
	r := newTestRunner(st, d, &recordingPublisher{}, &recordingMailer{})

	id := uuid.New()
	r.runWithRetry(context.Background(), id, discardLogger())

	if st.loads != 1 {
		t.Errorf("missing rows should not be retried, loads = %d", st.loads)
	}
	if d.calls != 0 {
		t.Error("decider should not run")
	}
	if _, ok := st.failed[id]; ok {
		t.Error("a missing triage cannot be marked failed")
	}
}

func TestRunWithRetry_LoadRetried(t *testing.T) {
	c := rexCase("")
	st := &stubStore{c: c, loadErrs: []error{errors.New("timeout")}}
	d := &countingDecider{analysis: rexAnalysis}
	r := newTestRunner(st, d, &recordingPublisher{}, &recordingMailer{})

	r.runWithRetry(context.Background(), c.Triage.ID, discardLogger())

	if st.loads != 2 {
		t.Errorf("loads = %d, want 2", st.loads)
	}
	if len(st.records) != 1 {
		t.Errorf("expected the decision to be persisted once, got %d", len(st.records))
	}
}

func TestEnqueue_FullQueueReturnsError(t *testing.T) {
	st := &stubStore{}
	job := NewJob(st, &countingDecider{}, events.Nop{}, email.Nop{}, discardLogger())
	r := NewRunner(job, st, RunnerConfig{Workers: 1}, discardLogger())

	for i := 0; i < cap(r.queue); i++ {
		if err := r.Enqueue(context.Background(), uuid.New()); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := r.Enqueue(context.Background(), uuid.New()); err == nil {
		t.Error("expected error on full queue")
	}
}

func TestPollOnce_EnqueuesPending(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	st := &stubStore{pending: ids}
	job := NewJob(st, &countingDecider{}, events.Nop{}, email.Nop{}, discardLogger())
	r := NewRunner(job, st, RunnerConfig{Workers: 2, MaxRetries: 4}, discardLogger())

	r.pollOnce(context.Background())

	if st.pollArgs != [2]int{4, pollBatch} {
		t.Errorf("unexpected poll args %v", st.pollArgs)
	}
	if len(r.queue) != 2 {
		t.Fatalf("queue len = %d, want 2", len(r.queue))
	}
	if got := <-r.queue; got != ids[0] {
		t.Errorf("first queued = %s, want %s", got, ids[0])
	}
}

func TestStart_ReturnsOnCancelWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	st := &stubStore{}
	job := NewJob(st, &countingDecider{}, events.Nop{}, email.Nop{}, discardLogger())
	r := NewRunner(job, st, RunnerConfig{Workers: 2, PollInterval: time.Hour}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
