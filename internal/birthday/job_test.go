package birthday

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wishday/wishday/internal/mailer"
	"github.com/wishday/wishday/internal/metrics"
	"github.com/wishday/wishday/internal/model"
	"github.com/wishday/wishday/internal/testutil"
)

// memFinder filters users with Query.Matches.
type memFinder struct {
	users []*model.User
	err   error
	last  Query
}

func (f *memFinder) FindBirthdays(ctx context.Context, q Query) ([]*model.User, error) {
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.User
	for _, u := range f.users {
		if q.Matches(u.DateOfBirth) {
			out = append(out, u)
		}
	}
	return out, nil
}

// recordingDispatcher fails for recipients listed in fail.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail map[string]bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msgs []mailer.Message) []mailer.Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	results := make([]mailer.Result, len(msgs))
	for i, m := range msgs {
		results[i] = mailer.Result{To: m.To, Attempts: 1}
		if d.fail[m.To] {
			results[i].Err = errors.New("smtp: connection refused")
			continue
		}
		results[i].MessageID = "msg-" + m.To
		d.sent = append(d.sent, m)
	}
	return results
}

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu       sync.Mutex
	marks    map[string]bool
	released []string
	err      error
}

func newMemLedger() *memLedger {
	return &memLedger{marks: make(map[string]bool)}
}

func (l *memLedger) key(year int, id string) string {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006") + ":" + id
}

func (l *memLedger) MarkNotified(ctx context.Context, year int, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	k := l.key(year, id)
	if l.marks[k] {
		return false, nil
	}
	l.marks[k] = true
	return true, nil
}

func (l *memLedger) ReleaseNotified(ctx context.Context, year int, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.marks, l.key(year, id))
	l.released = append(l.released, id)
	return nil
}

func user(id, name, email string, dob time.Time) *model.User {
	return &model.User{ID: id, Username: name, Email: email, DateOfBirth: dob}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobRun_SelectsWindowAndSends(t *testing.T) {
	t.Parallel()

	finder := &memFinder{users: []*model.User{
		user("1", "morning", "m@x.io", time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)),
		user("2", "late", "l@x.io", time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)),
		user("3", "tomorrow", "t@x.io", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)),
		user("4", "yesterday", "y@x.io", time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)),
	}}
	disp := &recordingDispatcher{}
	rec := metrics.NewInMemory()

	job := NewJob(finder, disp, JobConfig{Location: time.UTC}, discardLogger(),
		WithClock(testutil.FixedClock(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC))),
		WithMetrics(rec),
	)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Matched != 2 || report.Sent != 2 {
		t.Errorf("matched=%d sent=%d, want 2 and 2", report.Matched, report.Sent)
	}
	if report.Window.Date() != "2024-03-10" {
		t.Errorf("window date = %s", report.Window.Date())
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
	if len(disp.sent) != 2 || disp.sent[0].To != "m@x.io" || disp.sent[1].To != "l@x.io" {
		t.Errorf("unexpected sends: %+v", disp.sent)
	}

	snap := rec.Snapshot()
	if snap.ScansSucceeded != 1 || snap.ScanMatches != 2 {
		t.Errorf("scans=%d matches=%d", snap.ScansSucceeded, snap.ScanMatches)
	}
}

func TestJobRun_ZeroMatches(t *testing.T) {
	t.Parallel()

	finder := &memFinder{users: []*model.User{
		user("1", "ada", "ada@x.io", time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)),
	}}
	disp := &recordingDispatcher{}

	job := NewJob(finder, disp, JobConfig{Location: time.UTC}, discardLogger(),
		WithClock(testutil.FixedClock(time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC))),
	)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Matched != 0 || len(disp.sent) != 0 {
		t.Errorf("expected no matches and no sends, got %+v", report)
	}
}

func TestJobRun_QueryFailure(t *testing.T) {
	t.Parallel()

	finder := &memFinder{err: errors.New("connection reset")}
	disp := &recordingDispatcher{}
	rec := metrics.NewInMemory()

	job := NewJob(finder, disp, JobConfig{}, discardLogger(), WithMetrics(rec))

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(disp.sent) != 0 {
		t.Error("nothing should be sent when the query fails")
	}
	if rec.Snapshot().ScansFailed != 1 {
		t.Error("expected a failed scan to be recorded")
	}
}

func TestJobRun_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	dob := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)
	finder := &memFinder{users: []*model.User{
		user("1", "a", "a@x.io", dob),
		user("2", "b", "b@x.io", dob),
		user("3", "c", "c@x.io", dob),
	}}
	disp := &recordingDispatcher{fail: map[string]bool{"b@x.io": true}}
	ledger := newMemLedger()

	job := NewJob(finder, disp, JobConfig{Location: time.UTC}, discardLogger(),
		WithClock(testutil.FixedClock(dob)),
		WithLedger(ledger),
	)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Sent != 2 || report.Failed != 1 {
		t.Errorf("sent=%d failed=%d, want 2 and 1", report.Sent, report.Failed)
	}
	if len(disp.sent) != 2 {
		t.Errorf("expected 2 deliveries, got %d", len(disp.sent))
	}

	var failed *Outcome
	for i := range report.Results {
		if report.Results[i].Status == StatusFailed {
			failed = &report.Results[i]
		}
	}
	if failed == nil || failed.UserID != "2" || failed.Err == nil {
		t.Fatalf("failure should be attributed to user 2: %+v", report.Results)
	}
	if len(ledger.released) != 1 || ledger.released[0] != "2" {
		t.Errorf("failed user should be released from the ledger, got %v", ledger.released)
	}
}

func TestJobRun_LedgerSkipsRepeat(t *testing.T) {
	t.Parallel()

	dob := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)
	finder := &memFinder{users: []*model.User{user("1", "a", "a@x.io", dob)}}
	disp := &recordingDispatcher{}

	job := NewJob(finder, disp, JobConfig{Location: time.UTC}, discardLogger(),
		WithClock(testutil.FixedClock(dob)),
		WithLedger(newMemLedger()),
	)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if report.Skipped != 1 || report.Sent != 0 {
		t.Errorf("second run: skipped=%d sent=%d, want 1 and 0", report.Skipped, report.Sent)
	}
	if len(disp.sent) != 1 {
		t.Errorf("expected a single delivery across runs, got %d", len(disp.sent))
	}
}

func TestJobRun_LedgerErrorStillSends(t *testing.T) {
	t.Parallel()

	dob := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)
	finder := &memFinder{users: []*model.User{user("1", "a", "a@x.io", dob)}}
	disp := &recordingDispatcher{}
	ledger := newMemLedger()
	ledger.err = errors.New("redis down")

	job := NewJob(finder, disp, JobConfig{Location: time.UTC}, discardLogger(),
		WithClock(testutil.FixedClock(dob)),
		WithLedger(ledger),
	)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Sent != 1 {
		t.Errorf("sent = %d, want 1", report.Sent)
	}
}

func TestJobRun_AdaExactAndAnniversary(t *testing.T) {
	t.Parallel()

	lagos := mustLoad(t, "Africa/Lagos")
	ada := user("ada", "Ada", "ada@x.io", time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC))
	mayDay2024 := testutil.FixedClock(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC))

	exactDisp := &recordingDispatcher{}
	exact := NewJob(&memFinder{users: []*model.User{ada}}, exactDisp,
		JobConfig{Location: lagos, Mode: MatchExact}, discardLogger(), WithClock(mayDay2024))
	if _, err := exact.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(exactDisp.sent) != 0 {
		t.Error("exact mode should not greet Ada in 2024")
	}

	annDisp := &recordingDispatcher{}
	finder := &memFinder{users: []*model.User{ada}}
	anniversary := NewJob(finder, annDisp,
		JobConfig{Location: lagos, Mode: MatchAnniversary}, discardLogger(), WithClock(mayDay2024))
	if _, err := anniversary.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(annDisp.sent) != 1 {
		t.Fatalf("anniversary mode should greet Ada, got %d sends", len(annDisp.sent))
	}
	if finder.last.TimezoneName() != "Africa/Lagos" {
		t.Errorf("query timezone = %s", finder.last.TimezoneName())
	}

	msg := annDisp.sent[0]
	if msg.Subject != "Happy Birthday " {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.HasPrefix(msg.Text, "Dear Ada,\n\nHappy Birthday.") {
		t.Errorf("unexpected body: %q", msg.Text)
	}
	if !strings.HasSuffix(msg.Text, "Best regards,\nDavid") {
		t.Errorf("unexpected signature: %q", msg.Text)
	}
}

func TestGreeting_Signature(t *testing.T) {
	t.Parallel()

	msg := Greeting(&model.User{Username: "Bo", Email: "bo@x.io"}, "The Team")
	if msg.To != "bo@x.io" {
		t.Errorf("To = %s", msg.To)
	}
	if !strings.HasSuffix(msg.Text, "Best regards,\nThe Team") {
		t.Errorf("unexpected body: %q", msg.Text)
	}
}
