package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/furnique/furnique-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name        string
	err         error
	runs        int
	sawDeadline bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	_, j.sawDeadline = ctx.Deadline()
	return j.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: registry, Lock: lock, JobTimeout: time.Minute})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	ok := &countingJob{name: "outbox-retention"}
	bad := &countingJob{name: "draft-expiry", err: errors.New("gateway down")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, bad, ok)

	err := svc.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "draft-expiry: gateway down") {
		t.Fatalf("expected failing job in error, got %v", err)
	}
	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("runs ok=%d bad=%d", ok.runs, bad.runs)
	}
	if !ok.sawDeadline {
		t.Fatal("job context should carry the job timeout")
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock not released: held=%v releases=%d", lock.held, lock.releases)
	}
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "draft-expiry"}
	svc := newTestService(t, &fakeLock{held: true}, job)
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatal("job ran without the lock")
	}
}

func TestRunJobByName(t *testing.T) {
	expiry := &countingJob{name: "draft-expiry"}
	retention := &countingJob{name: "outbox-retention"}
	svc := newTestService(t, &fakeLock{}, expiry, retention)

	if err := svc.RunJob(context.Background(), "outbox-retention"); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if retention.runs != 1 || expiry.runs != 0 {
		t.Fatalf("wrong job ran: expiry=%d retention=%d", expiry.runs, retention.runs)
	}
	if err := svc.RunJob(context.Background(), "nope"); err == nil {
		t.Fatal("expected unknown job error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "draft-expiry"}
	svc := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
