package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/furnique/furnique-backend/pkg/db/dbtest"
	"github.com/furnique/furnique-backend/pkg/db/models"
	"github.com/furnique/furnique-backend/pkg/enums"
	"github.com/furnique/furnique-backend/pkg/logger"
	"github.com/furnique/furnique-backend/pkg/outbox"
)

// scriptedPruner returns one result per call.
type scriptedPruner struct {
	deleted []int64
	err     error
	cutoffs []time.Time
	limits  []int
}

func (s *scriptedPruner) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	s.limits = append(s.limits, limit)
	if len(s.deleted) == 0 {
		return 0, s.err
	}
	n := s.deleted[0]
	s.deleted = s.deleted[1:]
	return n, nil
}

func retentionJob(t *testing.T, repo outboxPruner, retention time.Duration, batch int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
		Retention:  retention,
		BatchSize:  batch,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionDrainsInBatches(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &scriptedPruner{deleted: []int64{10, 10, 3}}
	job := retentionJob(t, repo, 48*time.Hour, 10)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(repo.cutoffs) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(repo.cutoffs))
	}
	for i, c := range repo.cutoffs {
		if want := now.Add(-48 * time.Hour); !c.Equal(want) || repo.limits[i] != 10 {
			t.Fatalf("batch %d: cutoff %s limit %d", i, c, repo.limits[i])
		}
	}
}

func TestOutboxRetentionDefaults(t *testing.T) {
	job := retentionJob(t, &scriptedPruner{}, 0, 0)
	if job.retention != defaultOutboxRetention || job.batch != defaultRetentionBatch {
		t.Fatalf("unexpected defaults retention=%s batch=%d", job.retention, job.batch)
	}
}

func TestOutboxRetentionStopsOnError(t *testing.T) {
	boom := errors.New("lock timeout")
	repo := &scriptedPruner{deleted: []int64{5}, err: boom}
	job := retentionJob(t, repo, time.Hour, 5)
	if err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if len(repo.cutoffs) != 2 {
		t.Fatalf("expected a second batch to fail, got %d calls", len(repo.cutoffs))
	}
}

func TestOutboxRetentionKeepsPendingAndRecentRows(t *testing.T) {
	conn := dbtest.New(t).DB()
	old := time.Now().UTC().Add(-72 * time.Hour)
	older := old.Add(-time.Hour)
	recent := time.Now().UTC()
	rows := []models.OutboxEvent{
		{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, Payload: []byte(`{}`), PublishedAt: &old},
		{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, Payload: []byte(`{}`), PublishedAt: &older},
		{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, Payload: []byte(`{}`), PublishedAt: &recent},
		{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, Payload: []byte(`{}`)},
	}
	for i := range rows {
		if err := conn.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// a batch of one forces the loop to run more than once
	job := retentionJob(t, outbox.NewRepository(conn), 24*time.Hour, 1)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var left int64
	conn.Model(&models.OutboxEvent{}).Count(&left)
	if left != 2 {
		t.Fatalf("expected 2 rows left, got %d", left)
	}
}
