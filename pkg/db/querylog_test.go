package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/furnique/furnique-backend/pkg/logger"
)

func TestQueryLogWritesSlowAndFailedStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	q := newQueryLog(logger.New(logger.Options{ServiceName: "test", Output: buf, Format: "json"}), 100*time.Millisecond)
	stmt := func() (string, int64) { return `UPDATE orders SET order_status = 'PAID'`, 1 }
	ctx := context.Background()

	q.Trace(ctx, time.Now(), stmt, nil)
	q.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("fast and not-found statements should be quiet, got %s", buf.String())
	}

	q.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if !strings.Contains(buf.String(), "db.query_slow") || !strings.Contains(buf.String(), `"rows":1`) {
		t.Fatalf("slow statement not logged: %s", buf.String())
	}

	buf.Reset()
	q.Trace(ctx, time.Now(), stmt, errors.New("duplicate key"))
	if !strings.Contains(buf.String(), "db.query_failed") || !strings.Contains(buf.String(), "duplicate key") {
		t.Fatalf("failed statement not logged: %s", buf.String())
	}

	buf.Reset()
	q.LogMode(gormlogger.Silent).Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	if buf.Len() != 0 {
		t.Fatal("silent mode should discard")
	}
}

func TestQueryLogDisabledWithoutThreshold(t *testing.T) {
	if newQueryLog(logger.Nop(), 0) != gormlogger.Discard {
		t.Fatal("zero threshold should discard")
	}
}
