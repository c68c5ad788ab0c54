package store

import (
	"context"
	"time"
)

const checkTimeout = 5 * time.Second

type Check struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Detail     any    `json:"detail,omitempty"`
}

type Report struct {
	OK     bool             `json:"ok"`
	Checks map[string]Check `json:"checks"`
}

type checkable interface {
	Ping(ctx context.Context) error
	LoadContentRow(ctx context.Context) (*ContentRow, error)
	CheckWriteAccess(ctx context.Context) error
}

// Diagnose runs the connection, read and write checks in that order. The
// write check is rolled back, so it changes nothing and notifies no one.
func Diagnose(ctx context.Context, db checkable) Report {
	report := Report{OK: true, Checks: map[string]Check{}}
	run := func(name string, fn func(context.Context) (any, error)) {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		started := time.Now()
		detail, err := fn(checkCtx)
		check := Check{Status: "ok", DurationMs: time.Since(started).Milliseconds(), Detail: detail}
		if err != nil {
			report.OK = false
			check.Status = "error"
			check.Error = err.Error()
		}
		report.Checks[name] = check
	}

	run("connection", func(ctx context.Context) (any, error) {
		return nil, db.Ping(ctx)
	})
	run("read", func(ctx context.Context) (any, error) {
		row, err := db.LoadContentRow(ctx)
		if err != nil || row == nil {
			return map[string]any{"stored": false}, err
		}
		return map[string]any{"stored": true, "updatedAt": row.UpdatedAt, "sections": len(row.Content)}, nil
	})
	run("write", func(ctx context.Context) (any, error) {
		return nil, db.CheckWriteAccess(ctx)
	})
	return report
}
