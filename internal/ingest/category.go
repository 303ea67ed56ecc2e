package ingest

import (
	"context"

	"example.com/telemetry/internal/domain"
	"example.com/telemetry/internal/observability"
)

// eventCategory describes how one telemetry category moves from wire payload
// to stored row. All categories share this shape and differ only in
// conversion and insert strategy; the storage layer decides duplicates.
type eventCategory[P any, E any] struct {
	name    string
	convert func(P) (E, bool) // false rejects the item outright
	insert  func(context.Context, []E) (int, error)
}

// runCategory converts and persists one category's payloads, recording
// accepted and rejected counts on the report. Items the store skips as
// duplicates count as rejected, matching the replay contract.
func runCategory[P any, E any](ctx context.Context, c eventCategory[P, E], payloads []P, report *domain.BatchReport) error {
	if len(payloads) == 0 {
		return nil
	}

	rows := make([]E, 0, len(payloads))
	invalid := 0
	for _, p := range payloads {
		row, ok := c.convert(p)
		if !ok {
			invalid++
			continue
		}
		rows = append(rows, row)
	}

	accepted := 0
	if len(rows) > 0 {
		var err error
		accepted, err = c.insert(ctx, rows)
		if err != nil {
			return err
		}
	}

	rejected := invalid + len(rows) - accepted
	report.Accept(c.name, accepted)
	report.Reject(c.name, rejected)
	observability.RecordEvents(c.name, accepted, rejected)
	return nil
}
