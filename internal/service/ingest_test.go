package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sightline-hq/sightline/internal/domain"
	"github.com/sightline-hq/sightline/internal/domain/telemetry"
	"github.com/sightline-hq/sightline/internal/port/eventsource"
)

type fakePublisher struct {
	published []telemetry.ExecutionEvent
}

func (f *fakePublisher) Publish(ev telemetry.ExecutionEvent) {
	f.published = append(f.published, ev)
}

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func TestIngestRecord(t *testing.T) {
	src := &fakeSource{}
	hub := &fakePublisher{}
	svc := NewIngestService(src, hub, nil)
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	in := telemetry.ExecutionEvent{
		SessionID: "sess-1",
		HookEvent: telemetry.HookPostAction,
		Status:    telemetry.StatusSuccess,
	}

	out, err := svc.Record(context.Background(), in)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if out.ID == "" {
		t.Error("missing ID should be filled in")
	}
	if !out.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want filled with %v", out.Timestamp, fixed)
	}

	if len(hub.published) != 1 || hub.published[0].ID != out.ID {
		t.Errorf("published = %+v, want the normalized event", hub.published)
	}
	if len(src.appended) != 1 || src.appended[0].ID != out.ID {
		t.Errorf("appended = %+v, want the normalized event", src.appended)
	}
}

func TestIngestRecordPreservesProvidedFields(t *testing.T) {
	svc := NewIngestService(&fakeSource{}, &fakePublisher{}, nil)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	out, err := svc.Record(context.Background(), telemetry.ExecutionEvent{
		ID:        "given-id",
		Timestamp: ts,
		HookEvent: telemetry.HookStop,
		Status:    telemetry.StatusError,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if out.ID != "given-id" || !out.Timestamp.Equal(ts) {
		t.Errorf("provided ID/timestamp were overwritten: %+v", out)
	}
}

func TestIngestRecordValidation(t *testing.T) {
	svc := NewIngestService(&fakeSource{}, &fakePublisher{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		ev   telemetry.ExecutionEvent
	}{
		{"missing hook_event", telemetry.ExecutionEvent{Status: telemetry.StatusSuccess}},
		{"bad status", telemetry.ExecutionEvent{HookEvent: telemetry.HookStop, Status: "pending"}},
		{"negative duration", telemetry.ExecutionEvent{
			HookEvent: telemetry.HookStop, Status: telemetry.StatusSuccess, DurationMS: i64(-1),
		}},
		{"negative cost", telemetry.ExecutionEvent{
			HookEvent: telemetry.HookStop, Status: telemetry.StatusSuccess, CostUSD: f64(-0.5),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tt.ev)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Record = %v, want ErrValidation", err)
			}
		})
	}
}

func TestIngestRecordSurvivesStoreFailure(t *testing.T) {
	hub := &fakePublisher{}
	svc := NewIngestService(failingSource{}, hub, nil)

	out, err := svc.Record(context.Background(), telemetry.ExecutionEvent{
		HookEvent: telemetry.HookPreAction,
		Status:    telemetry.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("Record should not surface store errors, got %v", err)
	}
	if len(hub.published) != 1 || hub.published[0].ID != out.ID {
		t.Error("event must still reach the live stream when the store is down")
	}
}

func TestIngestRecent(t *testing.T) {
	src := &fakeSource{recent: []telemetry.ExecutionEvent{{ID: "b"}, {ID: "a"}}}
	svc := NewIngestService(src, &fakePublisher{}, nil)

	events, err := svc.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 || events[0].ID != "b" {
		t.Errorf("Recent = %+v, want newest first", events)
	}
}

// failingSource accepts nothing.
type failingSource struct{}

func (failingSource) Append(context.Context, *telemetry.ExecutionEvent) error {
	return errors.New("store down")
}

func (failingSource) UsageByAgent(context.Context, time.Time) ([]eventsource.AgentUsage, error) {
	return nil, errors.New("store down")
}

func (failingSource) Recent(context.Context, int) ([]telemetry.ExecutionEvent, error) {
	return nil, errors.New("store down")
}
