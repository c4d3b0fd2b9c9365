package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/od/service"
)

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

func TestDates(t *testing.T) {
	got, err := Dates(time.Date(2024, 2, 28, 15, 4, 0, 0, time.UTC), time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if s := got[i].Format(time.DateOnly); s != want[i] {
			t.Errorf("Dates[%d] = %s, want %s", i, s, want[i])
		}
		if got[i].Hour() != 0 {
			t.Errorf("Dates[%d] not at midnight: %v", i, got[i])
		}
	}

	one, err := Dates(day(5), day(5))
	if err != nil || len(one) != 1 {
		t.Errorf("Dates(same day) = %v, %v, want one date", one, err)
	}

	if _, err := Dates(day(5), day(4)); !od.IsConfiguration(err) {
		t.Errorf("Dates(end before start) err = %v, want ConfigurationError", err)
	}
}

// fakeBuilder returns two written bands per date, except for the dates listed in empty or
// broken.
type fakeBuilder struct {
	empty  map[int]bool
	broken map[int]bool
	calls  atomic.Int32
	block  chan struct{}
}

func (b *fakeBuilder) BuildDate(ctx context.Context, date time.Time) ([]service.UnitResult, error) {
	b.calls.Add(1)
	if b.block != nil {
		<-b.block
	}
	d := date.Day()
	switch {
	case b.empty[d]:
		return []service.UnitResult{{Date: date, Band: service.DateBand, Status: service.StatusSkipped, Err: od.ErrEmptyPopulation}}, od.ErrEmptyPopulation
	case b.broken[d]:
		err := &od.UpstreamIOError{Op: "fetch", Err: errors.New("timeout")}
		return []service.UnitResult{{Date: date, Band: service.DateBand, Status: service.StatusFailed, Err: err}}, err
	}
	return []service.UnitResult{
		{Date: date, Band: "Mañana", Status: service.StatusWritten},
		{Date: date, Band: "Tarde", Status: service.StatusWritten},
	}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []service.UnitResult
}

func (s *recordingSink) Record(_ context.Context, r service.UnitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func TestRunner_Run_ContinuesPastFailedDates(t *testing.T) {
	b := &fakeBuilder{empty: map[int]bool{2: true}, broken: map[int]bool{3: true}}
	sink := &recordingSink{}
	r := NewRunner(b, 3, nil, sink)

	rep, err := r.Run(context.Background(), day(1), day(4))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Dates != 4 {
		t.Errorf("Dates = %d, want 4", rep.Dates)
	}
	if rep.Written != 4 || rep.Skipped != 1 || rep.Failed != 1 {
		t.Errorf("written/skipped/failed = %d/%d/%d, want 4/1/1", rep.Written, rep.Skipped, rep.Failed)
	}
	if rep.RunID == "" {
		t.Error("RunID is empty")
	}
	if len(rep.Failures()) != 1 {
		t.Errorf("Failures = %d, want 1", len(rep.Failures()))
	}
	for i := 1; i < len(rep.Results); i++ {
		if rep.Results[i].Date.Before(rep.Results[i-1].Date) {
			t.Fatalf("results not ordered by date at %d", i)
		}
	}
	if len(sink.results) != len(rep.Results) {
		t.Errorf("sink saw %d results, want %d", len(sink.results), len(rep.Results))
	}
	for _, res := range sink.results {
		if res.RunID != rep.RunID {
			t.Errorf("sink result RunID = %q, want %q", res.RunID, rep.RunID)
		}
	}
}

func TestRunner_Run_BadRange(t *testing.T) {
	b := &fakeBuilder{}
	_, err := NewRunner(b, 1, nil).Run(context.Background(), day(5), day(1))
	if !od.IsConfiguration(err) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
	if n := b.calls.Load(); n != 0 {
		t.Errorf("BuildDate calls = %d, want 0", n)
	}
}

func TestRunner_Run_CanceledStopsScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &fakeBuilder{}
	rep, err := NewRunner(b, 2, nil).Run(ctx, day(1), day(10))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n := b.calls.Load(); n != 0 {
		t.Errorf("BuildDate calls = %d, want 0", n)
	}
	if rep.Dates != 0 {
		t.Errorf("Dates = %d, want 0", rep.Dates)
	}
}

func TestRunner_Run_BoundedWorkers(t *testing.T) {
	b := &fakeBuilder{block: make(chan struct{})}
	r := NewRunner(b, 2, nil)
	done := make(chan Report)
	go func() {
		rep, _ := r.Run(context.Background(), day(1), day(5))
		done <- rep
	}()
	deadline := time.Now().Add(2 * time.Second)
	for b.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := b.calls.Load(); n != 2 {
		t.Errorf("concurrent BuildDate calls = %d, want 2", n)
	}
	close(b.block)
	rep := <-done
	if rep.Dates != 5 {
		t.Errorf("Dates = %d, want 5", rep.Dates)
	}
}

func TestRunner_RunOne(t *testing.T) {
	b := &fakeBuilder{empty: map[int]bool{2: true}, broken: map[int]bool{3: true}}
	r := NewRunner(b, 1, nil)

	rep, err := r.RunOne(context.Background(), day(1))
	if err != nil || rep.Written != 2 {
		t.Errorf("RunOne(ok) = %+v, %v", rep, err)
	}

	rep, err = r.RunOne(context.Background(), day(2))
	if err != nil {
		t.Errorf("RunOne(empty) err = %v, want nil", err)
	}
	if rep.Skipped != 1 {
		t.Errorf("RunOne(empty) skipped = %d, want 1", rep.Skipped)
	}

	_, err = r.RunOne(context.Background(), day(3))
	var up *od.UpstreamIOError
	if !errors.As(err, &up) {
		t.Errorf("RunOne(broken) err = %v, want *UpstreamIOError", err)
	}
}

func TestSinkFunc(t *testing.T) {
	var got string
	var s Sink = SinkFunc(func(_ context.Context, r service.UnitResult) { got = r.Band })
	s.Record(context.Background(), service.UnitResult{Band: "Noche"})
	if got != "Noche" {
		t.Errorf("SinkFunc saw %q, want Noche", got)
	}
}
