package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shadayguerrero/sedatu/internal/network/writer"
	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/ping/domain"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

var testDate = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func at(hh, mm, ss int) int64 {
	return time.Date(2024, 3, 5, hh, mm, ss, 0, time.UTC).Unix()
}

type fakeRepo struct {
	pings []domain.Ping
	err   error
	panic string
	calls int
}

func (r *fakeRepo) Fetch(ctx context.Context, date time.Time, f *zone.Filter) ([]domain.Ping, error) {
	r.calls++
	if r.panic != "" {
		panic(r.panic)
	}
	if r.err != nil {
		return nil, r.err
	}
	return append([]domain.Ping(nil), r.pings...), nil
}

type fakeWriter struct {
	mu       sync.Mutex
	networks map[string]od.Network
	failOn   string
}

func (w *fakeWriter) Write(ctx context.Context, u writer.Unit, n od.Network) (string, error) {
	if u.Token == w.failOn {
		return "", errors.New("disk full")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.networks == nil {
		w.networks = map[string]od.Network{}
	}
	w.networks[u.Token] = n
	return writer.FileName(u.Suffix, u.Name, u.Date, u.Token), nil
}

func mustFilter(t *testing.T, codes ...string) *zone.Filter {
	t.Helper()
	f, err := zone.NewFilter(codes, 1)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	return f
}

func TestBuildDate_BandsShareDayTransitions(t *testing.T) {
	repo := &fakeRepo{pings: []domain.Ping{
		// d1 leaves A at 09:59:00 (Mañana) and reaches B at 10:30:00 (MedioDia).
		{DeviceID: "d1", ZoneID: "A", Timestamp: at(9, 59, 0)},
		{DeviceID: "d1", ZoneID: "B", Timestamp: at(10, 30, 0)},
		{DeviceID: "d2", ZoneID: "A", Timestamp: at(15, 0, 0)},
		{DeviceID: "d2", ZoneID: "C", Timestamp: at(15, 1, 0)},
		{DeviceID: "d2", ZoneID: "Z", Timestamp: at(16, 0, 0)},
	}}
	out := &fakeWriter{}
	b, err := NewBuilder(repo, out, Options{
		Variant:     VariantCVEGEO,
		Filter:      mustFilter(t, "A", "B", "C"),
		Dwell:       30,
		Location:    time.UTC,
		BandWorkers: 3,
	}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	results, err := b.BuildDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("BuildDate: %v", err)
	}
	if len(results) != len(od.DefaultBands) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(od.DefaultBands))
	}
	if repo.calls != 1 {
		t.Errorf("Fetch calls = %d, want 1", repo.calls)
	}
	for i, r := range results {
		if r.Status != StatusWritten {
			t.Errorf("results[%d] status = %s (%v), want written", i, r.Status, r.Err)
		}
		if r.Band != od.DefaultBands[i].Name {
			t.Errorf("results[%d].Band = %q, want %q", i, r.Band, od.DefaultBands[i].Name)
		}
		if r.TotalDevices != 2 {
			t.Errorf("results[%d].TotalDevices = %d, want day-wide 2", i, r.TotalDevices)
		}
	}

	manana := out.networks["Mañana"]
	if len(manana.Edges) != 1 || manana.Edges[0] != (od.Edge{Source: "A", Target: "B", Weight: 500000}) {
		t.Errorf("Mañana edges = %+v, want A->B 500000", manana.Edges)
	}
	if got := out.networks["MedioDia"]; len(got.Edges) != 0 {
		t.Errorf("MedioDia edges = %+v, want none (departure anchors the band)", got.Edges)
	}
	tarde := out.networks["Tarde"]
	if len(tarde.Edges) != 1 || tarde.Edges[0].Source != "A" || tarde.Edges[0].Target != "C" {
		t.Errorf("Tarde edges = %+v, want A->C only (Z filtered out)", tarde.Edges)
	}
}

func TestBuildDate_EmptyPopulation(t *testing.T) {
	repo := &fakeRepo{pings: []domain.Ping{{DeviceID: "d1", ZoneID: "X", Timestamp: at(8, 0, 0)}}}
	out := &fakeWriter{}
	b, err := NewBuilder(repo, out, Options{Variant: VariantCVEGEO, Filter: mustFilter(t, "A"), Location: time.UTC}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	results, err := b.BuildDate(context.Background(), testDate)
	if !errors.Is(err, od.ErrEmptyPopulation) {
		t.Fatalf("err = %v, want ErrEmptyPopulation", err)
	}
	if len(results) != 1 || results[0].Band != DateBand || results[0].Status != StatusSkipped {
		t.Errorf("results = %+v, want one skipped date result", results)
	}
	if len(results[0].Warnings) == 0 {
		t.Error("skipped date should carry a warning")
	}
	if len(out.networks) != 0 {
		t.Errorf("networks written = %d, want 0", len(out.networks))
	}
}

func TestBuildDate_FetchError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection reset")}
	b, err := NewBuilder(repo, &fakeWriter{}, Options{Variant: VariantMunicipioAll, Location: time.UTC}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	results, err := b.BuildDate(context.Background(), testDate)
	var up *od.UpstreamIOError
	if !errors.As(err, &up) {
		t.Fatalf("err = %v, want *UpstreamIOError", err)
	}
	if len(results) != 1 || results[0].Status != StatusFailed {
		t.Errorf("results = %+v, want one failed date result", results)
	}
}

func TestBuildDate_RepositoryPanicFailsDate(t *testing.T) {
	repo := &fakeRepo{panic: "unsafe.String: ptr is nil and len is not zero"}
	b, err := NewBuilder(repo, &fakeWriter{}, Options{Variant: VariantMunicipioAll, Location: time.UTC}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	results, err := b.BuildDate(context.Background(), testDate)
	var up *od.UpstreamIOError
	if !errors.As(err, &up) {
		t.Fatalf("err = %v, want *UpstreamIOError", err)
	}
	if len(results) != 1 || results[0].Status != StatusFailed {
		t.Errorf("results = %+v, want one failed date result", results)
	}
}

func TestBuildDate_UpstreamErrorNotRewrapped(t *testing.T) {
	cause := &od.UpstreamIOError{Op: "read part-0.parquet", Err: errors.New("bad page")}
	b, err := NewBuilder(&fakeRepo{err: cause}, &fakeWriter{}, Options{Variant: VariantMunicipioAll, Location: time.UTC}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	_, err = b.BuildDate(context.Background(), testDate)
	if err != cause {
		t.Errorf("err = %v, want the repository error unchanged", err)
	}
}

func TestBuildDate_WriteFailureIsLocalToUnit(t *testing.T) {
	repo := &fakeRepo{pings: []domain.Ping{
		{DeviceID: "d1", ZoneID: "09002", Timestamp: at(7, 0, 0)},
		{DeviceID: "d1", ZoneID: "09003", Timestamp: at(8, 0, 0)},
	}}
	out := &fakeWriter{failOn: "Madrugada"}
	b, err := NewBuilder(repo, out, Options{Variant: VariantMunicipioAll, Location: time.UTC}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	results, err := b.BuildDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("BuildDate: %v", err)
	}
	var failed, written int
	for _, r := range results {
		switch r.Status {
		case StatusFailed:
			failed++
			var up *od.UpstreamIOError
			if !errors.As(r.Err, &up) {
				t.Errorf("failed unit err = %v, want *UpstreamIOError", r.Err)
			}
		case StatusWritten:
			written++
		}
	}
	if failed != 1 || written != len(od.DefaultBands)-1 {
		t.Errorf("failed=%d written=%d, want 1 and %d", failed, written, len(od.DefaultBands)-1)
	}
	// Complete mode over the two observed municipalities.
	if got := len(out.networks["Mañana"].Edges); got != 4 {
		t.Errorf("Mañana edges = %d, want 4", got)
	}
}

func TestBuildDate_InvalidBandSkipped(t *testing.T) {
	repo := &fakeRepo{pings: []domain.Ping{
		{DeviceID: "d1", ZoneID: "A", Timestamp: at(7, 0, 0)},
		{DeviceID: "d1", ZoneID: "B", Timestamp: at(8, 0, 0)},
	}}
	out := &fakeWriter{}
	b, err := NewBuilder(repo, out, Options{
		Variant:  VariantCVEGEO,
		Filter:   mustFilter(t, "A", "B"),
		Location: time.UTC,
		Bands: []od.TimeBand{
			{Name: "inverted", Start: "10:00:00", End: "06:00:00"},
			{Name: "morning", Start: "06:00:00", End: "10:00:00"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	results, err := b.BuildDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("BuildDate: %v", err)
	}
	if results[0].Status != StatusSkipped {
		t.Errorf("inverted band status = %s, want skipped", results[0].Status)
	}
	var iw *od.InvalidWindowError
	if !errors.As(results[0].Err, &iw) {
		t.Errorf("inverted band err = %v, want *InvalidWindowError", results[0].Err)
	}
	if results[1].Status != StatusWritten || results[1].Edges != 1 {
		t.Errorf("morning band = %+v, want written with 1 edge", results[1])
	}
	if _, ok := out.networks["inverted"]; ok {
		t.Error("inverted band must not be written")
	}
}

func TestBuildDate_RedMunicipalEndpoints(t *testing.T) {
	repo := &fakeRepo{pings: []domain.Ping{
		{DeviceID: "d1", ZoneID: "09002", Timestamp: at(6, 30, 0)},
		{DeviceID: "d1", ZoneID: "09003", Timestamp: at(7, 0, 0)},
		{DeviceID: "d1", ZoneID: "09004", Timestamp: at(9, 0, 0)},
		{DeviceID: "d2", ZoneID: "09004", Timestamp: at(6, 45, 0)},
		{DeviceID: "d2", ZoneID: "09002", Timestamp: at(12, 0, 0)},
	}}
	out := &fakeWriter{}
	b, err := NewBuilder(repo, out, Options{Variant: VariantRedMunicipal, Location: time.UTC}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if _, err := b.BuildDate(context.Background(), testDate); err != nil {
		t.Fatalf("BuildDate: %v", err)
	}
	manana := out.networks["Mañana"]
	if manana.Weighted {
		t.Error("red_municipal networks carry raw counts")
	}
	// Observed in Mañana: 09002, 09003, 09004 -> 9 pairs; only d1 moves 09002 -> 09004.
	if len(manana.Edges) != 9 {
		t.Fatalf("Mañana edges = %d, want 9", len(manana.Edges))
	}
	for _, e := range manana.Edges {
		want := 0.0
		if e.Source == "09002" && e.Target == "09004" {
			want = 1
		}
		if e.Weight != want {
			t.Errorf("edge %s->%s = %v, want %v", e.Source, e.Target, e.Weight, want)
		}
	}
	// d2's pings fall in different bands, so no band sees it move.
	if got := len(out.networks["MedioDia"].Edges); got != 1 {
		t.Errorf("MedioDia edges = %d, want 1 (single zone, diagonal only)", got)
	}
	if _, ok := out.networks["Tarde"]; ok {
		t.Error("band with no devices must be skipped, not written")
	}
}

func TestBuildDate_SingleWindowScopesDenominator(t *testing.T) {
	band, err := od.ParseWindow("08:00-09:00")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	repo := &fakeRepo{pings: []domain.Ping{
		{DeviceID: "d1", ZoneID: "A", Timestamp: at(8, 0, 0)},
		{DeviceID: "d1", ZoneID: "B", Timestamp: at(8, 30, 0)},
		{DeviceID: "d1", ZoneID: "C", Timestamp: at(9, 30, 0)},
		{DeviceID: "d2", ZoneID: "A", Timestamp: at(12, 0, 0)},
	}}
	out := &fakeWriter{}
	b, err := NewBuilder(repo, out, Options{
		Variant:      VariantCVEGEO,
		Filter:       mustFilter(t, "A", "B", "C"),
		Bands:        []od.TimeBand{band},
		SingleWindow: true,
		Location:     time.UTC,
	}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	results, err := b.BuildDate(context.Background(), testDate)
	if err != nil {
		t.Fatalf("BuildDate: %v", err)
	}
	if results[0].TotalDevices != 1 {
		t.Errorf("TotalDevices = %d, want 1 (only d1 is inside the window)", results[0].TotalDevices)
	}
	n := out.networks["08:00-09:00"]
	if len(n.Edges) != 1 || n.Edges[0] != (od.Edge{Source: "A", Target: "B", Weight: 1000000}) {
		t.Errorf("edges = %+v, want A->B 1000000", n.Edges)
	}
}

func TestNewBuilder_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing allowlist", Options{Variant: VariantCVEGEO}},
		{"negative dwell", Options{Variant: VariantMunicipioAll, Dwell: -1}},
		{"no variant", Options{}},
		{"malformed band", Options{Variant: VariantMunicipioAll, Bands: []od.TimeBand{{Name: "x", Start: "aa", End: "10:00:00"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(&fakeRepo{}, &fakeWriter{}, tt.opts, nil)
			if !od.IsConfiguration(err) {
				t.Errorf("err = %v, want ConfigurationError", err)
			}
		})
	}
	if _, err := NewBuilder(nil, &fakeWriter{}, Options{Variant: VariantMunicipioAll}, nil); err == nil {
		t.Error("NewBuilder without repository should fail")
	}
}

func TestVariantByName(t *testing.T) {
	for _, name := range VariantNames() {
		v, err := VariantByName(name)
		if err != nil || v.Name != name {
			t.Errorf("VariantByName(%q) = %+v, %v", name, v, err)
		}
	}
	if _, err := VariantByName("od_state"); !od.IsConfiguration(err) {
		t.Errorf("unknown variant err = %v, want ConfigurationError", err)
	}
}
