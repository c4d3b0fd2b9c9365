package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

func writePartition[T any](t *testing.T, root string, date time.Time, name string, rows []T) {
	t.Helper()
	dir := PartitionDir(root, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := parquet.WriteFile(filepath.Join(dir, name), rows); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

type int32Row struct {
	CAID         string `parquet:"caid"`
	CveEnt       int32  `parquet:"cve_ent"`
	CveMun       int32  `parquet:"cve_mun"`
	UTCTimestamp int64  `parquet:"utc_timestamp"`
}

type int64Row struct {
	CAID         string  `parquet:"caid,optional"`
	CVEGEO       *int64  `parquet:"cvegeo,optional"`
	CveEnt       *int64  `parquet:"cve_ent,optional"`
	CveMun       *int64  `parquet:"cve_mun,optional"`
	UTCTimestamp float64 `parquet:"utc_timestamp,optional"`
}

func ptr[T any](v T) *T { return &v }

func TestPartitionDir(t *testing.T) {
	got := PartitionDir("/data", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	want := filepath.Join("/data", "year=2024", "month=03", "day=05")
	if got != want {
		t.Errorf("PartitionDir = %q, want %q", got, want)
	}
}

func TestParquetRepository_FetchAGEB(t *testing.T) {
	root := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	writePartition(t, root, date, "part-0.parquet", []Row{
		{CAID: "d1", CVEGEO: "0900200010010", UTCTimestamp: 100},
		{CAID: "d1", CVEGEO: "900200010025", UTCTimestamp: 200},
		{CAID: "d2", CVEGEO: "1500200010010", UTCTimestamp: 150},
		{CAID: "d3", CVEGEO: "", UTCTimestamp: 150},
	})
	if err := os.WriteFile(filepath.Join(PartitionDir(root, date), "_SUCCESS"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := zone.NewFilter([]string{"0900200010010", "0900200010025"}, zone.AGEB.Width())
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	repo := NewParquetRepository(root+"/", zone.AGEB)
	pings, err := repo.Fetch(context.Background(), date, f)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(pings) != 2 {
		t.Fatalf("len(pings) = %d, want 2: %+v", len(pings), pings)
	}
	if pings[1].ZoneID != "0900200010025" {
		t.Errorf("ZoneID = %q, want padded code", pings[1].ZoneID)
	}
}

func TestParquetRepository_FetchMunicipality(t *testing.T) {
	root := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	writePartition(t, root, date, "a.parquet", []Row{
		{CAID: "d1", CveEnt: "9", CveMun: "2", UTCTimestamp: 100},
		{CAID: "d1", CveEnt: "15", CveMun: "104", UTCTimestamp: 200},
		{CAID: "d2", CveEnt: "", CveMun: "104", UTCTimestamp: 300},
	})
	repo := NewParquetRepository(root, zone.Municipality)
	pings, err := repo.Fetch(context.Background(), date, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(pings) != 2 {
		t.Fatalf("len(pings) = %d, want 2", len(pings))
	}
	if pings[0].ZoneID != "09002" || pings[1].ZoneID != "15104" {
		t.Errorf("zones = %q, %q; want 09002, 15104", pings[0].ZoneID, pings[1].ZoneID)
	}
}

func TestParquetRepository_FetchNumericZoneParts(t *testing.T) {
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		write func(t *testing.T, root string)
	}{
		{
			name: "int32",
			write: func(t *testing.T, root string) {
				writePartition(t, root, date, "a.parquet", []int32Row{
					{CAID: "d1", CveEnt: 9, CveMun: 2, UTCTimestamp: 100},
					{CAID: "d1", CveEnt: 15, CveMun: 104, UTCTimestamp: 200},
				})
			},
		},
		{
			name: "optional int64 and double timestamp",
			write: func(t *testing.T, root string) {
				writePartition(t, root, date, "a.parquet", []int64Row{
					{CAID: "d1", CveEnt: ptr(int64(9)), CveMun: ptr(int64(2)), UTCTimestamp: 100.7},
					{CAID: "d1", CveEnt: ptr(int64(15)), CveMun: ptr(int64(104)), UTCTimestamp: 200},
					{CAID: "d2", CveMun: ptr(int64(104)), UTCTimestamp: 300},
				})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tt.write(t, root)
			pings, err := NewParquetRepository(root, zone.Municipality).Fetch(context.Background(), date, nil)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(pings) != 2 {
				t.Fatalf("len(pings) = %d, want 2: %+v", len(pings), pings)
			}
			if pings[0].ZoneID != "09002" || pings[1].ZoneID != "15104" {
				t.Errorf("zones = %q, %q; want 09002, 15104", pings[0].ZoneID, pings[1].ZoneID)
			}
			if pings[0].Timestamp != 100 || pings[1].Timestamp != 200 {
				t.Errorf("timestamps = %d, %d; want 100, 200", pings[0].Timestamp, pings[1].Timestamp)
			}
		})
	}
}

func TestParquetRepository_FetchNumericCVEGEO(t *testing.T) {
	root := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	writePartition(t, root, date, "a.parquet", []int64Row{
		{CAID: "d1", CVEGEO: ptr(int64(900200010025)), UTCTimestamp: 100},
	})
	pings, err := NewParquetRepository(root, zone.AGEB).Fetch(context.Background(), date, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(pings) != 1 || pings[0].ZoneID != "0900200010025" {
		t.Errorf("pings = %+v, want one ping in 0900200010025", pings)
	}
}

func TestParquetRepository_MissingZoneColumn(t *testing.T) {
	root := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	writePartition(t, root, date, "a.parquet", []int32Row{{CAID: "d1", CveEnt: 9, CveMun: 2, UTCTimestamp: 100}})
	_, err := NewParquetRepository(root, zone.AGEB).Fetch(context.Background(), date, nil)
	var up *od.UpstreamIOError
	if !errors.As(err, &up) {
		t.Errorf("err = %v, want *UpstreamIOError for a missing cvegeo column", err)
	}
}

func TestParquetRepository_MissingPartition(t *testing.T) {
	repo := NewParquetRepository(t.TempDir(), zone.AGEB)
	pings, err := repo.Fetch(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(pings) != 0 {
		t.Errorf("len(pings) = %d, want 0", len(pings))
	}
}

func TestParquetRepository_CorruptFile(t *testing.T) {
	root := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	dir := PartitionDir(root, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.parquet"), []byte("not parquet"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewParquetRepository(root, zone.AGEB).Fetch(context.Background(), date, nil)
	var up *od.UpstreamIOError
	if !errors.As(err, &up) {
		t.Errorf("err = %v, want *UpstreamIOError", err)
	}
}

func TestParquetRepository_CanceledContext(t *testing.T) {
	root := t.TempDir()
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	writePartition(t, root, date, "a.parquet", []Row{{CAID: "d1", CVEGEO: "0900200010010", UTCTimestamp: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewParquetRepository(root, zone.AGEB).Fetch(ctx, date, nil); err == nil {
		t.Error("Fetch should fail with a canceled context")
	}
}
