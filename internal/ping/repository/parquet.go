package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/shadayguerrero/sedatu/internal/od"
	"github.com/shadayguerrero/sedatu/internal/ping/domain"
	"github.com/shadayguerrero/sedatu/internal/zone"
)

// Row is the schema loaders and fixtures write. Fetch does not require it: zone parts and
// timestamps are accepted as strings, integers or floats, whatever the physical column type.
type Row struct {
	CAID         string `parquet:"caid,optional"`
	CVEGEO       string `parquet:"cvegeo,optional"`
	CveEnt       string `parquet:"cve_ent,optional"`
	CveMun       string `parquet:"cve_mun,optional"`
	UTCTimestamp int64  `parquet:"utc_timestamp,optional"`
}

// Dataset columns read by Fetch.
const (
	colCAID = iota
	colCVEGEO
	colEnt
	colMun
	colTimestamp
	numColumns
)

var columnNames = [numColumns]string{"caid", "cvegeo", "cve_ent", "cve_mun", "utc_timestamp"}

const readBatch = 1024

// ParquetRepository reads a Hive-partitioned dataset laid out as
// <root>/year=YYYY/month=MM/day=DD/<files>.
type ParquetRepository struct {
	root  string
	level zone.Level
}

// NewParquetRepository returns a repository over the dataset at root building zone codes at level.
func NewParquetRepository(root string, level zone.Level) *ParquetRepository {
	return &ParquetRepository{root: strings.TrimRight(root, "/"), level: level}
}

// PartitionDir returns the directory holding the files of date.
func PartitionDir(root string, date time.Time) string {
	return filepath.Join(root,
		fmt.Sprintf("year=%04d", date.Year()),
		fmt.Sprintf("month=%02d", int(date.Month())),
		fmt.Sprintf("day=%02d", date.Day()),
	)
}

// Fetch reads every file of the date partition in name order. A missing partition yields
// no pings and no error. A file that cannot be decoded fails the whole date with an
// *od.UpstreamIOError.
func (r *ParquetRepository) Fetch(ctx context.Context, date time.Time, f *zone.Filter) ([]domain.Ping, error) {
	files, err := partitionFiles(PartitionDir(r.root, date))
	if err != nil {
		return nil, &od.UpstreamIOError{Op: "list partition", Err: err}
	}
	var out []domain.Ping
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if out, err = r.readFile(ctx, path, f, out); err != nil {
			return nil, &od.UpstreamIOError{Op: "read " + path, Err: err}
		}
	}
	return out, nil
}

// readFile appends the pings of one parquet file to out.
func (r *ParquetRepository) readFile(ctx context.Context, path string, f *zone.Filter, out []domain.Ping) (_ []domain.Ping, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("decode: %v", p)
		}
	}()
	file, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer file.Close()
	st, err := file.Stat()
	if err != nil {
		return out, err
	}
	pf, err := parquet.OpenFile(file, st.Size())
	if err != nil {
		return out, err
	}
	index, err := r.columnIndex(pf.Schema())
	if err != nil {
		return out, err
	}
	buf := make([]parquet.Row, readBatch)
	for _, rg := range pf.RowGroups() {
		if out, err = r.readRowGroup(ctx, rg, index, buf, f, out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// columnIndex maps leaf column indexes of schema to dataset columns. The device, timestamp
// and zone columns of the repository level must be present.
func (r *ParquetRepository) columnIndex(schema *parquet.Schema) (map[int]int, error) {
	required := []int{colCAID, colTimestamp, colCVEGEO}
	if r.level == zone.Municipality {
		required = []int{colCAID, colTimestamp, colEnt, colMun}
	}
	index := make(map[int]int, numColumns)
	found := make(map[int]bool, numColumns)
	for col, name := range columnNames {
		leaf, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		index[leaf.ColumnIndex] = col
		found[col] = true
	}
	for _, col := range required {
		if !found[col] {
			return nil, fmt.Errorf("missing column %q", columnNames[col])
		}
	}
	return index, nil
}

func (r *ParquetRepository) readRowGroup(ctx context.Context, rg parquet.RowGroup, index map[int]int, buf []parquet.Row, f *zone.Filter, out []domain.Ping) ([]domain.Ping, error) {
	rows := rg.Rows()
	defer rows.Close()
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			var rec [numColumns]parquet.Value
			for _, v := range row {
				if col, ok := index[v.Column()]; ok {
					rec[col] = v
				}
			}
			caid := valueString(rec[colCAID])
			ts, ok := valueInt64(rec[colTimestamp])
			if caid == "" || !ok {
				continue
			}
			z := zoneOf(r.level, valueString(rec[colCVEGEO]), valueString(rec[colEnt]), valueString(rec[colMun]))
			if z == "" || !f.Allows(z) {
				continue
			}
			out = append(out, domain.Ping{DeviceID: caid, ZoneID: z, Timestamp: ts})
		}
		switch {
		case errors.Is(err, io.EOF):
			return out, nil
		case err != nil:
			return out, err
		case n == 0:
			return out, nil
		}
	}
}

// valueString formats v as a code. Null and boolean values are empty.
func valueString(v parquet.Value) string {
	if v.IsNull() {
		return ""
	}
	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return strings.TrimSpace(string(v.ByteArray()))
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return formatFloat(float64(v.Float()))
	case parquet.Double:
		return formatFloat(v.Double())
	}
	return ""
}

func formatFloat(x float64) string {
	if x == math.Trunc(x) && math.Abs(x) < 1e15 {
		return strconv.FormatInt(int64(x), 10)
	}
	return strconv.FormatFloat(x, 'f', -1, 64)
}

// valueInt64 reads v as epoch seconds; fractional seconds are truncated.
func valueInt64(v parquet.Value) (int64, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.Kind() {
	case parquet.Int32:
		return int64(v.Int32()), true
	case parquet.Int64:
		return v.Int64(), true
	case parquet.Float:
		return int64(v.Float()), true
	case parquet.Double:
		return int64(v.Double()), true
	case parquet.ByteArray, parquet.FixedLenByteArray:
		s := strings.TrimSpace(string(v.ByteArray()))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if x, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(x), true
		}
	}
	return 0, false
}

func partitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		// Skip markers such as _SUCCESS and hidden checksum files.
		if e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
