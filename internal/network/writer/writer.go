// Package writer serializes OD networks as delimited text files, one per (date, window) unit.
package writer

import (
	"bufio"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shadayguerrero/sedatu/internal/od"
)

// Logical network names used in file names.
const (
	NameCVEGEO       = "od_cvegeo"
	NameMunicipioAll = "od_municipio_all"
	NameRedMunicipal = "red_municipal"
)

var tokenReplacer = strings.NewReplacer("-", "_", ":", "_")

// FileName returns "[suffix_]name_YYYY_MM_DD_token.csv". Dashes and colons in token become
// underscores so explicit windows ("08:00-10:00") are file-system safe.
func FileName(suffix, name string, date time.Time, token string) string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(suffix); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, name, date.Format("2006_01_02"), tokenReplacer.Replace(token))
	return strings.Join(parts, "_") + ".csv"
}

// Unit identifies the file a network is written to.
type Unit struct {
	Suffix string
	Name   string
	Date   time.Time
	Token  string
}

// CSVWriter writes networks under Dir.
type CSVWriter struct {
	Dir string
}

// NewCSVWriter returns a writer rooted at dir.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{Dir: dir}
}

// Write stores n as CSV and returns the file path. The header is source,target,w for
// weighted networks and source,target,peso for raw counts. The file is written to a
// temporary name first and renamed, so readers never see a partial network.
func (w *CSVWriter) Write(ctx context.Context, u Unit, n od.Network) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &od.UpstreamIOError{Op: "write", Err: err}
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", &od.UpstreamIOError{Op: "write", Err: err}
	}
	path := filepath.Join(w.Dir, FileName(u.Suffix, u.Name, u.Date, u.Token))
	tmp, err := os.CreateTemp(w.Dir, ".network-*.csv")
	if err != nil {
		return "", &od.UpstreamIOError{Op: "write", Err: err}
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, n); err != nil {
		_ = tmp.Close()
		return "", &od.UpstreamIOError{Op: "write " + path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &od.UpstreamIOError{Op: "write " + path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", &od.UpstreamIOError{Op: "write " + path, Err: err}
	}
	return path, nil
}

func encode(f *os.File, n od.Network) error {
	bw := bufio.NewWriter(f)
	cw := csv.NewWriter(bw)
	weightCol := "w"
	if !n.Weighted {
		weightCol = "peso"
	}
	if err := cw.Write([]string{"source", "target", weightCol}); err != nil {
		return err
	}
	for _, e := range n.Edges {
		if err := cw.Write([]string{e.Source, e.Target, FormatWeight(e.Weight, n.Weighted)}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// FormatWeight renders normalized weights as decimals ("1000000.0") and raw counts as integers.
func FormatWeight(v float64, weighted bool) string {
	if !weighted {
		return strconv.FormatInt(int64(v), 10)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
