package zone

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/shadayguerrero/sedatu/internal/od"
)

// DefaultColumn is the allowlist column holding AGEB codes.
const DefaultColumn = "CVEGEO"

// LoadAllowlist reads the zone codes in column of the CSV file at path.
func LoadAllowlist(path, column string, width int) (*Filter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, od.NewConfigurationError("location", "zone allowlist path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, od.NewConfigurationError("location", "open %s: %v", path, err)
	}
	defer f.Close()
	return ReadAllowlist(f, column, width)
}

// ReadAllowlist is LoadAllowlist over an already opened reader.
func ReadAllowlist(r io.Reader, column string, width int) (*Filter, error) {
	if column == "" {
		column = DefaultColumn
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, od.NewConfigurationError("location", "allowlist has no header")
		}
		return nil, od.NewConfigurationError("location", "read header: %v", err)
	}
	idx := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, od.NewConfigurationError("location", "allowlist must contain column %q", column)
	}
	var codes []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, od.NewConfigurationError("location", "read row: %v", err)
		}
		if idx < len(rec) {
			codes = append(codes, rec[idx])
		}
	}
	return NewFilter(codes, width)
}
