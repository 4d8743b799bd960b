package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Location is a parsed dataset source: a local path or an object key.
type Location struct {
	Remote bool
	Bucket string
	Path   string
	Format Format
}

func (l Location) String() string {
	if !l.Remote {
		return l.Path
	}
	if l.Bucket == "" {
		return "s3://" + l.Path
	}
	return "s3://" + l.Bucket + "/" + l.Path
}

// ParseLocation accepts "path/to/file.csv", "s3://bucket/key.parquet" and
// "s3:///key.parquet" (key in the configured bucket).
func ParseLocation(source string) (Location, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Location{}, fmt.Errorf("dataset source is required")
	}

	location := Location{Path: source}
	if rest, ok := strings.CutPrefix(source, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		key = strings.TrimPrefix(key, "/")
		if key == "" {
			return Location{}, fmt.Errorf("dataset source %q has no object key", source)
		}
		location = Location{Remote: true, Bucket: bucket, Path: key}
	}

	format, err := DetectFormat(location.Path)
	if err != nil {
		return Location{}, err
	}
	location.Format = format
	return location, nil
}

func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported dataset format for %q: want .csv or .parquet", name)
	}
}

func ContentType(format Format) string {
	if format == FormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DatasetKey is the object key uploaded datasets are stored under.
func DatasetKey(table, fileName string) (string, error) {
	if !keyComponentPattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name: %q", table)
	}
	base := filepath.Base(fileName)
	if !keyComponentPattern.MatchString(base) {
		return "", fmt.Errorf("invalid dataset file name: %q", fileName)
	}
	if _, err := DetectFormat(base); err != nil {
		return "", err
	}
	return path.Join("datasets", table, base), nil
}
