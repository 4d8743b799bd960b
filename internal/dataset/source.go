package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Sale is one line of a sales ticket.
type Sale struct {
	Date         string  `parquet:"date"`
	WeekDay      string  `parquet:"week_day"`
	Hour         string  `parquet:"hour"`
	TicketNumber string  `parquet:"ticket_number"`
	Waiter       int64   `parquet:"waiter"`
	ProductName  string  `parquet:"product_name"`
	Quantity     float64 `parquet:"quantity"`
	UnitaryPrice float64 `parquet:"unitary_price"`
	Total        float64 `parquet:"total"`
}

var columns = []string{
	"date", "week_day", "hour", "ticket_number", "waiter",
	"product_name", "quantity", "unitary_price", "total",
}

func (s Sale) values() []any {
	return []any{s.Date, s.WeekDay, s.Hour, s.TicketNumber, s.Waiter, s.ProductName, s.Quantity, s.UnitaryPrice, s.Total}
}

// recordSource yields sales until io.EOF.
type recordSource interface {
	Next() (Sale, error)
}

func missingColumns(present map[string]struct{}) []string {
	var missing []string
	for _, column := range columns {
		if _, ok := present[column]; !ok {
			missing = append(missing, column)
		}
	}
	sort.Strings(missing)
	return missing
}

type csvSource struct {
	reader *csv.Reader
	index  map[string]int
	line   int
}

func newCSVSource(r io.Reader) (*csvSource, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	present := make(map[string]struct{}, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
		present[name] = struct{}{}
	}
	if missing := missingColumns(present); len(missing) > 0 {
		return nil, fmt.Errorf("csv dataset is missing columns: %s", strings.Join(missing, ", "))
	}
	reader.FieldsPerRecord = len(header)
	return &csvSource{reader: reader, index: index, line: 1}, nil
}

func (s *csvSource) Next() (Sale, error) {
	record, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Sale{}, io.EOF
		}
		return Sale{}, fmt.Errorf("read csv record: %w", err)
	}
	s.line++

	field := func(name string) string {
		return strings.TrimSpace(record[s.index[name]])
	}
	sale := Sale{
		Date:         field("date"),
		WeekDay:      field("week_day"),
		Hour:         field("hour"),
		TicketNumber: field("ticket_number"),
		ProductName:  field("product_name"),
	}
	if sale.Waiter, err = strconv.ParseInt(field("waiter"), 10, 64); err != nil {
		return Sale{}, fmt.Errorf("line %d: invalid waiter %q", s.line, field("waiter"))
	}
	for _, target := range []struct {
		name string
		dst  *float64
	}{
		{"quantity", &sale.Quantity},
		{"unitary_price", &sale.UnitaryPrice},
		{"total", &sale.Total},
	} {
		if *target.dst, err = strconv.ParseFloat(field(target.name), 64); err != nil {
			return Sale{}, fmt.Errorf("line %d: invalid %s %q", s.line, target.name, field(target.name))
		}
	}
	return sale, nil
}

type parquetSource struct {
	reader *parquet.GenericReader[Sale]
	buffer []Sale
	next   int
	filled int
	done   bool
}

func newParquetSource(r io.ReaderAt, size int64) (*parquetSource, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet dataset: %w", err)
	}
	present := make(map[string]struct{})
	for _, field := range file.Schema().Fields() {
		present[strings.ToLower(field.Name())] = struct{}{}
	}
	if missing := missingColumns(present); len(missing) > 0 {
		return nil, fmt.Errorf("parquet dataset is missing columns: %s", strings.Join(missing, ", "))
	}
	return &parquetSource{
		reader: parquet.NewGenericReader[Sale](io.NewSectionReader(r, 0, size)),
		buffer: make([]Sale, 256),
	}, nil
}

func (s *parquetSource) Next() (Sale, error) {
	if s.next < s.filled {
		sale := s.buffer[s.next]
		s.next++
		return sale, nil
	}
	if s.done {
		return Sale{}, io.EOF
	}
	n, err := s.reader.Read(s.buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return Sale{}, fmt.Errorf("read parquet rows: %w", err)
	}
	s.done = errors.Is(err, io.EOF)
	s.filled, s.next = n, 0
	if n == 0 {
		return Sale{}, io.EOF
	}
	s.next = 1
	return s.buffer[0], nil
}

func (s *parquetSource) Close() error {
	return s.reader.Close()
}
