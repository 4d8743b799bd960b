package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/salesinsight/salesinsight/internal/storage"
)

// Write encodes sales in the given format with the column layout Load expects.
func Write(w io.Writer, format storage.Format, sales []Sale) error {
	switch format {
	case storage.FormatCSV:
		return writeCSV(w, sales)
	case storage.FormatParquet:
		return writeParquet(w, sales)
	default:
		return fmt.Errorf("unsupported dataset format %q", format)
	}
}

func writeCSV(w io.Writer, sales []Sale) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, sale := range sales {
		record := []string{
			sale.Date,
			sale.WeekDay,
			sale.Hour,
			sale.TicketNumber,
			strconv.FormatInt(sale.Waiter, 10),
			sale.ProductName,
			strconv.FormatFloat(sale.Quantity, 'f', -1, 64),
			strconv.FormatFloat(sale.UnitaryPrice, 'f', -1, 64),
			strconv.FormatFloat(sale.Total, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeParquet(w io.Writer, sales []Sale) error {
	writer := parquet.NewGenericWriter[Sale](w)
	if _, err := writer.Write(sales); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
