package dataset

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/salesinsight/salesinsight/internal/storage"
)

func TestWriteRoundTripsThroughLoad(t *testing.T) {
	sales := []Sale{
		{Date: "2024-03-01", WeekDay: "Friday", Hour: "10:30", TicketNumber: "W1", Waiter: 4, ProductName: "Latte", Quantity: 2, UnitaryPrice: 2.8, Total: 5.6},
		{Date: "2024-03-01", WeekDay: "Friday", Hour: "10:31", TicketNumber: "W2", Waiter: 5, ProductName: "Scone, plain", Quantity: 1, UnitaryPrice: 2.1, Total: 2.1},
	}

	for _, format := range []storage.Format{storage.FormatCSV, storage.FormatParquet} {
		buf := bytes.NewBuffer(nil)
		if err := Write(buf, format, sales); err != nil {
			t.Fatalf("Write(%s) error = %v", format, err)
		}
		path := writeFile(t, "sales."+string(format), buf.Bytes())

		db := newSalesDB(t)
		result, err := (&Loader{DB: db}).Load(context.Background(), path)
		if err != nil {
			t.Fatalf("Load(%s) error = %v", format, err)
		}
		if result.Rows != 2 {
			t.Fatalf("%s rows = %d", format, result.Rows)
		}
		var product string
		if err := db.QueryRow(`SELECT product_name FROM sales WHERE ticket_number = 'W2'`).Scan(&product); err != nil {
			t.Fatalf("query %s row: %v", format, err)
		}
		if product != "Scone, plain" {
			t.Fatalf("%s product = %q", format, product)
		}
	}
}

func TestWriteCSVHeader(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	if err := Write(buf, storage.FormatCSV, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != strings.Join(columns, ",") {
		t.Fatalf("header = %q", got)
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if err := Write(bytes.NewBuffer(nil), storage.Format("xlsx"), nil); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
