package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"table_name"`
	Columns []Column `json:"columns"`
}

type Description struct {
	Tables []Table `json:"tables"`
	Text   string  `json:"text"`
}

// SalesTable is the built-in definition of the sales fact table. It is used
// when the store cannot be introspected.
var SalesTable = Table{
	Name: "sales",
	Columns: []Column{
		{Name: "date", Type: "VARCHAR"},
		{Name: "week_day", Type: "VARCHAR"},
		{Name: "hour", Type: "VARCHAR"},
		{Name: "ticket_number", Type: "VARCHAR"},
		{Name: "waiter", Type: "INTEGER"},
		{Name: "product_name", Type: "VARCHAR"},
		{Name: "quantity", Type: "DOUBLE"},
		{Name: "unitary_price", Type: "DOUBLE"},
		{Name: "total", Type: "DOUBLE"},
	},
}

var columnNotes = map[string]string{
	"date":          "sale date, YYYY-MM-DD",
	"week_day":      "day of week name",
	"hour":          "time of sale, HH:MM",
	"ticket_number": "transaction identifier; one ticket per customer visit",
	"waiter":        "waiter identifier",
	"quantity":      "units sold on this line",
	"unitary_price": "price per unit",
	"total":         "line revenue, quantity * unitary_price",
}

type Describer struct {
	DB     *sql.DB
	Tables []string
	Logger *slog.Logger
}

func NewDescriber(db *sql.DB, logger *slog.Logger, tables ...string) *Describer {
	if len(tables) == 0 {
		tables = []string{SalesTable.Name}
	}
	return &Describer{DB: db, Tables: tables, Logger: logger}
}

const columnsSQL = `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_name = $1 AND table_schema = current_schema()
ORDER BY ordinal_position`

// Describe introspects the configured tables and renders the prompt text.
// Tables that cannot be introspected fall back to the built-in definition
// when one exists.
func (d *Describer) Describe(ctx context.Context) (Description, error) {
	tables := make([]Table, 0, len(d.Tables))
	for _, name := range d.Tables {
		table, err := d.describeTable(ctx, name)
		if err != nil || len(table.Columns) == 0 {
			if name != SalesTable.Name {
				if err == nil {
					err = fmt.Errorf("table %q has no columns", name)
				}
				return Description{}, fmt.Errorf("describe table %q: %w", name, err)
			}
			if d.Logger != nil {
				d.Logger.WarnContext(ctx, "falling back to built-in sales schema", slog.Any("error", err))
			}
			table = SalesTable
		}
		tables = append(tables, table)
	}
	return Description{Tables: tables, Text: Render(tables)}, nil
}

func (d *Describer) describeTable(ctx context.Context, name string) (Table, error) {
	if d.DB == nil {
		return Table{}, fmt.Errorf("database is not configured")
	}
	rows, err := d.DB.QueryContext(ctx, columnsSQL, name)
	if err != nil {
		return Table{}, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	table := Table{Name: name}
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return Table{}, fmt.Errorf("scan column: %w", err)
		}
		table.Columns = append(table.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate columns: %w", err)
	}
	return table, nil
}

// Render produces the plain-text schema block embedded in the prompt.
func Render(tables []Table) string {
	var b strings.Builder
	for i, table := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table %s:\n", table.Name)
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "- %s (%s)", column.Name, strings.ToUpper(column.Type))
			if note, ok := columnNotes[column.Name]; ok && table.Name == SalesTable.Name {
				fmt.Fprintf(&b, ": %s", note)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
