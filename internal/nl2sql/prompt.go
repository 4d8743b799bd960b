package nl2sql

import (
	"fmt"
	"strings"
)

const systemPrompt = "You convert natural language questions about sales data into a single read-only SQL query. " +
	"Return ONLY the SQL query. No markdown, no explanation."

const promptRules = `Rules:
1. Return ONLY the SQL query, no explanations.
2. Produce exactly one SELECT statement. Never modify data.
3. Use only the tables and columns listed in the schema.
4. Each row is one product sold in a transaction; ticket_number identifies the transaction.
5. To count customers use COUNT(DISTINCT ticket_number).
6. For product sales use SUM(quantity) GROUP BY product_name.
7. Give aggregated columns short snake_case aliases.

Examples:
"How many customers are there?" -> SELECT COUNT(DISTINCT ticket_number) AS total_customers FROM sales;
"What is the total revenue?" -> SELECT SUM(total) AS total_revenue FROM sales;`

// BuildPrompt renders the user message sent alongside the system prompt.
func BuildPrompt(req Request) string {
	return fmt.Sprintf(
		"Schema:\n%s\n\n%s\n\nQuestion:\n%s",
		strings.TrimSpace(req.Schema),
		promptRules,
		strings.TrimSpace(req.Question),
	)
}
