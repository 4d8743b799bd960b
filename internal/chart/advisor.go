// Package chart picks a visualization for a query result from the question
// text, the generated SQL and the result shape. Rules are evaluated in a
// fixed order and the first match wins.
package chart

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type Type string

const (
	TypeLine  Type = "line"
	TypeBar   Type = "bar"
	TypePie   Type = "pie"
	TypeTable Type = "table"
)

type Suggestion struct {
	ChartType   Type   `json:"chart_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Input is everything the advisor looks at. Rows are only inspected, never
// modified.
type Input struct {
	Question string
	SQL      string
	Columns  []string
	Rows     [][]any
}

const (
	maxChartColumns    = 4
	maxCategoricalRows = 50
	maxSeriesRows      = 500
	maxTitleRunes      = 60
)

type rule struct {
	chartType Type
	maxRows   int
	matches   func(in Input, sql string) bool
	rationale string
}

var rules = []rule{
	{
		chartType: TypeLine,
		maxRows:   maxSeriesRows,
		matches:   isTemporal,
		rationale: "Values are grouped over time, so a line chart shows the trend.",
	},
	{
		chartType: TypeBar,
		maxRows:   maxCategoricalRows,
		matches:   isRanking,
		rationale: "Aggregated categories are ranked, so a bar chart compares them side by side.",
	},
	{
		chartType: TypePie,
		maxRows:   maxCategoricalRows,
		matches:   isShare,
		rationale: "Values are parts of a whole, so a pie chart shows each share.",
	},
}

// Suggest is a pure function of its input.
func Suggest(in Input) Suggestion {
	title := titleFor(in.Question)
	if len(in.Columns) == 0 || len(in.Columns) > maxChartColumns || len(in.Rows) == 0 {
		return Suggestion{ChartType: TypeTable, Title: title, Description: tableRationale(in)}
	}

	sql := strings.ToLower(in.SQL)
	for _, r := range rules {
		if len(in.Rows) > r.maxRows {
			continue
		}
		if r.matches(in, sql) {
			return Suggestion{ChartType: r.chartType, Title: title, Description: r.rationale}
		}
	}
	return Suggestion{ChartType: TypeTable, Title: title, Description: tableRationale(in)}
}

func tableRationale(in Input) string {
	switch {
	case len(in.Rows) == 0:
		return "The query returned no rows, so the result is shown as a table."
	case len(in.Columns) > maxChartColumns:
		return "The result has too many columns for a chart, so it is shown as a table."
	case len(in.Rows) > maxCategoricalRows:
		return "The result has too many rows for a readable chart, so it is shown as a table."
	default:
		return "No chart pattern matched, so the result is shown as a table."
	}
}

var (
	temporalQuestionPattern = regexp.MustCompile(`(?i)\b(trends?|over time|timeline|evolution|daily|weekly|monthly|hourly|yearly|(by|per|each|every) (date|day|week|month|hour|year))\b`)
	temporalTokenPattern    = regexp.MustCompile(`\b(date|day|week|month|year|hour|time|timestamp|strftime|date_trunc|date_part|datepart|extract|to_char)\b`)
	groupByPattern          = regexp.MustCompile(`(?s)\bgroup\s+by\b(.*?)(\border\s+by\b|\blimit\b|\bhaving\b|$)`)
	aggregatePattern        = regexp.MustCompile(`\b(count|sum|avg|min|max)\s*\(`)
	orderOrLimitPattern     = regexp.MustCompile(`\b(order\s+by|limit)\b`)
	rankingQuestionPattern  = regexp.MustCompile(`(?i)\b(top\s*\d*|best|most|highest|lowest|least|worst|ranking|rank)\b`)
	shareQuestionPattern    = regexp.MustCompile(`(?i)\b(proportion|proportions|percentage|percentages|percent|share|shares|distribution)\b`)
	isoDatePattern          = regexp.MustCompile(`^\d{4}-\d{2}(-\d{2})?([ T]\d{2}(:\d{2})?)?`)
)

func isTemporal(in Input, sql string) bool {
	if temporalQuestionPattern.MatchString(in.Question) {
		return true
	}
	groupBy := groupByPattern.FindStringSubmatch(sql)
	if groupBy == nil {
		return false
	}
	if temporalTokenPattern.MatchString(groupBy[1]) {
		return true
	}
	if temporalTokenPattern.MatchString(strings.ToLower(in.Columns[0])) {
		return true
	}
	return len(in.Rows[0]) > 0 && looksLikeTime(in.Rows[0][0])
}

func isRanking(in Input, sql string) bool {
	if rankingQuestionPattern.MatchString(in.Question) {
		return true
	}
	return groupByPattern.MatchString(sql) && aggregatePattern.MatchString(sql) && orderOrLimitPattern.MatchString(sql)
}

func isShare(in Input, _ string) bool {
	if shareQuestionPattern.MatchString(in.Question) {
		return true
	}
	if len(in.Columns) != 2 || len(in.Rows) < 2 {
		return false
	}
	sum := 0.0
	for _, row := range in.Rows {
		if len(row) < 2 {
			return false
		}
		value, ok := toFloat(row[1])
		if !ok || value < 0 {
			return false
		}
		sum += value
	}
	return math.Abs(sum-100) <= 1.5 || math.Abs(sum-1) <= 0.015
}

func looksLikeTime(value any) bool {
	switch typed := value.(type) {
	case time.Time:
		return true
	case string:
		return isoDatePattern.MatchString(typed)
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func titleFor(question string) string {
	title := strings.TrimSpace(question)
	title = strings.TrimRight(title, "?!. ")
	if title == "" {
		return "Query results"
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitleRunes-3])) + "..."
	}
	first, size := utf8.DecodeRuneInString(title)
	return string(unicode.ToUpper(first)) + title[size:]
}
