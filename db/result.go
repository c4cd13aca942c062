package db

import (
	"fmt"
	"io"
	"strings"

	"github.com/nickyhof/viewdb/ps"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	CommitResultType
)

type Result interface {
	Type() ResultType
	Display(w io.Writer)
}

type QueryResult struct {
	Transaction      ps.Transaction
	Columns          []string
	Data             [][]string
	RecordsRead      int
	ExecutionTimeSec float64
	ExecutionOps     int
}

type CommitResult struct {
	Transaction        ps.Transaction
	ViewsCreated       int
	ViewsDropped       int
	ViewsLoaded        int
	IndexesCreated     int
	IndexesDropped     int
	IndexesActivated   int
	IndexesInactivated int
	RecordsWritten     int
	ExecutionTimeSec   float64
	ExecutionOps       int
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result CommitResult) Type() ResultType {
	return CommitResultType
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	switch {
	case secs < 0.001:
		return "<1ms"
	case secs < 0.01:
		return fmt.Sprintf("%dms", int(secs*1000))
	case secs < 1:
		if ms := secs * 1000; ms < 10 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(secs*1000))
	case secs < 10:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 60:
		return fmt.Sprintf("%ds", int(secs))
	}

	mins, remainSecs := int(secs/60), int(secs)%60
	if remainSecs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, remainSecs)
}

func formatThroughput(ops int, secs float64) string {
	if secs <= 0 || ops <= 0 {
		return ""
	}
	rate := float64(ops) / secs
	switch {
	case rate >= 1000000:
		return fmt.Sprintf(", %.1fM ops/s", rate/1000000)
	case rate >= 1000:
		return fmt.Sprintf(", %.1fK ops/s", rate/1000)
	default:
		return fmt.Sprintf(", %.0f ops/s", rate)
	}
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result CommitResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result QueryResult) Display(w io.Writer) {
	if len(result.Data) > 0 {
		data := NewTable(w)
		data.Header(result.Columns)
		data.Bulk(result.Data)
		data.Render()
	}

	fmt.Fprintf(w, "%d rows (%s%s)\n", result.RecordsRead, result.ExecutionTime(),
		formatThroughput(result.ExecutionOps, result.ExecutionTimeSec))
}

func (result CommitResult) Display(w io.Writer) {
	counts := []struct {
		n    int
		what string
	}{
		{result.ViewsCreated, "view(s) created"},
		{result.ViewsDropped, "view(s) dropped"},
		{result.ViewsLoaded, "view(s) loaded"},
		{result.IndexesCreated, "index(es) created"},
		{result.IndexesDropped, "index(es) dropped"},
		{result.IndexesActivated, "index(es) activated"},
		{result.IndexesInactivated, "index(es) inactivated"},
		{result.RecordsWritten, "record(s) written"},
	}

	var parts []string
	for _, c := range counts {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.what))
		}
	}

	throughput := formatThroughput(result.ExecutionOps, result.ExecutionTimeSec)
	if len(parts) == 0 {
		fmt.Fprintf(w, "OK (%s%s)\n", result.ExecutionTime(), throughput)
	} else {
		fmt.Fprintf(w, "%s (%s%s)\n", strings.Join(parts, ", "), result.ExecutionTime(), throughput)
	}
}
