// Package analytics computes read-side reports over a workflow's stored executions.
package analytics

import (
	"time"

	"github.com/dukex/storeflow/pkg/models"
)

// TrendDays is the length of the daily trend window, today included.
const TrendDays = 30

const dayLayout = "2006-01-02"

// DateRange bounds executions by StartedAt. A zero bound is open; both bounds are inclusive.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}

	if !r.End.IsZero() && t.After(r.End) {
		return false
	}

	return true
}

// NodeStats summarizes one node across every execution log.
type NodeStats struct {
	NodeID            string          `json:"node_id"`
	NodeName          string          `json:"node_name"`
	NodeType          models.NodeType `json:"node_type"`
	Executions        int             `json:"executions"`
	Successes         int             `json:"successes"`
	Failures          int             `json:"failures"`
	SuccessRate       float64         `json:"success_rate"`
	AverageDurationMs float64         `json:"average_duration_ms"`
}

// DailyTrend counts executions that started on one UTC day.
type DailyTrend struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

// Report is the analytics for one workflow. Rates are percentages in [0, 100].
type Report struct {
	WorkflowID           string       `json:"workflow_id"`
	WorkflowName         string       `json:"workflow_name"`
	TotalExecutions      int          `json:"total_executions"`
	SuccessfulExecutions int          `json:"successful_executions"`
	FailedExecutions     int          `json:"failed_executions"`
	CancelledExecutions  int          `json:"cancelled_executions"`
	SuccessRate          float64      `json:"success_rate"`
	AverageDurationMs    float64      `json:"average_duration_ms"`
	NodePerformance      []NodeStats  `json:"node_performance"`
	DailyTrend           []DailyTrend `json:"daily_trend"`
	GeneratedAt          time.Time    `json:"generated_at"`
}

// Aggregator recomputes reports from history on every call.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Compute builds the report for workflow from executions. Executions of other workflows are ignored.
func (a *Aggregator) Compute(workflow *models.Workflow, executions []*models.WorkflowExecution, dateRange *DateRange, now time.Time) *Report {
	selected := make([]*models.WorkflowExecution, 0, len(executions))

	for _, execution := range executions {
		if execution.WorkflowID != workflow.ID {
			continue
		}

		if dateRange != nil && !dateRange.Contains(execution.StartedAt) {
			continue
		}

		selected = append(selected, execution)
	}

	report := &Report{
		WorkflowID:      workflow.ID,
		WorkflowName:    workflow.Name,
		TotalExecutions: len(selected),
		GeneratedAt:     now.UTC(),
	}

	var durationSum, durationCount int64

	for _, execution := range selected {
		switch execution.Status {
		case models.ExecutionStatusCompleted:
			report.SuccessfulExecutions++
		case models.ExecutionStatusFailed:
			report.FailedExecutions++
		case models.ExecutionStatusCancelled:
			report.CancelledExecutions++
		}

		if execution.DurationMs != nil {
			durationSum += *execution.DurationMs
			durationCount++
		}
	}

	report.SuccessRate = percentage(report.SuccessfulExecutions, report.TotalExecutions)
	report.AverageDurationMs = average(durationSum, durationCount)
	report.NodePerformance = nodePerformance(workflow, selected)
	report.DailyTrend = dailyTrend(selected, now)

	return report
}

func nodePerformance(workflow *models.Workflow, executions []*models.WorkflowExecution) []NodeStats {
	type accumulator struct {
		stats         NodeStats
		durationSum   int64
		durationCount int64
	}

	byNode := make(map[string]*accumulator, len(workflow.Nodes))
	stats := make([]*accumulator, 0, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		acc := &accumulator{stats: NodeStats{NodeID: node.ID, NodeName: node.Name, NodeType: node.Type}}
		byNode[node.ID] = acc
		stats = append(stats, acc)
	}

	for _, execution := range executions {
		for _, entry := range execution.ExecutionLog {
			acc, ok := byNode[entry.NodeID]
			if !ok {
				continue
			}

			switch entry.Status {
			case models.LogStatusStarted:
				acc.stats.Executions++
			case models.LogStatusCompleted:
				acc.stats.Successes++
			case models.LogStatusFailed:
				acc.stats.Failures++
			default:
				continue
			}

			if entry.Status != models.LogStatusStarted && entry.DurationMs != nil {
				acc.durationSum += *entry.DurationMs
				acc.durationCount++
			}
		}
	}

	out := make([]NodeStats, 0, len(stats))

	for _, acc := range stats {
		acc.stats.SuccessRate = percentage(acc.stats.Successes, acc.stats.Executions)
		acc.stats.AverageDurationMs = average(acc.durationSum, acc.durationCount)
		out = append(out, acc.stats)
	}

	return out
}

func dailyTrend(executions []*models.WorkflowExecution, now time.Time) []DailyTrend {
	today := now.UTC().Truncate(24 * time.Hour)
	trend := make([]DailyTrend, TrendDays)
	index := make(map[string]int, TrendDays)

	for i := range TrendDays {
		day := today.AddDate(0, 0, i-(TrendDays-1)).Format(dayLayout)
		trend[i] = DailyTrend{Date: day}
		index[day] = i
	}

	for _, execution := range executions {
		i, ok := index[execution.StartedAt.UTC().Format(dayLayout)]
		if !ok {
			continue
		}

		trend[i].Total++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			trend[i].Successful++
		case models.ExecutionStatusFailed:
			trend[i].Failed++
		}
	}

	return trend
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(part) / float64(total) * 100
}

func average(sum, count int64) float64 {
	if count == 0 {
		return 0
	}

	return float64(sum) / float64(count)
}
