package report

import (
	"strconv"
	"time"

	"github.com/kubev2v/workflow-dispatcher/internal/catalog"
	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report/types"
)

var icons = map[dispatch.Category]string{
	dispatch.CategoryPassing:            "✅",
	dispatch.CategoryFailing:            "❌",
	dispatch.CategoryTimingOut:          "⏱️",
	dispatch.CategoryDispatchDenied:     "🚫",
	dispatch.CategoryRegistrationFailed: "❓",
	dispatch.CategoryPlanned:            "📝",
	dispatch.CategoryUnknown:            "➖",
}

type StandardSummaryProcessor struct{}

func NewStandardSummaryProcessor() *StandardSummaryProcessor {
	return &StandardSummaryProcessor{}
}

func (p *StandardSummaryProcessor) ProcessSummary(summary *dispatch.Summary, specs []catalog.Spec) (*types.ReportData, error) {
	return &types.ReportData{
		Timestamps: p.generateTimestamps(summary.GeneratedAt),
		Totals:     p.processTotals(summary),
		Rows:       p.processRows(summary.Rows),
		Plan:       p.processPlan(summary.Plan, specs),
	}, nil
}

func (p *StandardSummaryProcessor) processTotals(summary *dispatch.Summary) types.Totals {
	totals := types.Totals{
		Total: summary.Total,
		Line:  summary.CountsString(),
	}
	for _, c := range dispatch.Categories {
		if n := summary.Count(c); n > 0 {
			totals.Counts = append(totals.Counts, types.CategoryCount{Category: string(c), Count: n})
		}
	}
	return totals
}

func (p *StandardSummaryProcessor) processRows(rows []dispatch.Row) []types.StatusRow {
	out := make([]types.StatusRow, 0, len(rows))
	for _, row := range rows {
		status := types.StatusRow{
			Key:        row.Key,
			Name:       row.Name,
			Version:    row.Version,
			Repository: row.Repository,
			Ref:        row.Ref,
			Category:   string(row.Category),
			State:      string(row.State),
			Outcome:    row.Outcome,
			Reason:     row.Reason,
			RunURL:     row.RunURL,
			Icon:       icons[row.Category],
		}
		if row.RunID != 0 {
			status.RunID = strconv.FormatInt(row.RunID, 10)
		}
		if row.Duration > 0 {
			status.Duration = row.Duration.Round(time.Second).String()
		}
		out = append(out, status)
	}
	return out
}

func (p *StandardSummaryProcessor) processPlan(entries []dispatch.PlanEntry, specs []catalog.Spec) []types.PlanItem {
	byKey := make(map[string]catalog.Spec, len(specs))
	for _, spec := range specs {
		byKey[spec.Key] = spec
	}

	items := make([]types.PlanItem, 0, len(entries))
	for _, entry := range entries {
		item := types.PlanItem{PlanEntry: entry}
		if spec, ok := byKey[entry.Key]; ok {
			item.Technologies = spec.Annotations[catalog.AnnotationTechnology]
			item.Categories = spec.Annotations[catalog.AnnotationCategory]
		}
		items = append(items, item)
	}
	return items
}

func (p *StandardSummaryProcessor) generateTimestamps(at time.Time) types.ReportTimestamps {
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return types.ReportTimestamps{
		Generated:     at.Format("2006-01-02"),
		GeneratedTime: at.Format("15:04:05") + " UTC",
	}
}
