package service_test

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/kubev2v/workflow-dispatcher/internal/catalog"
	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
	"github.com/kubev2v/workflow-dispatcher/internal/service"
)

func newSummary() *dispatch.Summary {
	return &dispatch.Summary{
		Total:       2,
		GeneratedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		Counts: map[dispatch.Category]int{
			dispatch.CategoryPassing:   1,
			dispatch.CategoryTimingOut: 1,
		},
		Rows: []dispatch.Row{
			{
				Key: "api", Name: "API suite", Version: "2.1", Repository: "acme/api", Ref: "main",
				Category: dispatch.CategoryPassing, State: dispatch.StateCompleted, Outcome: "success",
				RunID: 42, RunURL: "https://github.com/acme/api/actions/runs/42", Duration: 95 * time.Second,
			},
			{
				Key: "ui", Name: "UI | smoke", Repository: "acme/ui", Ref: "main",
				Category: dispatch.CategoryTimingOut, State: dispatch.StateTimedOut,
				Reason: "per-job deadline reached (1h0m0s after submission)", RunID: 43,
			},
		},
		Plan: []dispatch.PlanEntry{
			{Key: "api", Name: "API suite", Owner: "acme", Repo: "api", Ref: "main", Version: "2.1",
				Parameters: []dispatch.PlanParameter{{Name: "zeta", Value: "1"}, {Name: "alpha", Value: "2"}},
				State:      dispatch.StateCompleted, RunID: 42},
			{Key: "ui", Name: "UI | smoke", Owner: "acme", Repo: "ui", Ref: "main",
				Parameters: []dispatch.PlanParameter{{Name: "browser", Value: "firefox"}},
				State:      dispatch.StateTimedOut, RunID: 43},
		},
	}
}

var specs = []catalog.Spec{
	{Key: "api", Annotations: map[string][]string{catalog.AnnotationTechnology: {"go"}}},
	{Key: "ui", Annotations: map[string][]string{catalog.AnnotationCategory: {"smoke"}}},
}

var _ = Describe("report service", func() {
	options := service.ReportOptions{Site: "ECMWF", RunID: "1234567", HeadRef: "feature/new-item", Workflow: "test-ecmwf.yml"}

	Context("markdown", func() {
		It("renders the status table and the plan", func() {
			options.Format = service.ReportFormatMarkdown
			content, err := service.NewReportService("").GenerateReport(newSummary(), specs, options)
			Expect(err).To(BeNil())

			report := string(content)
			Expect(report).To(HavePrefix("## Workflow dispatch report"))
			Expect(report).To(ContainSubstring("**Site:** ECMWF | **Workflow:** `test-ecmwf.yml` | **Run:** `1234567` | **Ref:** `feature/new-item`"))
			Expect(report).To(ContainSubstring("Generated 2024-05-01 at 10:30:00 UTC"))
			Expect(report).To(ContainSubstring("**2 jobs:** 1 passing, 1 timing-out"))
			Expect(report).To(ContainSubstring("| ✅ | API suite | 2.1 | acme/api | main | COMPLETED | [42](https://github.com/acme/api/actions/runs/42) | 1m35s |  |"))
			Expect(report).To(ContainSubstring(`UI \| smoke`))
			Expect(report).To(ContainSubstring("technologies:\n  - go"))
		})

		It("keeps parameter order in the plan dump", func() {
			options.Format = service.ReportFormatMarkdown
			content, err := service.NewReportService("").GenerateReport(newSummary(), specs, options)
			Expect(err).To(BeNil())

			report := string(content)
			Expect(bytes.Index(content, []byte("name: zeta"))).To(BeNumerically("<", bytes.Index(content, []byte("name: alpha"))))
			Expect(report).To(ContainSubstring("```yaml\n"))
		})

		It("titles a dry run as a plan", func() {
			dry := options
			dry.Format = service.ReportFormatMarkdown
			dry.DryRun = true
			content, err := service.NewReportService("").GenerateReport(newSummary(), specs, dry)
			Expect(err).To(BeNil())
			Expect(string(content)).To(HavePrefix("## Workflow dispatch plan"))
			Expect(string(content)).To(ContainSubstring("dry run: nothing was dispatched"))
		})

		It("uses a template override", func() {
			path := filepath.Join(GinkgoT().TempDir(), "custom.tmpl")
			Expect(os.WriteFile(path, []byte("{{ .Site }}: {{ .Totals.Line }}"), 0600)).To(Succeed())

			options.Format = service.ReportFormatMarkdown
			content, err := service.NewReportService(path).GenerateReport(newSummary(), specs, options)
			Expect(err).To(BeNil())
			Expect(string(content)).To(Equal("ECMWF: 1 passing, 1 timing-out"))
		})

		It("fails on a missing template", func() {
			options.Format = service.ReportFormatMarkdown
			_, err := service.NewReportService("/does/not/exist.tmpl").GenerateReport(newSummary(), specs, options)
			Expect(err).NotTo(BeNil())
		})
	})

	Context("csv", func() {
		It("renders every section", func() {
			options.Format = service.ReportFormatCSV
			content, err := service.NewReportService("").GenerateReport(newSummary(), specs, options)
			Expect(err).To(BeNil())

			report := string(content)
			Expect(report).To(HavePrefix("WORKFLOW DISPATCH REPORT\n"))
			Expect(report).To(ContainSubstring("passing,1\n"))
			Expect(report).To(ContainSubstring("total,2\n"))
			Expect(report).To(ContainSubstring("Run ID,1234567\nHead Ref,feature/new-item\n"))
			Expect(report).To(ContainSubstring("api,API suite,2.1,acme/api,main,passing,COMPLETED,success,42,"))
			Expect(report).To(ContainSubstring("api,acme/api,main,go,,zeta=1; alpha=2\n"))
		})
	})

	Context("xlsx", func() {
		It("writes a status and a plan sheet", func() {
			options.Format = service.ReportFormatXLSX
			content, err := service.NewReportService("").GenerateReport(newSummary(), specs, options)
			Expect(err).To(BeNil())

			f, err := excelize.OpenReader(bytes.NewReader(content))
			Expect(err).To(BeNil())
			defer f.Close()
			Expect(f.GetSheetList()).To(Equal([]string{"Status", "Plan"}))

			rows, err := f.GetRows("Status")
			Expect(err).To(BeNil())
			Expect(rows[3][0]).To(Equal("Key"))
			Expect(rows[4][:3]).To(Equal([]string{"api", "API suite", "2.1"}))

			plan, err := f.GetRows("Plan")
			Expect(err).To(BeNil())
			Expect(plan).To(HaveLen(3))
			Expect(plan[2][7]).To(Equal("browser=firefox"))
		})
	})

	It("rejects an unknown format", func() {
		options.Format = "html"
		_, err := service.NewReportService("").GenerateReport(newSummary(), specs, options)
		Expect(err).To(MatchError(ContainSubstring("unsupported report format")))
	})
})
