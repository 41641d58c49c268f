package markdown

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"sigs.k8s.io/yaml"

	"github.com/kubev2v/workflow-dispatcher/internal/service/report/types"
)

//go:embed templates/report.md.tmpl
var defaultTemplate string

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

type Renderer struct {
	templatePath string
}

// NewRenderer returns a markdown renderer. An empty templatePath selects the
// built-in template.
func NewRenderer(templatePath string) *Renderer {
	return &Renderer{templatePath: templatePath}
}

func (r *Renderer) SupportedFormat() types.ReportFormat {
	return types.ReportFormatMarkdown
}

func (r *Renderer) Render(data *types.ReportData) ([]byte, error) {
	tmpl, err := r.loadTemplate()
	if err != nil {
		return nil, err
	}

	plan, err := yaml.Marshal(data.Plan)
	if err != nil {
		return nil, fmt.Errorf("failed to dump execution plan: %w", err)
	}

	title := "Workflow dispatch report"
	if data.Options.DryRun {
		title = "Workflow dispatch plan"
	}

	templateData := types.ReportTemplateData{
		Title:         title,
		Site:          data.Options.Site,
		RunID:         data.Options.RunID,
		HeadRef:       data.Options.HeadRef,
		Workflow:      data.Options.Workflow,
		DryRun:        data.Options.DryRun,
		GeneratedDate: data.Timestamps.Generated,
		GeneratedTime: data.Timestamps.GeneratedTime,
		Totals:        data.Totals,
		Rows:          data.Rows,
		PlanYAML:      string(plan),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData); err != nil {
		return nil, fmt.Errorf("failed to execute report template: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) loadTemplate() (*template.Template, error) {
	text := defaultTemplate
	if r.templatePath != "" {
		content, err := os.ReadFile(r.templatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read report template: %w", err)
		}
		text = string(content)
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"cell": cellReplacer.Replace,
	}).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return tmpl, nil
}
