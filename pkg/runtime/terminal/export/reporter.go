package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/de-tools/sumocost/pkg/models/domain"
)

type TableConfig struct {
	ServiceWidth int
	CountWidth   int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		ServiceWidth: 24,
		CountWidth:   12,
	}
}

// Reporter renders a run summary as a console table.
type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

type serviceRow struct {
	Name      string
	Records   int
	Successes int
	Failures  int
}

type summaryView struct {
	RunID      string
	Days       int
	Records    int
	Duration   string
	Services   []serviceRow
	FailedDays []string
}

func (c *Reporter) Handle(summary *domain.RunSummary) error {
	funcMap := template.FuncMap{
		"formatRow": func(service string, records, successes, failures any) string {
			return fmt.Sprintf("| %-*s | %*v | %*v | %*v |",
				c.config.ServiceWidth, service,
				c.config.CountWidth, records,
				c.config.CountWidth, successes,
				c.config.CountWidth, failures)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+",
				strings.Repeat("-", c.config.ServiceWidth+2),
				strings.Repeat("-", c.config.CountWidth+2),
				strings.Repeat("-", c.config.CountWidth+2),
				strings.Repeat("-", c.config.CountWidth+2))
		},
	}

	tmpl := `
Run {{.RunID}}
Days processed: {{.Days}}
Total records: {{.Records}}
Duration: {{.Duration}}

{{separator}}
{{formatRow "Service" "Records" "Days OK" "Days Failed"}}
{{separator}}
{{range .Services}}{{formatRow .Name .Records .Successes .Failures}}
{{end}}{{separator}}
{{if .FailedDays}}
Days to retry: {{range .FailedDays}}{{.}} {{end}}
{{end}}`

	t, err := template.New("summary").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, newSummaryView(summary))
}

func newSummaryView(summary *domain.RunSummary) summaryView {
	view := summaryView{
		RunID:      summary.RunID,
		Days:       summary.DaysProcessed,
		Records:    summary.TotalRecords,
		Duration:   summary.TotalDuration.Round(time.Second).String(),
		FailedDays: summary.FailedDays(),
	}
	for name, totals := range summary.ServiceBreakdown {
		view.Services = append(view.Services, serviceRow{
			Name:      name,
			Records:   totals.Records,
			Successes: totals.Successes,
			Failures:  totals.Failures,
		})
	}
	sort.Slice(view.Services, func(i, j int) bool {
		return view.Services[i].Name < view.Services[j].Name
	})
	return view
}
