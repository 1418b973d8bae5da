package output

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/vsinha/seasonplan/pkg/application/dto"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTMLReport renders a result bundle as a standalone HTML page
type HTMLReport struct {
	now func() time.Time
}

// TemplateData contains all data for rendering the HTML template
type TemplateData struct {
	Result      *dto.WorkflowResult
	Chart       template.HTML
	DataJSON    template.JS
	GeneratedAt string
}

// NewHTMLReport creates a new HTML report generator
func NewHTMLReport() *HTMLReport {
	return &HTMLReport{now: time.Now}
}

// GenerateHTML renders the report page
func (hr *HTMLReport) GenerateHTML(result *dto.WorkflowResult) (string, error) {
	jsonData, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report data: %w", err)
	}

	data := &TemplateData{
		Result:      result,
		Chart:       template.HTML(NewDemandChart(result).GenerateSVG(result)),
		DataJSON:    template.JS(jsonData),
		GeneratedAt: hr.now().Format("2006-01-02 15:04:05"),
	}

	tmpl, err := template.ParseFS(templateFS, "templates/report.html")
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// generateHTMLOutput prints the report or writes it to OutputDir
func generateHTMLOutput(result *dto.WorkflowResult, config Config) error {
	page, err := NewHTMLReport().GenerateHTML(result)
	if err != nil {
		return err
	}
	if config.OutputDir == "" {
		_, err := fmt.Fprint(config.writer(), page)
		return err
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(config.OutputDir, fmt.Sprintf("report_%s_week%02d.html", result.RunID, result.Week))
	if err := os.WriteFile(filename, []byte(page), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML report: %w", err)
	}
	if config.Verbose {
		fmt.Fprintf(config.writer(), "HTML report saved to: %s\n", filename)
	}
	return nil
}
