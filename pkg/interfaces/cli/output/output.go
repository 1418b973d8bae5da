package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

// Config holds configuration for output generation
type Config struct {
	Format    string
	OutputDir string
	Verbose   bool
	Writer    io.Writer
}

func (c Config) writer() io.Writer {
	if c.Writer == nil {
		return os.Stdout
	}
	return c.Writer
}

// Generate renders a result bundle in the configured format
func Generate(result *dto.WorkflowResult, config Config) error {
	switch config.Format {
	case "", "text":
		return generateTextOutput(result, config)
	case "json":
		return generateJSONOutput(result, config)
	case "csv":
		return generateCSVOutput(result, config)
	case "html":
		return generateHTMLOutput(result, config)
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

// generateTextOutput prints the result bundle as tables
func generateTextOutput(result *dto.WorkflowResult, config Config) error {
	w := config.writer()

	fmt.Fprintf(w, "Run %s (%s, week %d, %s)\n",
		result.RunID, result.Parameters.Category, result.Week, result.State)
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	fmt.Fprintln(w)

	if f := result.Forecast; f != nil {
		renderForecast(w, f)
	}
	if a := result.Allocation; a != nil {
		renderAllocation(w, a, config.Verbose)
	}
	if v := result.Variance; v != nil {
		tw := newTable(w, "Variance")
		tw.AppendRows([]table.Row{
			{"Cumulative variance", fmt.Sprintf("%+.1f%%", v.VariancePct)},
			{"Severity", v.Severity},
			{"Trend", v.Trend},
			{"Likely cause", v.LikelyCause},
			{"Reforecast", v.ShouldReforecast},
			{"Weeks observed", v.WeeksObserved},
			{"Weeks remaining", v.WeeksRemaining},
		})
		tw.Render()
		fmt.Fprintf(w, "%s\n\n", v.Reasoning)
	}
	if r := result.Reforecast; r != nil {
		tw := newTable(w, "Reforecast")
		tw.AppendRows([]table.Row{
			{"Adjustment factor", fmt.Sprintf("%.3f", r.AdjustmentFactor)},
			{"Prior weight", fmt.Sprintf("%.3f", r.PriorWeight)},
			{"Likelihood weight", fmt.Sprintf("%.3f", r.LikelihoodWeight)},
			{"Posterior confidence", fmt.Sprintf("%.3f", r.PosteriorConfidence)},
			{"Remaining weeks", joinQuantities(r.ForecastByWeek)},
		})
		tw.Render()
		fmt.Fprintln(w)
	}
	if r := result.Reallocation; r != nil {
		renderReallocation(w, r)
	}
	if m := result.Markdown; m != nil {
		renderMarkdown(w, m)
	}
	if config.Verbose && len(result.ExecutionLog) > 0 {
		renderLogTable(w, result.ExecutionLog)
	}
	return nil
}

func renderForecast(w io.Writer, f *entities.ForecastResult) {
	tw := newTable(w, "Forecast")
	tw.AppendHeader(table.Row{"Week", "Demand", "Lower", "Upper"})
	for i, q := range f.ForecastByWeek {
		row := table.Row{i + 1, q, "", ""}
		if i < len(f.LowerBound) && i < len(f.UpperBound) {
			row[2], row[3] = f.LowerBound[i], f.UpperBound[i]
		}
		tw.AppendRow(row)
	}
	tw.AppendFooter(table.Row{"Total", f.TotalDemand, "", ""})
	tw.Render()
	fmt.Fprintf(w, "method %s (%s), agreement %.1f%%, safety stock %.0f%%, peak week %d, trough week %d\n",
		f.Method, strings.Join(f.ModelsUsed, "+"), f.ModelAgreementPct,
		f.SafetyStockPct*100, f.Seasonality.PeakWeek, f.Seasonality.TroughWeek)
	if f.LowAgreement {
		fmt.Fprintln(w, "warning: low model agreement")
	}
	fmt.Fprintln(w)
}

func renderAllocation(w io.Writer, a *entities.AllocationResult, verbose bool) {
	fmt.Fprintf(w, "Manufacturing order %d, DC holdback %d, silhouette %.3f\n",
		a.ManufacturingOrder, a.DCHoldbackUnits, a.SilhouetteScore)
	for _, warning := range a.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	tw := newTable(w, "Clusters")
	tw.AppendHeader(table.Row{"Cluster", "Stores", "Share", "Units"})
	for _, c := range a.ClusterDistribution {
		tw.AppendRow(table.Row{c.ClusterName, c.StoreCount, fmt.Sprintf("%.1f%%", c.Percentage*100), c.Units})
	}
	tw.Render()

	tw = newTable(w, "Store allocations")
	tw.AppendHeader(table.Row{"Store", "Cluster", "Factor", "Units"})
	for _, s := range a.StoreAllocations {
		tw.AppendRow(table.Row{s.StoreID, s.ClusterName, fmt.Sprintf("%.4f", s.AllocationFactor), s.Units})
	}
	tw.AppendFooter(table.Row{"Total", "", "", a.StoreUnits()})
	tw.Render()

	if len(a.ReplenishmentPlan) > 0 {
		tw = newTable(w, "Replenishment")
		tw.AppendHeader(table.Row{"Week", "Requested", "Shipped", "DC after"})
		for _, b := range a.ReplenishmentPlan {
			tw.AppendRow(table.Row{b.Week, b.RequestedUnits, b.TotalUnits, b.DCRemainingAfter})
		}
		tw.Render()
		if verbose {
			for _, b := range a.ReplenishmentPlan {
				for _, s := range b.Shipments {
					fmt.Fprintf(w, "  week %d: %s <- %d\n", b.Week, s.StoreID, s.Units)
				}
			}
		}
	}
	fmt.Fprintln(w)
}

func renderReallocation(w io.Writer, r *entities.ReallocationAnalysis) {
	if !r.ShouldReallocate {
		fmt.Fprintln(w, "No reallocation needed")
		fmt.Fprintln(w)
		return
	}
	tw := newTable(w, fmt.Sprintf("Transfers (%s)", r.Strategy))
	tw.AppendHeader(table.Row{"From", "To", "Units", "Reason"})
	for _, t := range r.TransferOrders {
		tw.AppendRow(table.Row{t.From, t.To, t.Units, t.Reason})
	}
	tw.AppendFooter(table.Row{"Total", "", r.TotalUnits(), ""})
	tw.Render()
	if r.UnmetDeficit > 0 {
		fmt.Fprintf(w, "unmet deficit: %d units\n", r.UnmetDeficit)
	}
	fmt.Fprintln(w)
}

func renderMarkdown(w io.Writer, m *entities.MarkdownResult) {
	tw := newTable(w, "Markdown")
	tw.AppendRows([]table.Row{
		{"Sell-through", fmt.Sprintf("%.1f%%", m.SellThroughRate*100)},
		{"Target", fmt.Sprintf("%.1f%%", m.TargetRate*100)},
		{"Gap", fmt.Sprintf("%.1f pts", m.Gap*100)},
		{"Recommended markdown", fmt.Sprintf("%d%%", m.MarkdownPct)},
		{"Capped", m.Capped},
	})
	if m.Week > 0 {
		tw.AppendRow(table.Row{"Checkpoint week", m.Week})
	}
	tw.Render()
	fmt.Fprintln(w)
}

func renderLogTable(w io.Writer, log []entities.ExecutionLogEntry) {
	tw := newTable(w, "Execution log")
	tw.AppendHeader(table.Row{"#", "Step", "Started", "Duration", "Status", "Cause"})
	for _, e := range log {
		tw.AppendRow(table.Row{e.Sequence, e.StepName, e.StartedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%dms", e.DurationMs), e.Status, e.Cause})
	}
	tw.Render()
}

// generateJSONOutput prints the bundle or writes it to OutputDir
func generateJSONOutput(result *dto.WorkflowResult, config Config) error {
	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if config.OutputDir == "" {
		fmt.Fprintln(config.writer(), string(jsonData))
		return nil
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(config.OutputDir, fmt.Sprintf("result_%s_week%02d.json", result.RunID, result.Week))
	if err := os.WriteFile(filename, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	if config.Verbose {
		fmt.Fprintf(config.writer(), "JSON results saved to: %s\n", filename)
	}
	return nil
}

// generateCSVOutput writes one CSV file per populated section
func generateCSVOutput(result *dto.WorkflowResult, config Config) error {
	if config.OutputDir == "" {
		return fmt.Errorf("output directory required for CSV format")
	}
	if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string
	write := func(name string, header []string, rows [][]string) error {
		filename := filepath.Join(config.OutputDir, name)
		if err := writeCSV(filename, header, rows); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, filename)
		return nil
	}

	if f := result.Forecast; f != nil {
		rows := make([][]string, len(f.ForecastByWeek))
		for i, q := range f.ForecastByWeek {
			rows[i] = []string{strconv.Itoa(i + 1), qty(q), qtyAt(f.LowerBound, i), qtyAt(f.UpperBound, i)}
		}
		if err := write("forecast.csv", []string{"week", "demand", "lower", "upper"}, rows); err != nil {
			return err
		}
	}
	if a := result.Allocation; a != nil {
		rows := make([][]string, len(a.StoreAllocations))
		for i, s := range a.StoreAllocations {
			rows[i] = []string{string(s.StoreID), s.ClusterName, strconv.FormatFloat(s.AllocationFactor, 'f', 6, 64), qty(s.Units)}
		}
		if err := write("store_allocations.csv", []string{"store_id", "cluster", "allocation_factor", "units"}, rows); err != nil {
			return err
		}
		var shipments [][]string
		for _, b := range a.ReplenishmentPlan {
			for _, s := range b.Shipments {
				shipments = append(shipments, []string{strconv.Itoa(b.Week), string(s.StoreID), qty(s.Units)})
			}
		}
		if len(shipments) > 0 {
			if err := write("replenishment.csv", []string{"week", "store_id", "units"}, shipments); err != nil {
				return err
			}
		}
	}
	if r := result.Reallocation; r != nil && len(r.TransferOrders) > 0 {
		rows := make([][]string, len(r.TransferOrders))
		for i, t := range r.TransferOrders {
			rows[i] = []string{string(t.From), string(t.To), qty(t.Units), t.Reason}
		}
		if err := write("transfers.csv", []string{"from", "to", "units", "reason"}, rows); err != nil {
			return err
		}
	}
	if len(result.ExecutionLog) > 0 {
		if err := write("execution_log.csv", logHeader, logRows(result.ExecutionLog)); err != nil {
			return err
		}
	}

	if config.Verbose {
		fmt.Fprintf(config.writer(), "CSV results saved to:\n")
		for _, f := range written {
			fmt.Fprintf(config.writer(), "  %s\n", f)
		}
	}
	return nil
}

var logHeader = []string{"sequence", "step_name", "started_at", "duration_ms", "status", "input_digest", "output_digest", "cause"}

func logRows(log []entities.ExecutionLogEntry) [][]string {
	rows := make([][]string, len(log))
	for i, e := range log {
		rows[i] = []string{
			strconv.Itoa(e.Sequence), e.StepName, e.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			strconv.FormatInt(e.DurationMs, 10), string(e.Status), e.InputDigest, e.OutputDigest, e.Cause,
		}
	}
	return rows
}

// RenderLog prints an execution log as a table, JSON, or CSV
func RenderLog(w io.Writer, log []entities.ExecutionLogEntry, format string) error {
	switch format {
	case "", "text":
		if len(log) == 0 {
			fmt.Fprintln(w, "No execution log entries")
			return nil
		}
		renderLogTable(w, log)
		return nil
	case "json":
		return printJSON(w, log)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(logHeader); err != nil {
			return err
		}
		if err := cw.WriteAll(logRows(log)); err != nil {
			return fmt.Errorf("failed to write log CSV: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// RenderRuns prints a run listing
func RenderRuns(w io.Writer, runs []dto.RunSummary, format string) error {
	switch format {
	case "", "text":
		tw := newTable(w, "")
		tw.AppendHeader(table.Row{"Run", "Category", "State", "Week", "Updated"})
		for _, r := range runs {
			tw.AppendRow(table.Row{r.RunID, r.Category, r.State, r.Week, r.UpdatedAt.Format("2006-01-02 15:04:05")})
		}
		tw.Render()
		return nil
	case "json":
		return printJSON(w, runs)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// RenderMarkdown prints a standalone markdown recommendation
func RenderMarkdown(w io.Writer, m entities.MarkdownResult, format string) error {
	switch format {
	case "", "text":
		renderMarkdown(w, &m)
		return nil
	case "json":
		return printJSON(w, m)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

func writeCSV(filename string, header []string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func qty(q entities.Quantity) string {
	return strconv.FormatInt(int64(q), 10)
}

func qtyAt(values []entities.Quantity, i int) string {
	if i >= len(values) {
		return ""
	}
	return qty(values[i])
}

func joinQuantities(values []entities.Quantity) string {
	parts := make([]string, len(values))
	for i, q := range values {
		parts[i] = qty(q)
	}
	return strings.Join(parts, " ")
}
