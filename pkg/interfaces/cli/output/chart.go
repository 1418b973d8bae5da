package output

import (
	"fmt"
	"strings"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

const (
	colorForecast   = "#2196F3"
	colorReforecast = "#FF9800"
	colorBounds     = "#455A64"
)

// DemandChart draws the weekly forecast as an SVG bar chart
type DemandChart struct {
	Width        int
	Height       int
	MarginLeft   int
	MarginTop    int
	MarginRight  int
	MarginBottom int
	BarGap       int
}

// DemandBar is one forecast week
type DemandBar struct {
	Week     int
	Units    entities.Quantity
	Lower    entities.Quantity
	Upper    entities.Quantity
	Revised  bool
	X, Width int
}

// NewDemandChart sizes a chart for the result's horizon
func NewDemandChart(result *dto.WorkflowResult) *DemandChart {
	weeks := 0
	if result.Forecast != nil {
		weeks = result.Forecast.HorizonWeeks()
	}
	return &DemandChart{
		Width:        max(800, 120+weeks*40),
		Height:       360,
		MarginLeft:   70,
		MarginTop:    50,
		MarginRight:  30,
		MarginBottom: 50,
		BarGap:       6,
	}
}

// bars merges the active forecast with a reforecast tail when one exists
func (dc *DemandChart) bars(result *dto.WorkflowResult) []DemandBar {
	f := result.Forecast
	bars := make([]DemandBar, len(f.ForecastByWeek))
	for i, q := range f.ForecastByWeek {
		bars[i] = DemandBar{Week: i + 1, Units: q}
		if i < len(f.LowerBound) && i < len(f.UpperBound) {
			bars[i].Lower, bars[i].Upper = f.LowerBound[i], f.UpperBound[i]
		}
	}
	if r := result.Reforecast; r != nil {
		for i := range bars {
			bars[i].Revised = i >= r.WeeksObserved
		}
	}

	plotWidth := dc.Width - dc.MarginLeft - dc.MarginRight
	slot := plotWidth / max(1, len(bars))
	for i := range bars {
		bars[i].X = dc.MarginLeft + i*slot + dc.BarGap/2
		bars[i].Width = max(1, slot-dc.BarGap)
	}
	return bars
}

// GenerateSVG renders the chart
func (dc *DemandChart) GenerateSVG(result *dto.WorkflowResult) string {
	if result.Forecast == nil || result.Forecast.HorizonWeeks() == 0 {
		return dc.generateEmptyChart()
	}
	bars := dc.bars(result)

	var peak entities.Quantity
	for _, b := range bars {
		peak = max(peak, b.Units, b.Upper)
	}
	peak = max(peak, 1)
	plotHeight := dc.Height - dc.MarginTop - dc.MarginBottom
	baseline := dc.Height - dc.MarginBottom
	scale := func(q entities.Quantity) int {
		return int(float64(q) / float64(peak) * float64(plotHeight))
	}

	var svg strings.Builder
	fmt.Fprintf(&svg, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, dc.Width, dc.Height)
	svg.WriteString(`<style>.label { font-family: Arial, sans-serif; font-size: 10px; fill: #666; } .title { font-family: Arial, sans-serif; font-size: 14px; font-weight: bold; fill: #333; }</style>`)
	fmt.Fprintf(&svg, `<rect width="%d" height="%d" fill="white"/>`, dc.Width, dc.Height)
	fmt.Fprintf(&svg, `<text x="%d" y="25" class="title">Weekly demand, %s</text>`, dc.MarginLeft, result.Parameters.Category)

	// y axis ticks at quarters of the peak
	for i := 0; i <= 4; i++ {
		q := peak * entities.Quantity(i) / 4
		y := baseline - scale(q)
		fmt.Fprintf(&svg, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#e0e0e0"/>`, dc.MarginLeft, y, dc.Width-dc.MarginRight, y)
		fmt.Fprintf(&svg, `<text x="%d" y="%d" class="label" text-anchor="end">%d</text>`, dc.MarginLeft-6, y+3, q)
	}

	for _, b := range bars {
		color := colorForecast
		if b.Revised {
			color = colorReforecast
		}
		h := scale(b.Units)
		fmt.Fprintf(&svg, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s"><title>Week %d: %d units (%d to %d)</title></rect>`,
			b.X, baseline-h, b.Width, h, color, b.Week, b.Units, b.Lower, b.Upper)
		if b.Upper > 0 {
			cx := b.X + b.Width/2
			fmt.Fprintf(&svg, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s"/>`,
				cx, baseline-scale(b.Upper), cx, baseline-scale(b.Lower), colorBounds)
		}
		fmt.Fprintf(&svg, `<text x="%d" y="%d" class="label" text-anchor="middle">%d</text>`,
			b.X+b.Width/2, baseline+15, b.Week)
	}

	dc.drawLegend(&svg, result.Reforecast != nil)
	svg.WriteString(`</svg>`)
	return svg.String()
}

func (dc *DemandChart) drawLegend(svg *strings.Builder, revised bool) {
	items := []struct{ color, label string }{{colorForecast, "Forecast"}}
	if revised {
		items = append(items, struct{ color, label string }{colorReforecast, "Reforecast"})
	}
	x := dc.Width - dc.MarginRight - 110
	for i, item := range items {
		y := 15 + i*14
		fmt.Fprintf(svg, `<rect x="%d" y="%d" width="12" height="8" fill="%s"/>`, x, y, item.color)
		fmt.Fprintf(svg, `<text x="%d" y="%d" class="label">%s</text>`, x+18, y+8, item.label)
	}
}

func (dc *DemandChart) generateEmptyChart() string {
	return fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg"><rect width="%d" height="%d" fill="white"/><text x="%d" y="%d" text-anchor="middle" font-family="Arial, sans-serif" fill="#666">No forecast</text></svg>`,
		dc.Width, dc.Height, dc.Width, dc.Height, dc.Width/2, dc.Height/2)
}
