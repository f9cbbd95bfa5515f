// Package report renders the outcome of an attack run: a JSON statistics
// record, an interactive HTML page and a PNG plot of the singular values.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/mahdiidarabi/fuleeca-recovery/pkg/fuleeca"
)

// spectrumHead is the number of leading singular values shown.
const spectrumHead = 40

// Record is the JSON document written for a run.
type Record struct {
	fuleeca.Statistics
	Fingerprint    string    `json:"fingerprint,omitempty"`
	SingularValues []float64 `json:"singular_values,omitempty"`
}

// NewRecord builds the JSON document of a result.
func NewRecord(result *fuleeca.RecoveryResult) Record {
	return Record{
		Statistics:     result.Statistics,
		Fingerprint:    result.Fingerprint,
		SingularValues: head(result.SingularValues),
	}
}

// WriteJSON writes the statistics record of a result.
func WriteJSON(w io.Writer, result *fuleeca.RecoveryResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewRecord(result))
}

// WriteHTML writes an interactive page with the distance trajectory of every
// attempt and the leading singular values.
func WriteHTML(w io.Writer, result *fuleeca.RecoveryResult) error {
	page := components.NewPage().SetPageTitle("FuLeeca key recovery")

	if result.Statistics.GroundTruth && len(result.Statistics.Attempts) > 0 {
		page.AddCharts(distanceChart(result.Statistics))
	}
	if len(result.SingularValues) > 0 {
		page.AddCharts(spectrumChart(result.SingularValues))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

// distanceChart plots the distance to ±a after each typical projection:
// point 0 is the spectral candidate, point t the t-th averaged candidate.
func distanceChart(stats fuleeca.Statistics) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Distance to the secret key",
			Subtitle: fmt.Sprintf("%d samples, state %s", stats.Samples, stats.State),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "averaging iteration"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "‖a - candidate‖"}),
	)

	longest := 0
	for _, a := range stats.Attempts {
		if len(a.AverageTypicalDistances) > longest {
			longest = len(a.AverageTypicalDistances)
		}
	}
	xs := make([]int, longest+1)
	for i := range xs {
		xs[i] = i
	}
	line.SetXAxis(xs)

	for _, a := range stats.Attempts {
		items := make([]opts.LineData, 0, len(a.AverageTypicalDistances)+1)
		items = append(items, opts.LineData{Value: a.TypicalDistance})
		for _, d := range a.AverageTypicalDistances {
			items = append(items, opts.LineData{Value: d})
		}
		line.AddSeries(fmt.Sprintf("direction %d", a.Index+1), items)
	}
	return line
}

func spectrumChart(values []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Singular values of the bias-corrected moment"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "index"}),
	)

	shown := head(values)
	xs := make([]int, len(shown))
	items := make([]opts.LineData, len(shown))
	for i, v := range shown {
		xs[i] = i + 1
		items[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(xs).AddSeries("σ", items)
	return line
}

// WriteSpectrumPNG plots the leading singular values to path. The image
// format follows the file extension.
func WriteSpectrumPNG(path string, values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("no singular values to plot")
	}
	shown := head(values)

	p := plot.New()
	p.Title.Text = "Singular values"
	p.X.Label.Text = "index"
	p.Y.Label.Text = "σ"

	pts := make(plotter.XYs, len(shown))
	for i, v := range shown {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	p.Add(l, s)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return err
	}
	return nil
}

func head(values []float64) []float64 {
	if len(values) > spectrumHead {
		return values[:spectrumHead]
	}
	return values
}
