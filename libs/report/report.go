// Package report renders post-run training artifacts.
package report

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteLossChart renders the per-episode loss curve of a training run to a
// standalone HTML file.
func WriteLossChart(path, runID string, losses []float64) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Training loss",
			Subtitle: fmt.Sprintf("run %s, %d episodes", runID, len(losses)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "loss"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	xs := make([]string, len(losses))
	items := make([]opts.LineData, len(losses))
	for i, loss := range losses {
		xs[i] = strconv.Itoa(i + 1)
		items[i] = opts.LineData{Value: loss}
	}
	line.SetXAxis(xs).AddSeries("episode loss", items)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write loss chart: %w", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("write loss chart: %w", err)
	}
	return nil
}
