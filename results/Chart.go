package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Chart is a Writer which renders the rows it is given as an HTML page
// of line charts when it is closed. Each chart plots a group of
// columns against the iteration column.
type Chart struct {
	path   string
	title  string
	groups [][]string
	rows   []Row
}

// NewChart returns a new Chart Writer which renders to the file at
// path. Each group is a list of column names plotted on a single
// chart.
func NewChart(path, title string, groups ...[]string) (*Chart, error) {
	if path == "" {
		return nil, fmt.Errorf("newChart: empty path")
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("newChart: no columns to plot")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("newChart: %v", err)
		}
	}

	return &Chart{path: path, title: title, groups: groups}, nil
}

// Write records a row
func (c *Chart) Write(r Row) error {
	c.rows = append(c.rows, r.Copy())
	return nil
}

// Close renders the page of charts
func (c *Chart) Close() error {
	page := components.NewPage()

	xAxis := make([]string, len(c.rows))
	for i, r := range c.rows {
		iteration, ok := r.Get("iteration")
		if !ok {
			iteration = float64(i)
		}
		xAxis[i] = strconv.FormatFloat(iteration, 'f', -1, 64)
	}

	for _, group := range c.groups {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    c.title,
				Subtitle: fmt.Sprint(group),
			}),
		)
		line.SetXAxis(xAxis)

		for _, name := range group {
			items := make([]opts.LineData, 0, len(c.rows))
			for _, r := range c.rows {
				value, _ := r.Get(name)
				items = append(items, opts.LineData{Value: value})
			}
			line.AddSeries(name, items)
		}
		page.AddCharts(line)
	}

	file, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("close: %v", err)
	}
	defer file.Close()

	if err := page.Render(file); err != nil {
		return fmt.Errorf("close: could not render: %v", err)
	}
	return file.Close()
}

// State returns the rows written
func (c *Chart) State() State {
	rows := make([]Row, len(c.rows))
	for i, r := range c.rows {
		rows[i] = r.Copy()
	}
	return State{RowsWritten: len(rows), Rows: rows}
}

// SetState replaces the rows written
func (c *Chart) SetState(s State) error {
	if len(s.Rows) != s.RowsWritten {
		return fmt.Errorf("setState: have %v rows, want %v", len(s.Rows),
			s.RowsWritten)
	}

	c.rows = make([]Row, len(s.Rows))
	for i, r := range s.Rows {
		c.rows[i] = r.Copy()
	}
	return nil
}
