package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	reportBackground    = "#060c1b"
	reportTextPrimary   = "#eceff4"
	reportTextSecondary = "#9ca3af"
	reportApproved      = "#34d399"
	reportRejected      = "#f87171"
	reportEquityLine    = "#3b82f6"

	reportChartWidth  = 1200
	reportChartHeight = 420
)

// Reporter renders the audit trail into a self-contained HTML report.
type Reporter struct {
	store *Store
	path  string
}

func NewReporter(store *Store, path string) *Reporter {
	return &Reporter{store: store, path: path}
}

// Path 返回报表输出路径。
func (r *Reporter) Path() string { return r.path }

// Build 拉取最近 7 天的周期记录并渲染报表到磁盘。
func (r *Reporter) Build(ctx context.Context) error {
	since := time.Now().Add(-7 * 24 * time.Hour)
	records, err := r.store.CyclesSince(ctx, since)
	if err != nil {
		return fmt.Errorf("report: 读取审计记录失败: %w", err)
	}
	html, err := RenderHTML(records)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.path, html, 0o644)
}

// RenderHTML 把周期记录渲染成净值曲线 + 决策分布两张图的 HTML 页面。
func RenderHTML(records []CycleModel) ([]byte, error) {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEquityChart(records), buildActionChart(records))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("report: 渲染失败: %w", err)
	}
	return buf.Bytes(), nil
}

func chartInit(title string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", reportChartWidth),
			Height:          fmt.Sprintf("%dpx", reportChartHeight),
			BackgroundColor: reportBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			Left:       "left",
			Top:        "10",
			TitleStyle: &opts.TextStyle{Color: reportTextPrimary, FontSize: 16},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
		}),
	}
}

func buildEquityChart(records []CycleModel) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(chartInit("账户净值")...)

	x := make([]string, 0, len(records))
	y := make([]opts.LineData, 0, len(records))
	for _, rec := range records {
		if rec.Equity <= 0 {
			continue
		}
		x = append(x, time.UnixMilli(rec.Timestamp).UTC().Format("01-02 15:04"))
		y = append(y, opts.LineData{Value: rec.Equity})
	}
	line.SetXAxis(x)
	line.AddSeries("equity", y, charts.WithLineStyleOpts(opts.LineStyle{Color: reportEquityLine}))
	return line
}

// buildActionChart 按动作统计放行/拒绝数量。
func buildActionChart(records []CycleModel) *charts.Bar {
	type bucket struct{ approved, rejected int }
	order := []string{"open_long", "open_short", "close_long", "close_short", "hold"}
	agg := map[string]*bucket{}
	for _, o := range order {
		agg[o] = &bucket{}
	}
	for _, rec := range records {
		b, ok := agg[rec.Action]
		if !ok {
			continue
		}
		if rec.Approved == 1 {
			b.approved++
		} else {
			b.rejected++
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(chartInit("决策分布（放行 / 拒绝）")...)
	bar.SetGlobalOptions(charts.WithLegendOpts(opts.Legend{
		Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: reportTextPrimary},
	}))

	approved := make([]opts.BarData, 0, len(order))
	rejected := make([]opts.BarData, 0, len(order))
	for _, o := range order {
		approved = append(approved, opts.BarData{Value: agg[o].approved})
		rejected = append(rejected, opts.BarData{Value: agg[o].rejected})
	}
	bar.SetXAxis(order)
	bar.AddSeries("approved", approved, charts.WithItemStyleOpts(opts.ItemStyle{Color: reportApproved}))
	bar.AddSeries("rejected", rejected, charts.WithItemStyleOpts(opts.ItemStyle{Color: reportRejected}))
	return bar
}

// RejectionBreakdown 统计拒绝原因码出现次数（状态页用）。
func RejectionBreakdown(records []CycleModel) map[string]int {
	out := map[string]int{}
	for _, rec := range records {
		if rec.Approved == 1 || len(rec.Verdict) == 0 {
			continue
		}
		var v struct {
			Reasons []string `json:"reasons"`
		}
		if err := json.Unmarshal(rec.Verdict, &v); err != nil {
			continue
		}
		for _, reason := range v.Reasons {
			out[reason]++
		}
	}
	return out
}
