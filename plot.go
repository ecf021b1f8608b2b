// Copyright (C) The Spagen Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package spagen

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	log "github.com/sirupsen/logrus"
)

const (
	plotW = 800
	plotH = 600
)

// stratumPalette cycles when a scheme has more strata than colors.
var stratumPalette = [][3]float64{
	{0.12, 0.47, 0.71},
	{1.00, 0.50, 0.05},
	{0.17, 0.63, 0.17},
	{0.84, 0.15, 0.16},
	{0.58, 0.40, 0.74},
	{0.55, 0.34, 0.29},
	{0.89, 0.47, 0.76},
	{0.50, 0.50, 0.50},
}

func stratumColors(strata []string) map[string][3]float64 {
	colors := map[string][3]float64{}
	for i, g := range strata {
		colors[g] = stratumPalette[i%len(stratumPalette)]
	}
	return colors
}

// frame maps data coordinates onto the canvas, leaving margins for labels.
// The y axis is flipped so larger values plot higher.
type frame struct {
	xmin, xmax, ymin, ymax float64
	left, right            float64
	top, bottom            float64
}

func newFrame(xs, ys []float64) frame {
	f := frame{left: 60, right: 20, top: 40, bottom: 50}
	f.xmin, f.xmax = minMax(xs)
	f.ymin, f.ymax = minMax(ys)
	if f.xmax == f.xmin {
		f.xmax = f.xmin + 1
	}
	if f.ymax == f.ymin {
		f.ymax = f.ymin + 1
	}
	// breathing room around the extremes
	dx, dy := (f.xmax-f.xmin)*0.05, (f.ymax-f.ymin)*0.05
	f.xmin, f.xmax = f.xmin-dx, f.xmax+dx
	f.ymin, f.ymax = f.ymin-dy, f.ymax+dy
	return f
}

func minMax(vs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func (f frame) x(v float64) float64 {
	return f.left + (v-f.xmin)/(f.xmax-f.xmin)*(plotW-f.left-f.right)
}

func (f frame) y(v float64) float64 {
	return plotH - f.bottom - (v-f.ymin)/(f.ymax-f.ymin)*(plotH-f.top-f.bottom)
}

func newCanvas(title string) *gg.Context {
	dc := gg.NewContext(plotW, plotH)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, plotW/2, 20, 0.5, 0.5)
	return dc
}

func drawAxes(dc *gg.Context, f frame, xlabel, ylabel string) {
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(f.left, f.top, f.left, plotH-f.bottom)
	dc.DrawLine(f.left, plotH-f.bottom, plotW-f.right, plotH-f.bottom)
	dc.Stroke()
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", f.xmin), f.x(f.xmin), plotH-f.bottom+15, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", f.xmax), f.x(f.xmax), plotH-f.bottom+15, 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", f.ymin), f.left-5, f.y(f.ymin), 1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.4g", f.ymax), f.left-5, f.y(f.ymax), 1, 0.5)
	dc.DrawStringAnchored(xlabel, plotW/2, plotH-15, 0.5, 0.5)
	dc.DrawStringAnchored(ylabel, 15, f.top-15, 0, 0.5)
}

func drawLegend(dc *gg.Context, strata []string, colors map[string][3]float64) {
	y := 50.0
	for _, g := range strata {
		c := colors[g]
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(plotW-110, y, 5)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(g, plotW-100, y, 0, 0.5)
		y += 16
	}
}

// mapCoords returns the plotting coordinates of every sample: longitude
// normalized to 0-360 so cross-meridian datasets stay contiguous.
func mapCoords(ds *dataset) (xs, ys []float64) {
	for _, s := range ds.Samples {
		xs = append(xs, normalizeLon(s.Lon))
		ys = append(ys, s.Lat)
	}
	return xs, ys
}

func plotSampleMap(path string, ses *session) error {
	ds := ses.Dataset
	xs, ys := mapCoords(ds)
	f := newFrame(xs, ys)
	dc := newCanvas(ses.Title + ": sample locations")
	drawAxes(dc, f, "longitude (0-360)", "latitude")
	strata := ds.strata()
	colors := stratumColors(strata)
	for i, s := range ds.Samples {
		c := colors[s.Group]
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(f.x(xs[i]), f.y(ys[i]), 4)
		dc.Fill()
	}
	drawLegend(dc, strata, colors)
	return dc.SavePNG(path)
}

func plotScreeplot(path string, ses *session) error {
	n := len(ses.Eigenvalues)
	idx := make([]float64, n)
	for i := range idx {
		idx[i] = float64(i + 1)
	}
	f := newFrame([]float64{0, float64(n + 1)}, append([]float64{0}, ses.Eigenvalues...))
	dc := newCanvas(ses.Title + ": sPCA eigenvalues")
	drawAxes(dc, f, "rank", "eigenvalue")
	barw := math.Max(1, (plotW-f.left-f.right)/float64(n)*0.8)
	for i, v := range ses.Eigenvalues {
		if v >= 0 {
			dc.SetRGB(0.12, 0.47, 0.71)
			dc.DrawRectangle(f.x(idx[i])-barw/2, f.y(v), barw, f.y(0)-f.y(v))
		} else {
			dc.SetRGB(0.84, 0.15, 0.16)
			dc.DrawRectangle(f.x(idx[i])-barw/2, f.y(0), barw, f.y(v)-f.y(0))
		}
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawLine(f.left, f.y(0), plotW-f.right, f.y(0))
	dc.Stroke()
	return dc.SavePNG(path)
}

// plotPermTest renders the null distribution as a bar histogram with the
// observed statistic marked and the p-value annotated.
func plotPermTest(path string, ses *session, t permTest) error {
	lo, hi := minMax(append([]float64{t.Observed}, t.Null...))
	if hi == lo {
		hi = lo + 1
	}
	const bins = 15
	counts := make([]float64, bins)
	width := (hi - lo) / bins
	for _, v := range t.Null {
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		counts[b]++
	}
	f := newFrame([]float64{lo, hi}, append([]float64{0}, counts...))
	dc := newCanvas(fmt.Sprintf("%s: %s structure test", ses.Title, t.Name))
	drawAxes(dc, f, "statistic", "count")
	for b, c := range counts {
		x0 := lo + float64(b)*width
		dc.SetRGB(0.6, 0.6, 0.6)
		dc.DrawRectangle(f.x(x0), f.y(c), f.x(x0+width)-f.x(x0)-1, f.y(0)-f.y(c))
		dc.Fill()
	}
	dc.SetRGB(0.84, 0.15, 0.16)
	dc.SetLineWidth(2)
	dc.DrawLine(f.x(t.Observed), f.top, f.x(t.Observed), plotH-f.bottom)
	dc.Stroke()
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("observed = %.4g, p = %.4g (%d permutations)", t.Observed, t.P, t.Permutations),
		plotW/2, f.top-8, 0.5, 0.5)
	return dc.SavePNG(path)
}

// plotScoreMap draws the leading axis scores at the sample locations: filled
// squares for positive scores, open squares for negative, area proportional
// to magnitude.
func plotScoreMap(path string, ses *session) error {
	ds := ses.Dataset
	xs, ys := mapCoords(ds)
	score := ses.leadingScore()
	f := newFrame(xs, ys)
	dc := newCanvas(fmt.Sprintf("%s: %s scores", ses.Title, ses.AxisLabels[0]))
	drawAxes(dc, f, "longitude (0-360)", "latitude")
	_, biggest := minMax(absAll(score))
	if biggest == 0 {
		biggest = 1
	}
	for i := range ds.Samples {
		half := 2 + 8*math.Sqrt(math.Abs(score[i])/biggest)
		x, y := f.x(xs[i]), f.y(ys[i])
		dc.DrawRectangle(x-half, y-half, 2*half, 2*half)
		if score[i] >= 0 {
			dc.SetRGB(0, 0, 0)
			dc.Fill()
		} else {
			dc.SetRGB(1, 1, 1)
			dc.FillPreserve()
			dc.SetRGB(0, 0, 0)
			dc.Stroke()
		}
	}
	return dc.SavePNG(path)
}

func absAll(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = math.Abs(v)
	}
	return out
}

// plotSurface renders an inverse-distance-weighted interpolation of the
// leading score over the sampling area.
func plotSurface(path string, ses *session) error {
	ds := ses.Dataset
	xs, ys := mapCoords(ds)
	score := ses.leadingScore()
	f := newFrame(xs, ys)
	dc := newCanvas(fmt.Sprintf("%s: interpolated %s surface", ses.Title, ses.AxisLabels[0]))
	_, biggest := minMax(absAll(score))
	if biggest == 0 {
		biggest = 1
	}
	const cell = 4
	for px := f.left; px < plotW-f.right; px += cell {
		for py := f.top; py < plotH-f.bottom; py += cell {
			gx := f.xmin + (px-f.left)/(plotW-f.left-f.right)*(f.xmax-f.xmin)
			gy := f.ymax - (py-f.top)/(plotH-f.top-f.bottom)*(f.ymax-f.ymin)
			var num, den float64
			exact := math.NaN()
			for i := range xs {
				dx, dy := gx-xs[i], gy-ys[i]
				d2 := dx*dx + dy*dy
				if d2 < 1e-9 {
					exact = score[i]
					break
				}
				w := 1 / d2
				num += w * score[i]
				den += w
			}
			v := exact
			if math.IsNaN(v) {
				v = num / den
			}
			t := math.Max(-1, math.Min(1, v/biggest))
			// blue (negative) through white to red (positive)
			if t >= 0 {
				dc.SetRGB(1, 1-t*0.8, 1-t*0.8)
			} else {
				dc.SetRGB(1+t*0.8, 1+t*0.8, 1)
			}
			dc.DrawRectangle(px, py, cell, cell)
			dc.Fill()
		}
	}
	drawAxes(dc, f, "longitude (0-360)", "latitude")
	dc.SetRGB(0, 0, 0)
	for i := range xs {
		dc.DrawCircle(f.x(xs[i]), f.y(ys[i]), 2)
		dc.Fill()
	}
	return dc.SavePNG(path)
}

// plotLoadings draws each allele column's squared contribution to axis 1.
func plotLoadings(path string, ses *session) error {
	p := len(ses.ColNames)
	contribs := make([]float64, p)
	best := 0
	for i := range ses.ColNames {
		contribs[i] = ses.Loadings[i][0] * ses.Loadings[i][0]
		if contribs[i] > contribs[best] {
			best = i
		}
	}
	f := newFrame([]float64{0, float64(p + 1)}, append([]float64{0}, contribs...))
	dc := newCanvas(fmt.Sprintf("%s: %s loadings", ses.Title, ses.AxisLabels[0]))
	drawAxes(dc, f, "allele column", "squared loading")
	barw := math.Max(1, (plotW-f.left-f.right)/float64(p)*0.8)
	for i, v := range contribs {
		dc.SetRGB(0.17, 0.63, 0.17)
		dc.DrawRectangle(f.x(float64(i+1))-barw/2, f.y(v), barw, f.y(0)-f.y(v))
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored("top: "+ses.ColNames[best], f.x(float64(best+1)), f.y(contribs[best])-10, 0.5, 0.5)
	return dc.SavePNG(path)
}

// plotScoreScatter plots the first two retained axes against each other,
// colored by stratum. With a single retained axis the lagged scores stand in
// for the second dimension.
func plotScoreScatter(path string, ses *session) error {
	ds := ses.Dataset
	xscore := ses.leadingScore()
	var yscore []float64
	ylabel := ""
	if len(ses.AxisLabels) > 1 {
		ylabel = ses.AxisLabels[1]
		for _, row := range ses.Scores {
			yscore = append(yscore, row[1])
		}
	} else {
		ylabel = ses.AxisLabels[0] + " (lagged)"
		for _, row := range ses.LagScores {
			yscore = append(yscore, row[0])
		}
	}
	f := newFrame(xscore, yscore)
	dc := newCanvas(ses.Title + ": score scatter")
	drawAxes(dc, f, ses.AxisLabels[0], ylabel)
	strata := ds.strata()
	colors := stratumColors(strata)
	for i, s := range ds.Samples {
		c := colors[s.Group]
		dc.SetRGB(c[0], c[1], c[2])
		dc.DrawCircle(f.x(xscore[i]), f.y(yscore[i]), 4)
		dc.Fill()
	}
	drawLegend(dc, strata, colors)
	return dc.SavePNG(path)
}

// renderPlots writes every diagnostic plot for the session into dir.
func renderPlots(dir string, ses *session) error {
	plots := map[string]func(string, *session) error{
		"map.png":       plotSampleMap,
		"screeplot.png": plotScreeplot,
		"scoremap.png":  plotScoreMap,
		"surface.png":   plotSurface,
		"loadings.png":  plotLoadings,
		"scatter.png":   plotScoreScatter,
	}
	for name, fn := range plots {
		path := filepath.Join(dir, name)
		if err := fn(path, ses); err != nil {
			return fmt.Errorf("render %s: %w", path, err)
		}
		log.Debugf("wrote %s", path)
	}
	for _, t := range ses.Tests {
		path := filepath.Join(dir, "permtest_"+t.Name+".png")
		if err := plotPermTest(path, ses, t); err != nil {
			return fmt.Errorf("render %s: %w", path, err)
		}
		log.Debugf("wrote %s", path)
	}
	return nil
}

type plotcmd struct{}

func (cmd *plotcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "session.gob.gz", "session snapshot `file`")
	outputDir := flags.String("output-dir", ".", "output `directory`")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	if err = os.MkdirAll(*outputDir, 0777); err != nil {
		return 1
	}
	var ses *session
	ses, err = readSnapshot(*inputFilename)
	if err != nil {
		return 1
	}
	err = renderPlots(*outputDir, ses)
	if err != nil {
		return 1
	}
	return 0
}
