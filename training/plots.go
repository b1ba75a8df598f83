package training

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotCurves renders the loss and accuracy curves of a run to PNG files in
// outDir: loss.png and accuracy.png.
func PlotCurves(result *Result, outDir string) error {
	if err := plotCurve(result, outDir, "loss.png", "Loss", func(e LogEntry) float64 { return e.Loss }); err != nil {
		return err
	}
	return plotCurve(result, outDir, "accuracy.png", "Accuracy", func(e LogEntry) float64 { return e.Acc })
}

func plotCurve(result *Result, outDir, filename, label string, value func(LogEntry) float64) error {
	p := plot.New()
	p.Title.Text = label + " over training"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = label
	p.Add(plotter.NewGrid())

	trainPts := make(plotter.XYs, len(result.TrainLog))
	for i, e := range result.TrainLog {
		// Place intra-epoch entries at fractional epoch positions.
		frac := 0.0
		if n := batchesInEpoch(result.TrainLog, e.Epoch); n > 0 {
			frac = float64(batchRank(result.TrainLog, i)) / float64(n)
		}
		trainPts[i].X = float64(e.Epoch) + frac
		trainPts[i].Y = value(e)
	}

	valPts := make(plotter.XYs, len(result.ValLog))
	for i, e := range result.ValLog {
		valPts[i].X = float64(e.Epoch + 1)
		valPts[i].Y = value(e)
	}

	trainLine, err := plotter.NewLine(trainPts)
	if err != nil {
		return fmt.Errorf("failed to build train line: %v", err)
	}
	valLine, err := plotter.NewLine(valPts)
	if err != nil {
		return fmt.Errorf("failed to build validation line: %v", err)
	}
	valLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(trainLine, valLine)
	p.Legend.Add("train", trainLine)
	p.Legend.Add("val", valLine)
	p.Legend.Top = true

	path := filepath.Join(outDir, filename)
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %v", path, err)
	}
	return nil
}

func batchesInEpoch(entries []LogEntry, epoch int) int {
	n := 0
	for _, e := range entries {
		if e.Epoch == epoch {
			n++
		}
	}
	return n
}

func batchRank(entries []LogEntry, idx int) int {
	rank := 0
	for i := 0; i < idx; i++ {
		if entries[i].Epoch == entries[idx].Epoch {
			rank++
		}
	}
	return rank
}
