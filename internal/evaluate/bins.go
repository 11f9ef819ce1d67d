package evaluate

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Histogram counts the values of one metric column.
type Histogram struct {
	Metric  string
	Labels  []string
	Counts  []int
	Skipped int
	Absent  bool
}

var binEdges = []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0}

var titleCase = cases.Title(language.English)

// Distributions counts context_recall as discrete 0/1 values and the other
// metrics in five equal bins over [0, 1]. Empty, unparsable and out-of-range
// cells are counted as skipped.
func Distributions(t *Table) []Histogram {
	var out []Histogram
	out = append(out, discrete(t, ContextRecall))
	for _, m := range []string{FactualCorrectness, SemanticSimilarity, Faithfulness} {
		out = append(out, binned(t, m))
	}
	return out
}

func discrete(t *Table, metric string) Histogram {
	h := Histogram{Metric: metric, Labels: []string{"0", "1"}, Counts: make([]int, 2)}
	col := t.Column(metric)
	if col < 0 {
		h.Absent = true
		return h
	}
	for _, rec := range t.Records {
		v, ok := cell(rec, col)
		switch {
		case ok && v == 0:
			h.Counts[0]++
		case ok && v == 1:
			h.Counts[1]++
		default:
			h.Skipped++
		}
	}
	return h
}

func binned(t *Table, metric string) Histogram {
	h := Histogram{Metric: metric, Counts: make([]int, len(binEdges)-1)}
	for i := 0; i+1 < len(binEdges); i++ {
		h.Labels = append(h.Labels, fmt.Sprintf("%.1f-%.1f", binEdges[i], binEdges[i+1]))
	}
	col := t.Column(metric)
	if col < 0 {
		h.Absent = true
		return h
	}
	for _, rec := range t.Records {
		v, ok := cell(rec, col)
		if !ok || v < 0 || v > 1 {
			h.Skipped++
			continue
		}
		for i := 1; i < len(binEdges); i++ {
			if v <= binEdges[i] {
				h.Counts[i-1]++
				break
			}
		}
	}
	return h
}

func cell(rec []string, col int) (float64, bool) {
	if col >= len(rec) {
		return 0, false
	}
	s := strings.TrimSpace(rec[col])
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// WriteHistograms prints each histogram as a text bar chart.
func WriteHistograms(w io.Writer, hs []Histogram) error {
	for _, h := range hs {
		title := titleCase.String(strings.ReplaceAll(h.Metric, "_", " "))
		if h.Absent {
			if _, err := fmt.Fprintf(w, "Column '%s' is missing in the data.\n\n", h.Metric); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "Distribution of %s\n", title); err != nil {
			return err
		}
		for i, l := range h.Labels {
			if _, err := fmt.Fprintf(w, "  %-8s %4d %s\n", l, h.Counts[i], strings.Repeat("█", h.Counts[i])); err != nil {
				return err
			}
		}
		if h.Skipped > 0 {
			if _, err := fmt.Fprintf(w, "  skipped  %4d\n", h.Skipped); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
