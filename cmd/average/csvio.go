package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/particle-average/internal/locs"
)

var errMissingColumn = errors.New("missing required column")

// table is a localization CSV. Columns other than x, y and group are kept
// verbatim and written back unchanged.
type table struct {
	header   []string
	rows     [][]string
	xCol     int
	yCol     int
	groupCol int
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// readTable parses a CSV with a header row naming at least x, y and group.
func readTable(r io.Reader) (*table, *locs.Set, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty CSV: %w", locs.ErrEmptySet)
	}

	t := &table{header: records[0], rows: records[1:]}
	t.xCol = columnIndex(t.header, "x")
	t.yCol = columnIndex(t.header, "y")
	t.groupCol = columnIndex(t.header, "group")
	for name, col := range map[string]int{"x": t.xCol, "y": t.yCol, "group": t.groupCol} {
		if col < 0 {
			return nil, nil, fmt.Errorf("%w: %q", errMissingColumn, name)
		}
	}

	n := len(t.rows)
	x := make([]float64, n)
	y := make([]float64, n)
	group := make([]int, n)
	for i, row := range t.rows {
		line := i + 2
		if x[i], err = strconv.ParseFloat(strings.TrimSpace(row[t.xCol]), 64); err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid x: %w", line, err)
		}
		if y[i], err = strconv.ParseFloat(strings.TrimSpace(row[t.yCol]), 64); err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid y: %w", line, err)
		}
		if group[i], err = parseGroup(row[t.groupCol]); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	set, err := locs.NewSet(x, y, group)
	if err != nil {
		return nil, nil, err
	}
	return t, set, nil
}

// parseGroup accepts integers and integral floats such as "3.0".
func parseGroup(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("invalid group %q", s)
	}
	return int(f), nil
}

type writeOptions struct {
	mergeGroups bool
	offsetX     float64
	offsetY     float64
}

// write emits the table with x and y replaced by s, shifted by the offsets.
// mergeGroups drops the group column.
func (t *table) write(w io.Writer, s *locs.Set, opts writeOptions) error {
	if s.Len() != len(t.rows) {
		return fmt.Errorf("table has %d rows, coordinates have %d", len(t.rows), s.Len())
	}
	keep := func(row []string) []string {
		if !opts.mergeGroups {
			return row
		}
		out := make([]string, 0, len(row)-1)
		out = append(out, row[:t.groupCol]...)
		return append(out, row[t.groupCol+1:]...)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(keep(t.header)); err != nil {
		return err
	}
	row := make([]string, len(t.header))
	for i, in := range t.rows {
		copy(row, in)
		row[t.xCol] = strconv.FormatFloat(s.X[i]+opts.offsetX, 'g', -1, 64)
		row[t.yCol] = strconv.FormatFloat(s.Y[i]+opts.offsetY, 'g', -1, 64)
		if err := cw.Write(keep(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
