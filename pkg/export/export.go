// Package export writes assignments and optimisation traces to files.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/fleetassign/core/assign"
	"github.com/kilianp07/fleetassign/core/genetic"
	"github.com/kilianp07/fleetassign/core/model"
)

// Row is one postcode/fleet pair of an assignment.
type Row struct {
	PostcodeID int     `json:"postcode_id"`
	FleetID    int     `json:"fleet_id"`
	Quantity   float64 `json:"quantity"`
	// Share is the matrix cell: 1 in capacity mode, the served fraction in
	// volume mode.
	Share float64 `json:"share"`
}

// Rows flattens a in fleet order, then in allocation order.
func Rows(p *model.Problem, a assign.Assignment) []Row {
	var rows []Row
	for f, allocs := range a.Allocations {
		for _, al := range allocs {
			rows = append(rows, Row{
				PostcodeID: p.Customers[al.Customer].ID,
				FleetID:    p.Fleets[f].ID,
				Quantity:   al.Quantity,
				Share:      a.Matrix.At(al.Customer, f),
			})
		}
	}
	return rows
}

// GenomeRows lists the fleet chosen for every postcode of a genome. The
// fleet column index is reported since cost models carry no identifiers.
func GenomeRows(m *model.CostModel, g genetic.Genome) []Row {
	rows := make([]Row, len(g))
	for p, f := range g {
		rows[p] = Row{PostcodeID: p, FleetID: f, Quantity: m.Demand[p], Share: 1}
	}
	return rows
}

// WriteJSON writes rows to w in JSON format.
func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteCSV writes rows to w in CSV format with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"postcode_id", "fleet_id", "quantity", "share"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.PostcodeID),
			strconv.Itoa(r.FleetID),
			strconv.FormatFloat(r.Quantity, 'f', -1, 64),
			strconv.FormatFloat(r.Share, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteConvergenceChart renders the best and mean cost of every generation
// as an HTML line chart. Generations without a feasible individual leave a
// gap.
func WriteConvergenceChart(w io.Writer, history []genetic.GenerationStats) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Genetic optimizer convergence"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Generation"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cost"}),
	)

	xAxis := make([]string, len(history))
	best := make([]opts.LineData, len(history))
	mean := make([]opts.LineData, len(history))
	for i, s := range history {
		xAxis[i] = strconv.Itoa(s.Generation)
		best[i] = lineValue(s.Best)
		mean[i] = lineValue(s.Mean)
	}
	line.SetXAxis(xAxis).
		AddSeries("Best", best).
		AddSeries("Mean", mean)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func lineValue(v float64) opts.LineData {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return opts.LineData{Value: "-"}
	}
	return opts.LineData{Value: math.Round(v*1000) / 1000}
}
