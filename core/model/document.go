package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// DefaultMaxStdDev scales delays into productivity deviations when a
// document does not set max_stdev.
const DefaultMaxStdDev = 0.5

// FleetDoc describes a fleet in a problem document.
type FleetDoc struct {
	ID            int     `json:"id" yaml:"id"`
	MaxCapacity   float64 `json:"max_capacity" yaml:"max_capacity"`
	MaxVolume     float64 `json:"max_volume" yaml:"max_volume"`
	MinVolume     float64 `json:"min_volume" yaml:"min_volume"`
	MaxShare      float64 `json:"max_share" yaml:"max_share"`
	Cost          float64 `json:"cost" yaml:"cost"`
	GreenCapacity float64 `json:"green_capacity" yaml:"green_capacity"`
}

// PostcodeDoc describes a postcode and its per-fleet indicators. Slices are
// indexed like Document.Fleets.
type PostcodeDoc struct {
	ID           int       `json:"id" yaml:"id"`
	Demand       float64   `json:"demand" yaml:"demand"`
	Eligible     []int     `json:"eligible" yaml:"eligible"`
	Productivity []float64 `json:"productivity" yaml:"productivity"`
	Delay        []float64 `json:"delay" yaml:"delay"`
	SuccessRate  []float64 `json:"success_rate" yaml:"success_rate"`
}

// Document is the serialised form of an assignment instance. One document
// feeds both optimizers.
type Document struct {
	Fleets    []FleetDoc    `json:"fleets" yaml:"fleets"`
	Postcodes []PostcodeDoc `json:"postcodes" yaml:"postcodes"`
	MaxStdDev float64       `json:"max_stdev" yaml:"max_stdev"`
}

// LoadDocument reads a JSON or YAML problem document.
func LoadDocument(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = f.Close() }()
	return DecodeDocument(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

// DecodeDocument reads a document from r in the given format.
func DecodeDocument(r io.Reader, format string) (Document, error) {
	var doc Document
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return doc, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return doc, err
		}
	default:
		return doc, fmt.Errorf("unsupported format: %s", format)
	}
	return doc, nil
}

func (d Document) rows(name string, pick func(PostcodeDoc) []float64) (*mat.Dense, error) {
	nf := len(d.Fleets)
	m := mat.NewDense(len(d.Postcodes), nf, nil)
	for i, pc := range d.Postcodes {
		row := pick(pc)
		if len(row) != nf {
			return nil, fmt.Errorf("%w: postcode %d has %d %s values, want %d", ErrMalformedInput, pc.ID, len(row), name, nf)
		}
		m.SetRow(i, row)
	}
	return m, nil
}

func (d Document) eligibility() (*mat.Dense, error) {
	return d.rows("eligible", func(pc PostcodeDoc) []float64 {
		row := make([]float64, len(pc.Eligible))
		for i, v := range pc.Eligible {
			if v != 0 {
				row[i] = 1
			}
		}
		return row
	})
}

func (d Document) fleetColumn(pick func(FleetDoc) float64) []float64 {
	out := make([]float64, len(d.Fleets))
	for i, f := range d.Fleets {
		out[i] = pick(f)
	}
	return out
}

// Problem builds the multi-criteria Problem used by the constructive search.
func (d Document) Problem() (*Problem, error) {
	if len(d.Postcodes) == 0 || len(d.Fleets) == 0 {
		return nil, fmt.Errorf("%w: document has no postcodes or fleets", ErrMalformedInput)
	}
	elig, err := d.eligibility()
	if err != nil {
		return nil, err
	}
	prod, err := d.rows("productivity", func(pc PostcodeDoc) []float64 { return pc.Productivity })
	if err != nil {
		return nil, err
	}
	delay, err := d.rows("delay", func(pc PostcodeDoc) []float64 { return pc.Delay })
	if err != nil {
		return nil, err
	}
	success, err := d.rows("success_rate", func(pc PostcodeDoc) []float64 { return pc.SuccessRate })
	if err != nil {
		return nil, err
	}
	customers := make([]Customer, len(d.Postcodes))
	for i, pc := range d.Postcodes {
		customers[i] = Customer{ID: pc.ID, Demand: pc.Demand}
	}
	fleets := make([]Fleet, len(d.Fleets))
	for i, f := range d.Fleets {
		fleets[i] = Fleet{ID: f.ID, MaxCapacity: f.MaxCapacity, MaxVolume: f.MaxVolume, MinVolume: f.MinVolume, MaxShare: f.MaxShare}
	}
	return NewProblem(customers, fleets, elig, Metrics{
		Productivity:  prod,
		Delay:         delay,
		SuccessRate:   success,
		Cost:          d.fleetColumn(func(f FleetDoc) float64 { return f.Cost }),
		GreenCapacity: d.fleetColumn(func(f FleetDoc) float64 { return f.GreenCapacity }),
	})
}

// CostModel builds the cost-based model used by the genetic optimizer. The
// green capacity of a fleet acts as its discount cap and productivity
// deviations are the delays scaled by MaxStdDev.
func (d Document) CostModel() (*CostModel, error) {
	if len(d.Postcodes) == 0 || len(d.Fleets) == 0 {
		return nil, fmt.Errorf("%w: document has no postcodes or fleets", ErrMalformedInput)
	}
	elig, err := d.eligibility()
	if err != nil {
		return nil, err
	}
	prod, err := d.rows("productivity", func(pc PostcodeDoc) []float64 { return pc.Productivity })
	if err != nil {
		return nil, err
	}
	scale := d.MaxStdDev
	if scale == 0 {
		scale = DefaultMaxStdDev
	}
	stdev, err := d.rows("delay", func(pc PostcodeDoc) []float64 { return pc.Delay })
	if err != nil {
		return nil, err
	}
	stdev.Scale(scale, stdev)
	demand := make([]float64, len(d.Postcodes))
	for i, pc := range d.Postcodes {
		demand[i] = pc.Demand
	}
	return NewCostModel(CostData{
		Avail:    elig,
		Demand:   demand,
		Costs:    d.fleetColumn(func(f FleetDoc) float64 { return f.Cost }),
		MaxCap:   d.fleetColumn(func(f FleetDoc) float64 { return f.MaxCapacity }),
		MinCap:   d.fleetColumn(func(f FleetDoc) float64 { return f.MinVolume }),
		Discount: d.fleetColumn(func(f FleetDoc) float64 { return f.GreenCapacity }),
		Prods:    prod,
		StdDev:   stdev,
	})
}
