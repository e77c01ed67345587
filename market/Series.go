// Package market provides the price series that market environments
// replay. Series can be read from a CSV file, from a SQL table, or
// generated synthetically.
package market

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// MinLength is the shortest series a market environment accepts
const MinLength = 2

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Series is a chronologically ordered sequence of prices
type Series struct {
	Name   string
	Prices []float64
}

// Len returns the number of prices in the series
func (s Series) Len() int {
	return len(s.Prices)
}

// Validate returns an error if the series cannot be traded on
func (s Series) Validate() error {
	if s.Len() < MinLength {
		return errors.Errorf("series %q has %d prices, need at least %d",
			s.Name, s.Len(), MinLength)
	}
	for i, p := range s.Prices {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return errors.Errorf("series %q has invalid price %v at %d",
				s.Name, p, i)
		}
	}
	return nil
}

// LogReturns returns log(p[t] / p[t-1]) for every t > 0. The first
// entry is 0 so that the result aligns with Prices.
func (s Series) LogReturns() []float64 {
	out := make([]float64, s.Len())
	for i := 1; i < s.Len(); i++ {
		out[i] = math.Log(s.Prices[i] / s.Prices[i-1])
	}
	return out
}

// Window returns prices [start, stop), clamped to the series
func (s Series) Window(start, stop int) []float64 {
	if start < 0 {
		start = 0
	}
	if stop > s.Len() {
		stop = s.Len()
	}
	if start >= stop {
		return nil
	}
	out := make([]float64, stop-start)
	copy(out, s.Prices[start:stop])
	return out
}

// LoadCSV reads the named column from a CSV file with a header row
func LoadCSV(path, column string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, errors.Wrap(err, "loadcsv")
	}
	defer f.Close()

	s, err := ReadCSV(f, column)
	if err != nil {
		return Series{}, errors.Wrapf(err, "loadcsv %s", path)
	}
	s.Name = path
	return s, nil
}

// ReadCSV reads the named column from CSV data with a header row. Rows
// with an empty value in the column are skipped.
func ReadCSV(r io.Reader, column string) (Series, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return Series{}, errors.Wrap(err, "could not read header")
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return Series{}, errors.Errorf("no column %q in header %v", column,
			header)
	}

	var prices []float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Series{}, errors.Wrapf(err, "line %d", line)
		}

		field := strings.TrimSpace(record[col])
		if field == "" {
			continue
		}
		p, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Series{}, errors.Wrapf(err, "line %d", line)
		}
		prices = append(prices, p)
	}

	s := Series{Name: column, Prices: prices}
	return s, s.Validate()
}

// LoadSQL reads a price column from a table in insertion order
func LoadSQL(ctx context.Context, db *sql.DB, table, column string) (Series,
	error) {
	if !identifier.MatchString(table) || !identifier.MatchString(column) {
		return Series{}, errors.Errorf("loadsql: invalid identifier %q.%q",
			table, column)
	}

	query := "SELECT " + column + " FROM " + table + " WHERE " + column +
		" IS NOT NULL ORDER BY rowid"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Series{}, errors.Wrap(err, "loadsql")
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return Series{}, errors.Wrap(err, "loadsql: scan")
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return Series{}, errors.Wrap(err, "loadsql")
	}

	s := Series{Name: table + "." + column, Prices: prices}
	return s, s.Validate()
}

// Synthetic generates n prices following geometric Brownian motion
// starting at start, with per-step drift and volatility.
func Synthetic(n int, start, drift, volatility float64, seed uint64) (Series,
	error) {
	if n < MinLength {
		return Series{}, errors.Errorf("synthetic: need at least %d prices",
			MinLength)
	}
	if start <= 0 || volatility < 0 {
		return Series{}, errors.New("synthetic: start must be positive and " +
			"volatility non-negative")
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}

	steps := make([]float64, n)
	for i := 1; i < n; i++ {
		steps[i] = drift - volatility*volatility/2 + volatility*normal.Rand()
	}
	floats.CumSum(steps, steps)

	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start * math.Exp(steps[i])
	}

	return Series{Name: "synthetic", Prices: prices}, nil
}
