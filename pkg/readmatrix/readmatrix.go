// Package readmatrix reads and writes plain-text grids: whitespace
// separated matrices and ESRI ASCII grids. Missing samples are NaN in
// memory.
package readmatrix

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ReadMatrix reads a whitespace separated matrix from filename. Blank
// lines and lines starting with '#' are skipped, as is a non-numeric
// header line. "nan" and "NaN" fields are read as missing, as is any field
// equal to noData when noData is not NaN.
func ReadMatrix(filename string, noData float64) (*mat.Dense, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return parseMatrix(bufio.NewScanner(file), noData, true)
}

func parseMatrix(scanner *bufio.Scanner, noData float64, allowHeader bool) (*mat.Dense, error) {
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	var rows [][]float64
	headerChecked := !allowHeader

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		if !headerChecked {
			headerChecked = true
			if !allNumeric(fields) {
				continue
			}
		}

		row := make([]float64, len(fields))
		for i, field := range fields {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse float at line %d, column %d: %w",
					len(rows)+1, i+1, err)
			}
			row[i] = toMissing(val, noData)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := len(rows[0])
	flat := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("inconsistent number of columns: expected %d, got %d",
				cols, len(row))
		}
		flat = append(flat, row...)
	}
	return mat.NewDense(len(rows), cols, flat), nil
}

func allNumeric(fields []string) bool {
	for _, f := range fields {
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return false
		}
	}
	return true
}

func toMissing(v, noData float64) float64 {
	if !math.IsNaN(noData) && v == noData {
		return math.NaN()
	}
	return v
}

func fromMissing(v, noData float64) float64 {
	if math.IsNaN(v) {
		return noData
	}
	return v
}

// WriteMatrix writes m as tab separated rows, writing missing samples as
// noData.
func WriteMatrix(w io.Writer, m mat.Matrix, noData float64) error {
	bw := bufio.NewWriter(w)
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if j > 0 {
				bw.WriteByte('\t')
			}
			bw.WriteString(strconv.FormatFloat(fromMissing(m.At(i, j), noData), 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteMatrixFile writes m to filename with WriteMatrix.
func WriteMatrixFile(filename string, m mat.Matrix, noData float64) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteMatrix(f, m, noData); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
