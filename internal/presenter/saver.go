package presenter

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/mat"

	"glaciersmooth/pkg/stats"
)

// SaveDenseToCSV writes m row by row. Missing cells are written empty.
func SaveDenseToCSV(m mat.Matrix, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	rows, cols := m.Dims()
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) {
				record[j] = ""
				continue
			}
			record[j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

// KernelSample is one row of a sampled kernel shape.
type KernelSample struct {
	Kernel string  `csv:"kernel"`
	Sigma  float64 `csv:"sigma"`
	Offset float64 `csv:"offset"`
	Weight float64 `csv:"weight"`
}

// SaveKernelSamples writes kernel samples with a header row.
func SaveKernelSamples(samples []KernelSample, filename string) error {
	return marshalFile(&samples, filename)
}

// SaveComparisons writes comparison metrics with a header row.
func SaveComparisons(c []stats.Comparison, filename string) error {
	return marshalFile(&c, filename)
}

// SaveSummaries writes grid summaries with a header row.
func SaveSummaries(s []stats.Summary, filename string) error {
	return marshalFile(&s, filename)
}

func marshalFile(records interface{}, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := gocsv.MarshalFile(records, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
