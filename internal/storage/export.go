package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/rflf/internal/dynamo"
)

type ExportData struct {
	Run     RunMetadata `json:"run"`
	Times   []float64   `json:"times"`
	States  [][]float64 `json:"states"`
	Samples int         `json:"samples"`
}

func ExportJSON(w io.Writer, meta RunMetadata, times []float64, states []dynamo.State) error {
	data := ExportData{
		Run:     meta,
		Times:   times,
		States:  make([][]float64, len(states)),
		Samples: len(times),
	}
	for i, s := range states {
		data.States[i] = s
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// WriteCSV writes a "time,s0,s1,..." table. Values use the shortest
// representation that parses back to the same float.
func WriteCSV(w io.Writer, times []float64, states []dynamo.State) error {
	cw := csv.NewWriter(w)

	if len(states) > 0 {
		header := []string{"time"}
		for i := range states[0] {
			header = append(header, fmt.Sprintf("s%d", i))
		}
		if err := cw.Write(header); err != nil {
			return err
		}
	}

	for i := range states {
		row := []string{strconv.FormatFloat(times[i], 'g', -1, 64)}
		for _, val := range states[i] {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
