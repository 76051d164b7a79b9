package moex

import "fmt"

// issTable is the column-oriented block the ISS API wraps every dataset in:
// a list of column names plus rows of loosely-typed cells.
type issTable struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

func (t issTable) columnIndex() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		idx[name] = i
	}

	return idx
}

type candlesResponse struct {
	Candles issTable `json:"candles"`
}

type securitiesResponse struct {
	Securities issTable `json:"securities"`
}

func cellFloat(row []interface{}, idx int) (float64, error) {
	if idx < 0 || idx >= len(row) {
		return 0, fmt.Errorf("cellFloat: column index %d out of range", idx)
	}

	v, ok := row[idx].(float64)
	if !ok {
		return 0, fmt.Errorf("cellFloat: expected number, got %T", row[idx])
	}

	return v, nil
}

func cellString(row []interface{}, idx int) (string, error) {
	if idx < 0 || idx >= len(row) {
		return "", fmt.Errorf("cellString: column index %d out of range", idx)
	}

	v, ok := row[idx].(string)
	if !ok {
		return "", fmt.Errorf("cellString: expected string, got %T", row[idx])
	}

	return v, nil
}
