package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
)

// WriteCSV emits one line per category followed by the overall row.
func WriteCSV(w io.Writer, rep Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Category", "Total Products", "Total Value", "Average Price"}); err != nil {
		return err
	}
	rows := append(append([]CategoryReport(nil), rep.Categories...), rep.Overall)
	for _, r := range rows {
		if err := writer.Write([]string{
			r.Category,
			strconv.Itoa(r.TotalProducts),
			r.TotalValue.StringFixed(2),
			r.AveragePrice.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type jsonRow struct {
	Category      string      `json:"category"`
	TotalProducts int         `json:"totalProducts"`
	TotalValue    json.Number `json:"totalValue"`
	AveragePrice  json.Number `json:"averagePrice"`
}

type jsonReport struct {
	Categories []jsonRow `json:"categories"`
	Overall    jsonRow   `json:"overall"`
}

func toJSONRow(r CategoryReport) jsonRow {
	return jsonRow{
		Category:      r.Category,
		TotalProducts: r.TotalProducts,
		TotalValue:    json.Number(r.TotalValue.StringFixed(2)),
		AveragePrice:  json.Number(r.AveragePrice.StringFixed(2)),
	}
}

// MarshalJSON encodes amounts as numbers rounded to cents.
func (r Report) MarshalJSON() ([]byte, error) {
	out := jsonReport{Categories: make([]jsonRow, 0, len(r.Categories)), Overall: toJSONRow(r.Overall)}
	for _, c := range r.Categories {
		out.Categories = append(out.Categories, toJSONRow(c))
	}
	return json.Marshal(out)
}
