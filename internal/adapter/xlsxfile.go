package adapter

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/bitebase/catalog-cli/internal/model"
)

// xlsxColumns maps header names (case-insensitive) to SourceRecord fields.
// Expected columns: external_id, name, address, latitude, longitude, phone,
// rating, review_count, categories (comma separated), photos (comma
// separated). Missing columns leave fields zero.
var xlsxColumns = []string{
	"external_id", "name", "address", "latitude", "longitude",
	"phone", "rating", "review_count", "categories", "photos",
}

// LoadXLSX reads normalized records from the first sheet of a spreadsheet
// and wraps them in a Fixture adapter so the import command can feed them
// through the regular ingestion pipeline.
func LoadXLSX(path string, source model.Source) (*Fixture, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) < 2 {
		return nil, eris.New("xlsx: sheet has no data rows")
	}

	idx := headerIndex(sheet.Rows[0])
	if _, ok := idx["name"]; !ok {
		return nil, eris.New("xlsx: header row must contain a name column")
	}

	var records []model.SourceRecord
	for rowNum, row := range sheet.Rows[1:] {
		rec, err := recordFromRow(row, idx)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", rowNum+2)
		}
		if rec.Name == "" {
			continue // blank row
		}
		records = append(records, rec)
	}

	return NewFixture(source, records), nil
}

func headerIndex(row *xlsx.Row) map[string]int {
	idx := make(map[string]int)
	for i, cell := range row.Cells {
		name := strings.ToLower(strings.TrimSpace(cell.String()))
		for _, col := range xlsxColumns {
			if name == col {
				idx[col] = i
			}
		}
	}
	return idx
}

func recordFromRow(row *xlsx.Row, idx map[string]int) (model.SourceRecord, error) {
	cell := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i].String())
	}

	rec := model.SourceRecord{
		ExternalID: cell("external_id"),
		Name:       cell("name"),
		Address:    cell("address"),
		Phone:      cell("phone"),
	}

	if v := cell("latitude"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, eris.Wrap(err, "parse latitude")
		}
		rec.Latitude = &lat
	}
	if v := cell("longitude"); v != "" {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, eris.Wrap(err, "parse longitude")
		}
		rec.Longitude = &lon
	}
	if v := cell("rating"); v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, eris.Wrap(err, "parse rating")
		}
		rec.Rating = &rating
	}
	if v := cell("review_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return rec, eris.Wrap(err, "parse review_count")
		}
		rec.ReviewCount = n
	}
	rec.Categories = splitList(cell("categories"))
	rec.Photos = splitList(cell("photos"))

	return rec, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
