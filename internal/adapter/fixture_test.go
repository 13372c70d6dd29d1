package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/bitebase/catalog-cli/internal/model"
)

func TestFixturePrefixesRawIDs(t *testing.T) {
	f := NewFixture(model.SourceFile, []model.SourceRecord{
		{ExternalID: "raw-1", Name: "A"},
		{ExternalID: "file:already", Name: "B"},
	})

	rec, err := f.GetBusiness(context.Background(), "raw-1")
	require.NoError(t, err)
	assert.Equal(t, "file:raw-1", rec.ExternalID)

	rec, err = f.GetBusiness(context.Background(), "already")
	require.NoError(t, err)
	assert.Equal(t, "file:already", rec.ExternalID)
}

func TestFixtureSearchHonorsLimit(t *testing.T) {
	records := make([]model.SourceRecord, 10)
	for i := range records {
		records[i] = model.SourceRecord{ExternalID: "id", Name: "R"}
	}
	f := NewFixture(model.SourceFile, records)

	var seen int
	n, err := f.SearchAllBusinesses(context.Background(), "anywhere", nil, 4, func(_ model.SourceRecord, p model.Progress) error {
		seen++
		assert.Equal(t, 4, p.Total)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, seen)
}

func TestLoadFixtureYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	doc := `
- external_id: r1
  name: Joe's Pizza
  address: 7 Carmine St
  latitude: 40.7305
  longitude: -74.0021
  phone: "+12125550199"
  rating: 4.5
  review_count: 812
  categories: [pizza, italian]
- external_id: r2
  name: Sushi Palace
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	f, err := LoadFixture(path, model.SourceFile)
	require.NoError(t, err)
	require.True(t, f.Configured())

	rec, err := f.GetBusiness(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "file:r1", rec.ExternalID)
	assert.Equal(t, "Joe's Pizza", rec.Name)
	require.NotNil(t, rec.Latitude)
	assert.InDelta(t, 40.7305, *rec.Latitude, 1e-9)
	assert.Equal(t, []string{"pizza", "italian"}, rec.Categories)
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.xlsx")

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("restaurants")
	require.NoError(t, err)

	header := sheet.AddRow()
	for _, col := range []string{"external_id", "name", "address", "latitude", "longitude", "phone", "rating", "review_count", "categories", "photos"} {
		header.AddCell().SetString(col)
	}
	row := sheet.AddRow()
	for _, v := range []string{"x1", "Tim Hortons", "290 Bremner Blvd", "43.6426", "-79.3871", "+14165550123", "3.9", "420", "coffee, donuts", "https://img.example/a.jpg"} {
		row.AddCell().SetString(v)
	}
	blank := sheet.AddRow()
	blank.AddCell().SetString("")
	require.NoError(t, wb.Save(path))

	f, err := LoadXLSX(path, model.SourceFile)
	require.NoError(t, err)

	rec, err := f.GetBusiness(context.Background(), "x1")
	require.NoError(t, err)
	assert.Equal(t, "file:x1", rec.ExternalID)
	assert.Equal(t, "Tim Hortons", rec.Name)
	require.NotNil(t, rec.Longitude)
	assert.InDelta(t, -79.3871, *rec.Longitude, 1e-9)
	require.NotNil(t, rec.Rating)
	assert.InDelta(t, 3.9, *rec.Rating, 1e-9)
	assert.Equal(t, 420, rec.ReviewCount)
	assert.Equal(t, []string{"coffee", "donuts"}, rec.Categories)
	assert.Equal(t, []string{"https://img.example/a.jpg"}, rec.Photos)

	// Blank rows are skipped, not errors.
	n, err := f.SearchAllBusinesses(context.Background(), "", nil, 0, func(model.SourceRecord, model.Progress) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadXLSXRejectsMissingNameColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xlsx")

	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("restaurants")
	require.NoError(t, err)
	sheet.AddRow().AddCell().SetString("external_id")
	sheet.AddRow().AddCell().SetString("x1")
	require.NoError(t, wb.Save(path))

	_, err = LoadXLSX(path, model.SourceFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name column")
}

func TestRegistryConfigured(t *testing.T) {
	r := NewRegistry()
	_, err := r.Configured()
	assert.ErrorIs(t, err, ErrNoAdapters)

	r.Register(NewFixture(model.SourceFile, nil)) // no records, not configured
	_, err = r.Configured()
	assert.ErrorIs(t, err, ErrNoAdapters)

	r.Register(NewFixture(model.SourceYelp, []model.SourceRecord{{ExternalID: "a", Name: "A"}}))
	got, err := r.Configured()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.SourceYelp, got[0].SourceName())
}

func TestRegistryBySource(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFixture(model.SourceYelp, nil))

	a, err := r.BySource(model.SourceYelp)
	require.NoError(t, err)
	assert.Equal(t, model.SourceYelp, a.SourceName())

	_, err = r.BySource(model.SourceGoogle)
	assert.Error(t, err)
}
