package adapter

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/bitebase/catalog-cli/internal/model"
)

// Fixture is a file-backed adapter that replays normalized records from a
// YAML document. It drives the import command and gives tests a source with
// fully controlled data; it performs no network requests and checks no quota.
type Fixture struct {
	source  model.Source
	records []model.SourceRecord
}

// LoadFixture reads a YAML array of SourceRecord from the given path.
func LoadFixture(path string, source model.Source) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fixture: read file")
	}
	var records []model.SourceRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "fixture: unmarshal records")
	}
	return NewFixture(source, records), nil
}

// NewFixture wraps an in-memory record slice.
func NewFixture(source model.Source, records []model.SourceRecord) *Fixture {
	if source == "" {
		source = model.SourceFile
	}
	// Namespace ids that aren't already prefixed.
	for i := range records {
		if records[i].ExternalID != "" && records[i].ExternalID == model.RawExternalID(records[i].ExternalID) {
			records[i].ExternalID = model.PrefixExternalID(source, records[i].ExternalID)
		}
	}
	return &Fixture{source: source, records: records}
}

func (f *Fixture) Configured() bool { return len(f.records) > 0 }

func (f *Fixture) SourceName() model.Source { return f.source }

func (f *Fixture) RequestLimit() int { return 0 }

func (f *Fixture) SearchAllBusinesses(ctx context.Context, _ string, _ []string, limit int, fn Callback) (int, error) {
	total := effectiveTotal(len(f.records), limit)

	yielded := 0
	for _, rec := range f.records {
		if limit > 0 && yielded >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return yielded, err
		}
		yielded++
		if err := fn(rec, model.NewProgress(yielded, total)); err != nil {
			return yielded, err
		}
	}
	return yielded, nil
}

func (f *Fixture) GetBusiness(_ context.Context, rawExternalID string) (*model.SourceRecord, error) {
	want := model.PrefixExternalID(f.source, rawExternalID)
	for _, rec := range f.records {
		if rec.ExternalID == want {
			cp := rec
			return &cp, nil
		}
	}
	return nil, eris.Errorf("fixture: no record %q", rawExternalID)
}
