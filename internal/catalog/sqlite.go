package catalog

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/bitebase/catalog-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Writes are
// serialized through a mutex so two adapters never race a create/update/merge
// decision for the same real-world restaurant.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode with foreign keys enforced (the sweep relies on cascading deletes).
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per-connection; a single pooled connection keeps
	// foreign_keys in force everywhere.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle so the quota ledger can share the file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	latitude   REAL,
	longitude  REAL,
	phone      TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS external_ids (
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	source        TEXT NOT NULL,
	external_id   TEXT NOT NULL,
	UNIQUE (source, external_id)
);

CREATE TABLE IF NOT EXISTS ratings (
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	source        TEXT NOT NULL,
	score         REAL NOT NULL,
	review_count  INTEGER NOT NULL DEFAULT 0,
	fetched_at    DATETIME NOT NULL,
	UNIQUE (restaurant_id, source)
);

CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS restaurant_categories (
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	category_id   INTEGER NOT NULL REFERENCES categories(id),
	UNIQUE (restaurant_id, category_id)
);

CREATE TABLE IF NOT EXISTS media (
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	source        TEXT NOT NULL,
	media_type    TEXT NOT NULL,
	url           TEXT NOT NULL,
	fetched_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	source        TEXT NOT NULL,
	author        TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	fetched_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_restaurants_coords ON restaurants(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_restaurants_name ON restaurants(name);
CREATE INDEX IF NOT EXISTS idx_restaurants_location ON restaurants(location);
CREATE INDEX IF NOT EXISTS idx_external_ids_restaurant ON external_ids(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_media_triple ON media(restaurant_id, source, media_type);
CREATE INDEX IF NOT EXISTS idx_reviews_restaurant ON reviews(restaurant_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const restaurantCols = `id, name, address, latitude, longitude, phone, location, created_at, updated_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+restaurantCols+` FROM restaurants WHERE id = ?`, id)
	r, err := scanRestaurant(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) FindByExternalID(ctx context.Context, source model.Source, externalID string) (*model.Restaurant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+restaurantCols+` FROM restaurants
		 WHERE id = (SELECT restaurant_id FROM external_ids WHERE source = ? AND external_id = ?)`,
		string(source), externalID)
	r, err := scanRestaurant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// FindCandidatesNear returns restaurants inside a ±delta degree box, ordered
// by creation time so the matcher's first-seen tie-break is deterministic.
func (s *SQLiteStore) FindCandidatesNear(ctx context.Context, lat, lon, delta float64) ([]*model.Restaurant, error) {
	box := BoxAround(lat, lon, delta)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+restaurantCols+` FROM restaurants
		 WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		 ORDER BY created_at, id`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: candidates near")
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

func (s *SQLiteStore) Create(ctx context.Context, r *model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO restaurants (id, name, address, latitude, longitude, phone, location, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Address, r.Latitude, r.Longitude, r.Phone, r.Location, r.CreatedAt, r.UpdatedAt)
	return eris.Wrap(err, "sqlite: insert restaurant")
}

func (s *SQLiteStore) Update(ctx context.Context, r *model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET name = ?, address = ?, latitude = ?, longitude = ?, phone = ?, location = ?, updated_at = ?
		 WHERE id = ?`,
		r.Name, r.Address, r.Latitude, r.Longitude, r.Phone, r.Location, r.UpdatedAt, r.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update restaurant %s", r.ID)
	}
	return checkRowsAffected(res, r.ID)
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, patch model.FieldPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Address != nil {
		sets = append(sets, "address = ?")
		args = append(args, *patch.Address)
	}
	if patch.Latitude != nil {
		sets = append(sets, "latitude = ?")
		args = append(args, *patch.Latitude)
	}
	if patch.Longitude != nil {
		sets = append(sets, "longitude = ?")
		args = append(args, *patch.Longitude)
	}
	if patch.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *patch.Phone)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update fields %s", id)
	}
	return checkRowsAffected(res, id)
}

// SaveExternalID is idempotent: a duplicate (source, external_id) insert is a
// benign no-op, not an error.
func (s *SQLiteStore) SaveExternalID(ctx context.Context, restaurantID string, source model.Source, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO external_ids (restaurant_id, source, external_id) VALUES (?, ?, ?)`,
		restaurantID, string(source), externalID)
	return eris.Wrap(err, "sqlite: save external id")
}

func (s *SQLiteStore) ExternalIDs(ctx context.Context, restaurantID string) ([]model.ExternalID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT restaurant_id, source, external_id FROM external_ids WHERE restaurant_id = ? ORDER BY source`,
		restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: external ids")
	}
	defer rows.Close()

	var ids []model.ExternalID
	for rows.Next() {
		var e model.ExternalID
		if err := rows.Scan(&e.RestaurantID, &e.Source, &e.ExternalID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan external id")
		}
		ids = append(ids, e)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: external ids iterate")
}

// UpsertRating keeps the latest observation per (restaurant, source).
func (s *SQLiteStore) UpsertRating(ctx context.Context, restaurantID string, source model.Source, score float64, reviewCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ratings (restaurant_id, source, score, review_count, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (restaurant_id, source)
		 DO UPDATE SET score = excluded.score, review_count = excluded.review_count, fetched_at = excluded.fetched_at`,
		restaurantID, string(source), score, reviewCount, time.Now().UTC())
	return eris.Wrap(err, "sqlite: upsert rating")
}

func (s *SQLiteStore) Ratings(ctx context.Context, restaurantID string) ([]model.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT restaurant_id, source, score, review_count, fetched_at FROM ratings
		 WHERE restaurant_id = ? ORDER BY source`,
		restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: ratings")
	}
	defer rows.Close()

	var ratings []model.Rating
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(&r.RestaurantID, &r.Source, &r.Score, &r.ReviewCount, &r.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rating")
		}
		ratings = append(ratings, r)
	}
	return ratings, eris.Wrap(rows.Err(), "sqlite: ratings iterate")
}

// ReplaceMedia swaps the full URL set for (restaurant, source, type) in one
// transaction. Media is not additive across runs from the same source.
func (s *SQLiteStore) ReplaceMedia(ctx context.Context, restaurantID string, source model.Source, mediaType model.MediaType, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace media")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`DELETE FROM media WHERE restaurant_id = ? AND source = ? AND media_type = ?`,
		restaurantID, string(source), string(mediaType))
	if err != nil {
		return eris.Wrap(err, "sqlite: delete media")
	}

	now := time.Now().UTC()
	for _, u := range urls {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO media (restaurant_id, source, media_type, url, fetched_at) VALUES (?, ?, ?, ?, ?)`,
			restaurantID, string(source), string(mediaType), u, now)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert media")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace media")
}

func (s *SQLiteStore) MediaCount(ctx context.Context, restaurantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media WHERE restaurant_id = ?`, restaurantID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: media count")
}

// LinkCategories creates missing category rows and links them idempotently.
func (s *SQLiteStore) LinkCategories(ctx context.Context, restaurantID string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin link categories")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (name) VALUES (?)`, name); err != nil {
			return eris.Wrap(err, "sqlite: insert category")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO restaurant_categories (restaurant_id, category_id)
			 SELECT ?, id FROM categories WHERE name = ?`,
			restaurantID, name); err != nil {
			return eris.Wrap(err, "sqlite: link category")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit link categories")
}

func (s *SQLiteStore) Categories(ctx context.Context, restaurantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name FROM categories c
		 JOIN restaurant_categories rc ON rc.category_id = c.id
		 WHERE rc.restaurant_id = ? ORDER BY c.name`,
		restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: categories")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: categories iterate")
}

func (s *SQLiteStore) AllIndexedLocations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT location FROM restaurants WHERE location != '' ORDER BY location`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: locations")
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		locations = append(locations, l)
	}
	return locations, eris.Wrap(rows.Err(), "sqlite: locations iterate")
}

// SearchRows returns every restaurant (optionally filtered by location label)
// with its category names and rating aggregates. The search engine scores
// and ranks these in application code; SQLite has no registered similarity
// function to push the fuzzy predicate into the query.
func (s *SQLiteStore) SearchRows(ctx context.Context, location string) ([]SearchRow, error) {
	query := `
		SELECT r.id, r.name, r.address, r.latitude, r.longitude, r.phone, r.location, r.created_at, r.updated_at,
		       COALESCE((SELECT GROUP_CONCAT(c.name, '|') FROM categories c
		                 JOIN restaurant_categories rc ON rc.category_id = c.id
		                 WHERE rc.restaurant_id = r.id), ''),
		       (SELECT AVG(score) FROM ratings WHERE restaurant_id = r.id),
		       COALESCE((SELECT SUM(review_count) FROM ratings WHERE restaurant_id = r.id), 0)
		FROM restaurants r`
	var args []any
	if location != "" {
		query += ` WHERE r.location = ?`
		args = append(args, location)
	}
	query += ` ORDER BY r.name, r.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search rows")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var sr SearchRow
		var cats string
		var avg sql.NullFloat64
		err := rows.Scan(
			&sr.Restaurant.ID, &sr.Restaurant.Name, &sr.Restaurant.Address,
			&sr.Restaurant.Latitude, &sr.Restaurant.Longitude, &sr.Restaurant.Phone,
			&sr.Restaurant.Location, &sr.Restaurant.CreatedAt, &sr.Restaurant.UpdatedAt,
			&cats, &avg, &sr.TotalReviews,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search row")
		}
		if cats != "" {
			sr.Categories = strings.Split(cats, "|")
		}
		if avg.Valid {
			sr.AvgRating = &avg.Float64
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: search rows iterate")
}

// SoleSourceRestaurants returns restaurants whose external ids all come from
// the given source. These are the sweep's duplicate suspects.
func (s *SQLiteStore) SoleSourceRestaurants(ctx context.Context, source model.Source) ([]*model.Restaurant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+restaurantCols+` FROM restaurants r
		 WHERE EXISTS (SELECT 1 FROM external_ids e WHERE e.restaurant_id = r.id AND e.source = ?)
		   AND NOT EXISTS (SELECT 1 FROM external_ids e WHERE e.restaurant_id = r.id AND e.source != ?)
		 ORDER BY r.created_at, r.id`,
		string(source), string(source))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sole source restaurants")
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

// AttestedCandidates returns restaurants holding at least one external id
// from a source other than excludeSource. A non-empty namePrefix narrows the
// scan via the name index; a box narrows it spatially.
func (s *SQLiteStore) AttestedCandidates(ctx context.Context, excludeSource model.Source, namePrefix string, box *BoundingBox) ([]*model.Restaurant, error) {
	query := `SELECT DISTINCT ` + restaurantCols + ` FROM restaurants r
		 JOIN external_ids e ON e.restaurant_id = r.id AND e.source != ?`
	args := []any{string(excludeSource)}

	var conds []string
	if namePrefix != "" {
		conds = append(conds, `r.name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(namePrefix)+"%")
	}
	if box != nil {
		conds = append(conds, `r.latitude BETWEEN ? AND ? AND r.longitude BETWEEN ? AND ?`)
		args = append(args, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: attested candidates")
	}
	defer rows.Close()
	return collectRestaurants(rows)
}

// MergeRestaurants absorbs duplicateID into targetID in one transaction:
// external ids move wholesale, ratings move only for sources the target
// lacks, reviews and media move unless the target already holds the URL,
// category links are added idempotently, the target's null coordinates and
// empty phone are backfilled, then the duplicate row is deleted (cascades
// clean whatever stayed behind).
func (s *SQLiteStore) MergeRestaurants(ctx context.Context, duplicateID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	steps := []struct {
		desc string
		sql  string
		args []any
	}{
		{"move external ids",
			`UPDATE external_ids SET restaurant_id = ? WHERE restaurant_id = ?`,
			[]any{targetID, duplicateID}},
		{"move ratings",
			`UPDATE ratings SET restaurant_id = ? WHERE restaurant_id = ?
			 AND source NOT IN (SELECT source FROM ratings WHERE restaurant_id = ?)`,
			[]any{targetID, duplicateID, targetID}},
		{"move reviews",
			`UPDATE reviews SET restaurant_id = ? WHERE restaurant_id = ?
			 AND (url = '' OR url NOT IN (SELECT url FROM reviews WHERE restaurant_id = ?))`,
			[]any{targetID, duplicateID, targetID}},
		{"move media",
			`UPDATE media SET restaurant_id = ? WHERE restaurant_id = ?
			 AND url NOT IN (SELECT url FROM media WHERE restaurant_id = ?)`,
			[]any{targetID, duplicateID, targetID}},
		{"copy category links",
			`INSERT OR IGNORE INTO restaurant_categories (restaurant_id, category_id)
			 SELECT ?, category_id FROM restaurant_categories WHERE restaurant_id = ?`,
			[]any{targetID, duplicateID}},
		{"backfill fields",
			`UPDATE restaurants SET
				latitude  = COALESCE(latitude,  (SELECT latitude  FROM restaurants WHERE id = ?)),
				longitude = COALESCE(longitude, (SELECT longitude FROM restaurants WHERE id = ?)),
				phone     = CASE WHEN phone = '' THEN (SELECT phone FROM restaurants WHERE id = ?) ELSE phone END,
				updated_at = ?
			 WHERE id = ?`,
			[]any{duplicateID, duplicateID, duplicateID, time.Now().UTC(), targetID}},
		{"delete duplicate",
			`DELETE FROM restaurants WHERE id = ?`,
			[]any{duplicateID}},
	}
	for _, st := range steps {
		if _, err := tx.ExecContext(ctx, st.sql, st.args...); err != nil {
			return eris.Wrapf(err, "sqlite: merge %s", st.desc)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

// helpers

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRestaurant(row scannable) (*model.Restaurant, error) {
	var r model.Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Address, &r.Latitude, &r.Longitude,
		&r.Phone, &r.Location, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan restaurant")
	}
	return &r, nil
}

func collectRestaurants(rows *sql.Rows) ([]*model.Restaurant, error) {
	var out []*model.Restaurant
	for rows.Next() {
		r, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: restaurants iterate")
}
