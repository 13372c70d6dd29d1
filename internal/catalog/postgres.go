package catalog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. Writer serialization relies
// on per-restaurant transactions instead of a process-wide mutex.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying pool so the quota ledger can share it.
func (s *PostgresStore) Pool() PgxPool { return s.pool }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS restaurants (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	phone      TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
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
	score         DOUBLE PRECISION NOT NULL,
	review_count  INTEGER NOT NULL DEFAULT 0,
	fetched_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (restaurant_id, source)
);

CREATE TABLE IF NOT EXISTS categories (
	id   SERIAL PRIMARY KEY,
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
	fetched_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
	restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
	source        TEXT NOT NULL,
	author        TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	fetched_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_restaurants_coords ON restaurants(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_restaurants_name ON restaurants(name);
CREATE INDEX IF NOT EXISTS idx_restaurants_location ON restaurants(location);
CREATE INDEX IF NOT EXISTS idx_external_ids_restaurant ON external_ids(restaurant_id);
CREATE INDEX IF NOT EXISTS idx_media_triple ON media(restaurant_id, source, media_type);
CREATE INDEX IF NOT EXISTS idx_reviews_restaurant ON reviews(restaurant_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgRestaurantCols = `id, name, address, latitude, longitude, phone, location, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Restaurant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRestaurantCols+` FROM restaurants WHERE id = $1`, id)
	r, err := pgScanRestaurant(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, source model.Source, externalID string) (*model.Restaurant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRestaurantCols+` FROM restaurants
		 WHERE id = (SELECT restaurant_id FROM external_ids WHERE source = $1 AND external_id = $2)`,
		string(source), externalID)
	r, err := pgScanRestaurant(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) FindCandidatesNear(ctx context.Context, lat, lon, delta float64) ([]*model.Restaurant, error) {
	box := BoxAround(lat, lon, delta)
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRestaurantCols+` FROM restaurants
		 WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
		 ORDER BY created_at, id`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: candidates near")
	}
	defer rows.Close()
	return pgCollectRestaurants(rows)
}

func (s *PostgresStore) Create(ctx context.Context, r *model.Restaurant) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO restaurants (id, name, address, latitude, longitude, phone, location, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Name, r.Address, r.Latitude, r.Longitude, r.Phone, r.Location, r.CreatedAt, r.UpdatedAt)
	return eris.Wrap(err, "postgres: insert restaurant")
}

func (s *PostgresStore) Update(ctx context.Context, r *model.Restaurant) error {
	r.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET name = $1, address = $2, latitude = $3, longitude = $4, phone = $5, location = $6, updated_at = $7
		 WHERE id = $8`,
		r.Name, r.Address, r.Latitude, r.Longitude, r.Phone, r.Location, r.UpdatedAt, r.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update restaurant %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", r.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateFields(ctx context.Context, id string, patch model.FieldPatch) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+itoa(len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Address != nil {
		add("address", *patch.Address)
	}
	if patch.Latitude != nil {
		add("latitude", *patch.Latitude)
	}
	if patch.Longitude != nil {
		add("longitude", *patch.Longitude)
	}
	if patch.Phone != nil {
		add("phone", *patch.Phone)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE restaurants SET `+strings.Join(sets, ", ")+` WHERE id = $`+itoa(len(args)),
		args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update fields %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveExternalID(ctx context.Context, restaurantID string, source model.Source, externalID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO external_ids (restaurant_id, source, external_id) VALUES ($1, $2, $3)
		 ON CONFLICT (source, external_id) DO NOTHING`,
		restaurantID, string(source), externalID)
	return eris.Wrap(err, "postgres: save external id")
}

func (s *PostgresStore) ExternalIDs(ctx context.Context, restaurantID string) ([]model.ExternalID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT restaurant_id, source, external_id FROM external_ids WHERE restaurant_id = $1 ORDER BY source`,
		restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: external ids")
	}
	defer rows.Close()

	var ids []model.ExternalID
	for rows.Next() {
		var e model.ExternalID
		if err := rows.Scan(&e.RestaurantID, &e.Source, &e.ExternalID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan external id")
		}
		ids = append(ids, e)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: external ids iterate")
}

func (s *PostgresStore) UpsertRating(ctx context.Context, restaurantID string, source model.Source, score float64, reviewCount int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ratings (restaurant_id, source, score, review_count, fetched_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (restaurant_id, source)
		 DO UPDATE SET score = EXCLUDED.score, review_count = EXCLUDED.review_count, fetched_at = EXCLUDED.fetched_at`,
		restaurantID, string(source), score, reviewCount, time.Now().UTC())
	return eris.Wrap(err, "postgres: upsert rating")
}

func (s *PostgresStore) Ratings(ctx context.Context, restaurantID string) ([]model.Rating, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT restaurant_id, source, score, review_count, fetched_at FROM ratings
		 WHERE restaurant_id = $1 ORDER BY source`,
		restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: ratings")
	}
	defer rows.Close()

	var ratings []model.Rating
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(&r.RestaurantID, &r.Source, &r.Score, &r.ReviewCount, &r.FetchedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rating")
		}
		ratings = append(ratings, r)
	}
	return ratings, eris.Wrap(rows.Err(), "postgres: ratings iterate")
}

func (s *PostgresStore) ReplaceMedia(ctx context.Context, restaurantID string, source model.Source, mediaType model.MediaType, urls []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace media")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`DELETE FROM media WHERE restaurant_id = $1 AND source = $2 AND media_type = $3`,
		restaurantID, string(source), string(mediaType))
	if err != nil {
		return eris.Wrap(err, "postgres: delete media")
	}

	now := time.Now().UTC()
	for _, u := range urls {
		_, err = tx.Exec(ctx,
			`INSERT INTO media (restaurant_id, source, media_type, url, fetched_at) VALUES ($1, $2, $3, $4, $5)`,
			restaurantID, string(source), string(mediaType), u, now)
		if err != nil {
			return eris.Wrap(err, "postgres: insert media")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace media")
}

func (s *PostgresStore) MediaCount(ctx context.Context, restaurantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM media WHERE restaurant_id = $1`, restaurantID).Scan(&n)
	return n, eris.Wrap(err, "postgres: media count")
}

func (s *PostgresStore) LinkCategories(ctx context.Context, restaurantID string, names []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin link categories")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO categories (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return eris.Wrap(err, "postgres: insert category")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO restaurant_categories (restaurant_id, category_id)
			 SELECT $1, id FROM categories WHERE name = $2
			 ON CONFLICT (restaurant_id, category_id) DO NOTHING`,
			restaurantID, name); err != nil {
			return eris.Wrap(err, "postgres: link category")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit link categories")
}

func (s *PostgresStore) Categories(ctx context.Context, restaurantID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.name FROM categories c
		 JOIN restaurant_categories rc ON rc.category_id = c.id
		 WHERE rc.restaurant_id = $1 ORDER BY c.name`,
		restaurantID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: categories")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "postgres: categories iterate")
}

func (s *PostgresStore) AllIndexedLocations(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT location FROM restaurants WHERE location != '' ORDER BY location`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: locations")
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		locations = append(locations, l)
	}
	return locations, eris.Wrap(rows.Err(), "postgres: locations iterate")
}

func (s *PostgresStore) SearchRows(ctx context.Context, location string) ([]SearchRow, error) {
	query := `
		SELECT r.id, r.name, r.address, r.latitude, r.longitude, r.phone, r.location, r.created_at, r.updated_at,
		       COALESCE((SELECT STRING_AGG(c.name, '|' ORDER BY c.name) FROM categories c
		                 JOIN restaurant_categories rc ON rc.category_id = c.id
		                 WHERE rc.restaurant_id = r.id), ''),
		       (SELECT AVG(score) FROM ratings WHERE restaurant_id = r.id),
		       COALESCE((SELECT SUM(review_count) FROM ratings WHERE restaurant_id = r.id), 0)
		FROM restaurants r`
	var args []any
	if location != "" {
		query += ` WHERE r.location = $1`
		args = append(args, location)
	}
	query += ` ORDER BY r.name, r.id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search rows")
	}
	defer rows.Close()

	var out []SearchRow
	for rows.Next() {
		var sr SearchRow
		var cats string
		var avg *float64
		err := rows.Scan(
			&sr.Restaurant.ID, &sr.Restaurant.Name, &sr.Restaurant.Address,
			&sr.Restaurant.Latitude, &sr.Restaurant.Longitude, &sr.Restaurant.Phone,
			&sr.Restaurant.Location, &sr.Restaurant.CreatedAt, &sr.Restaurant.UpdatedAt,
			&cats, &avg, &sr.TotalReviews,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan search row")
		}
		if cats != "" {
			sr.Categories = strings.Split(cats, "|")
		}
		sr.AvgRating = avg
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search rows iterate")
}

func (s *PostgresStore) SoleSourceRestaurants(ctx context.Context, source model.Source) ([]*model.Restaurant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRestaurantCols+` FROM restaurants r
		 WHERE EXISTS (SELECT 1 FROM external_ids e WHERE e.restaurant_id = r.id AND e.source = $1)
		   AND NOT EXISTS (SELECT 1 FROM external_ids e WHERE e.restaurant_id = r.id AND e.source != $1)
		 ORDER BY r.created_at, r.id`,
		string(source))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sole source restaurants")
	}
	defer rows.Close()
	return pgCollectRestaurants(rows)
}

func (s *PostgresStore) AttestedCandidates(ctx context.Context, excludeSource model.Source, namePrefix string, box *BoundingBox) ([]*model.Restaurant, error) {
	query := `SELECT DISTINCT ` + pgRestaurantCols + ` FROM restaurants r
		 JOIN external_ids e ON e.restaurant_id = r.id AND e.source != $1`
	args := []any{string(excludeSource)}

	var conds []string
	if namePrefix != "" {
		args = append(args, escapeLike(namePrefix)+"%")
		conds = append(conds, `r.name ILIKE $`+itoa(len(args)))
	}
	if box != nil {
		args = append(args, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
		n := len(args)
		conds = append(conds,
			`r.latitude BETWEEN $`+itoa(n-3)+` AND $`+itoa(n-2)+
				` AND r.longitude BETWEEN $`+itoa(n-1)+` AND $`+itoa(n))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: attested candidates")
	}
	defer rows.Close()
	return pgCollectRestaurants(rows)
}

func (s *PostgresStore) MergeRestaurants(ctx context.Context, duplicateID, targetID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	steps := []struct {
		desc string
		sql  string
		args []any
	}{
		{"move external ids",
			`UPDATE external_ids SET restaurant_id = $1 WHERE restaurant_id = $2`,
			[]any{targetID, duplicateID}},
		{"move ratings",
			`UPDATE ratings SET restaurant_id = $1 WHERE restaurant_id = $2
			 AND source NOT IN (SELECT source FROM ratings WHERE restaurant_id = $1)`,
			[]any{targetID, duplicateID}},
		{"move reviews",
			`UPDATE reviews SET restaurant_id = $1 WHERE restaurant_id = $2
			 AND (url = '' OR url NOT IN (SELECT url FROM reviews WHERE restaurant_id = $1))`,
			[]any{targetID, duplicateID}},
		{"move media",
			`UPDATE media SET restaurant_id = $1 WHERE restaurant_id = $2
			 AND url NOT IN (SELECT url FROM media WHERE restaurant_id = $1)`,
			[]any{targetID, duplicateID}},
		{"copy category links",
			`INSERT INTO restaurant_categories (restaurant_id, category_id)
			 SELECT $1, category_id FROM restaurant_categories WHERE restaurant_id = $2
			 ON CONFLICT (restaurant_id, category_id) DO NOTHING`,
			[]any{targetID, duplicateID}},
		{"backfill fields",
			`UPDATE restaurants SET
				latitude  = COALESCE(latitude,  (SELECT latitude  FROM restaurants WHERE id = $2)),
				longitude = COALESCE(longitude, (SELECT longitude FROM restaurants WHERE id = $2)),
				phone     = CASE WHEN phone = '' THEN (SELECT phone FROM restaurants WHERE id = $2) ELSE phone END,
				updated_at = $3
			 WHERE id = $1`,
			[]any{targetID, duplicateID, time.Now().UTC()}},
		{"delete duplicate",
			`DELETE FROM restaurants WHERE id = $1`,
			[]any{duplicateID}},
	}
	for _, st := range steps {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return eris.Wrapf(err, "postgres: merge %s", st.desc)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

// helpers

func itoa(n int) string {
	return strconv.Itoa(n)
}

func pgScanRestaurant(row pgx.Row) (*model.Restaurant, error) {
	var r model.Restaurant
	err := row.Scan(&r.ID, &r.Name, &r.Address, &r.Latitude, &r.Longitude,
		&r.Phone, &r.Location, &r.CreatedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan restaurant")
	}
	return &r, nil
}

func pgCollectRestaurants(rows pgx.Rows) ([]*model.Restaurant, error) {
	var out []*model.Restaurant
	for rows.Next() {
		r, err := pgScanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: restaurants iterate")
}
