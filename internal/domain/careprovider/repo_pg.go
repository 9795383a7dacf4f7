package careprovider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hans/hans/internal/platform/db"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// -- RegisteredManager Repository --

type managerRepoPG struct {
	pool *pgxpool.Pool
}

func NewManagerRepo(pool *pgxpool.Pool) ManagerRepository {
	return &managerRepoPG{pool: pool}
}

func (r *managerRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const managerColumns = `id, given_name, family_name, cqc_registered_manager_id,
	COALESCE(created_by, ''), COALESCE(updated_by, ''), created_at, updated_at`

func (r *managerRepoPG) Create(ctx context.Context, m *RegisteredManager) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO registered_manager (id, given_name, family_name, cqc_registered_manager_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING created_at, updated_at`,
		m.ID, m.GivenName, m.FamilyName, m.CQCRegisteredManagerID, m.CreatedBy, m.UpdatedBy,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *managerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RegisteredManager, error) {
	m, err := scanManager(r.conn(ctx).QueryRow(ctx, `SELECT `+managerColumns+` FROM registered_manager WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *managerRepoPG) Update(ctx context.Context, m *RegisteredManager) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE registered_manager SET
			given_name = $2, family_name = $3, cqc_registered_manager_id = $4,
			created_by = NULLIF($5, ''), updated_by = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.GivenName, m.FamilyName, m.CQCRegisteredManagerID, m.CreatedBy, m.UpdatedBy,
	).Scan(&m.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *managerRepoPG) List(ctx context.Context, limit, offset int) ([]*RegisteredManager, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM registered_manager`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count registered managers: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+managerColumns+` FROM registered_manager
		ORDER BY family_name, given_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var managers []*RegisteredManager
	for rows.Next() {
		m, err := scanManager(rows)
		if err != nil {
			return nil, 0, err
		}
		managers = append(managers, m)
	}
	return managers, total, rows.Err()
}

func scanManager(row pgx.Row) (*RegisteredManager, error) {
	var m RegisteredManager
	err := row.Scan(&m.ID, &m.GivenName, &m.FamilyName, &m.CQCRegisteredManagerID,
		&m.CreatedBy, &m.UpdatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// -- CareProviderLocation Repository --

type locationRepoPG struct {
	pool *pgxpool.Pool
}

func NewLocationRepo(pool *pgxpool.Pool) LocationRepository {
	return &locationRepoPG{pool: pool}
}

func (r *locationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const locationColumns = `l.id, l.registered_manager_id, l.name, l.email, l.ods_code, l.cqc_location_id,
	COALESCE(l.created_by, ''), COALESCE(l.updated_by, ''), l.created_at, l.updated_at`

func (r *locationRepoPG) Create(ctx context.Context, loc *CareProviderLocation) error {
	loc.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO care_provider_location (
			id, registered_manager_id, name, email, ods_code, cqc_location_id, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING created_at, updated_at`,
		loc.ID, loc.RegisteredManagerID, loc.Name, loc.Email, loc.ODSCode, loc.CQCLocationID,
		loc.CreatedBy, loc.UpdatedBy,
	).Scan(&loc.CreatedAt, &loc.UpdatedAt)
}

func (r *locationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CareProviderLocation, error) {
	loc, err := scanLocation(r.conn(ctx).QueryRow(ctx,
		`SELECT `+locationColumns+` FROM care_provider_location l WHERE l.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return loc, err
}

func (r *locationRepoPG) GetByRecipientPseudonym(ctx context.Context, nhsNumberHash string) (*CareProviderLocation, error) {
	loc, err := scanLocation(r.conn(ctx).QueryRow(ctx, `
		SELECT `+locationColumns+`
		FROM care_provider_location l
		JOIN care_recipient cr ON cr.care_provider_location_id = l.id
		WHERE cr.nhs_number_hash = $1`, nhsNumberHash))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return loc, err
}

func (r *locationRepoPG) Update(ctx context.Context, loc *CareProviderLocation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE care_provider_location SET
			registered_manager_id = $2, name = $3, email = $4, ods_code = $5, cqc_location_id = $6,
			created_by = NULLIF($7, ''), updated_by = NULLIF($8, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		loc.ID, loc.RegisteredManagerID, loc.Name, loc.Email, loc.ODSCode, loc.CQCLocationID,
		loc.CreatedBy, loc.UpdatedBy,
	).Scan(&loc.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	return err
}

func (r *locationRepoPG) List(ctx context.Context, limit, offset int) ([]*CareProviderLocation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM care_provider_location`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count locations: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+locationColumns+` FROM care_provider_location l
		ORDER BY l.name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var locs []*CareProviderLocation
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		locs = append(locs, loc)
	}
	return locs, total, rows.Err()
}

func scanLocation(row pgx.Row) (*CareProviderLocation, error) {
	var l CareProviderLocation
	err := row.Scan(&l.ID, &l.RegisteredManagerID, &l.Name, &l.Email, &l.ODSCode, &l.CQCLocationID,
		&l.CreatedBy, &l.UpdatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
