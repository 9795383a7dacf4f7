package carerecipient

import (
	"context"
	"fmt"
	"strings"

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

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recipientColumns = `cr.id, cr.care_provider_location_id, l.name, cr.provider_reference_id,
	cr.nhs_number_hash, cr.subscription_id, COALESCE(cr.created_by, ''), COALESCE(cr.updated_by, ''),
	cr.created_at, cr.updated_at`

const recipientFrom = ` FROM care_recipient cr
	JOIN care_provider_location l ON l.id = cr.care_provider_location_id`

func (r *repoPG) Create(ctx context.Context, rec *CareRecipient) error {
	rec.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO care_recipient (
			id, care_provider_location_id, provider_reference_id, nhs_number_hash, subscription_id,
			created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at, updated_at`,
		rec.ID, rec.CareProviderLocationID, rec.ProviderReferenceID, rec.NHSNumberHash, rec.SubscriptionID,
		rec.CreatedBy, rec.UpdatedBy,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if constraint, ok := db.UniqueViolationConstraint(err); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, uniqueColumn(constraint))
	}
	return err
}

// uniqueColumn names the column behind a care_recipient unique constraint.
func uniqueColumn(constraint string) string {
	switch constraint {
	case "care_recipient_provider_reference_id_key":
		return "provider_reference_id"
	case "care_recipient_nhs_number_hash_key":
		return "nhs_number_hash"
	default:
		return constraint
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CareRecipient, error) {
	rec, err := scanRecipient(r.conn(ctx).QueryRow(ctx, `SELECT `+recipientColumns+recipientFrom+` WHERE cr.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *repoPG) FindByHash(ctx context.Context, nhsNumberHash string) (*CareRecipient, error) {
	rec, err := scanRecipient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recipientColumns+recipientFrom+` WHERE cr.nhs_number_hash = $1`, nhsNumberHash))
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (r *repoPG) ExistsByProviderReference(ctx context.Context, providerReferenceID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM care_recipient WHERE provider_reference_id = $1)`, providerReferenceID,
	).Scan(&exists)
	return exists, err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM care_recipient WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*CareRecipient, int, error) {
	where, args := listWhere(filter)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+recipientFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count care recipients: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s%s%s ORDER BY cr.updated_at DESC, cr.id LIMIT $%d OFFSET $%d`,
		recipientColumns, recipientFrom, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var recs []*CareRecipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

// listWhere builds the WHERE clause for List. The pseudonym must match
// exactly; the provider reference matches as a case-insensitive substring.
func listWhere(filter ListFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, q, escapeLike(q))
		clauses = append(clauses, fmt.Sprintf(`(cr.nhs_number_hash = $%d OR cr.provider_reference_id ILIKE '%%' || $%d || '%%' ESCAPE '\')`, len(args)-1, len(args)))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		clauses = append(clauses, fmt.Sprintf("cr.care_provider_location_id = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanRecipient(row pgx.Row) (*CareRecipient, error) {
	var rec CareRecipient
	err := row.Scan(&rec.ID, &rec.CareProviderLocationID, &rec.LocationName, &rec.ProviderReferenceID,
		&rec.NHSNumberHash, &rec.SubscriptionID, &rec.CreatedBy, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
