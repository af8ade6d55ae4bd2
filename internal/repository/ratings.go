package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/business-ratings/internal/domain"
)

// RatingsRepository persists business ratings.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

var ratingColumns = []string{"id", "business_id", "customer_id", "rating", "review", "created_at"}

// RatingWriteParams is the full set of client-controlled fields. Updates
// replace all of them.
type RatingWriteParams struct {
	BusinessID int64
	CustomerID int64
	Score      int
	Review     *string
}

// RatingListFilters narrows a listing. CreatedFrom and CreatedTo are
// inclusive; nil bounds are not applied.
type RatingListFilters struct {
	Limit       int
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Create inserts a rating; the database assigns id and created_at.
func (r *RatingsRepository) Create(ctx context.Context, params RatingWriteParams) (domain.Rating, error) {
	query := fmt.Sprintf(`
        INSERT INTO ratings (business_id, customer_id, rating, review)
        VALUES ($1,$2,$3,$4)
        RETURNING %s
    `, strings.Join(ratingColumns, ", "))

	row := r.pool.QueryRow(ctx, query, params.BusinessID, params.CustomerID, params.Score, params.Review)
	rating, err := scanRating(row)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("insert rating: %w", err)
	}
	return rating, nil
}

// Get fetches a single rating by id.
func (r *RatingsRepository) Get(ctx context.Context, id int64) (domain.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings WHERE id = $1`, strings.Join(ratingColumns, ", "))
	rating, err := scanRating(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, fmt.Errorf("get rating %d: %w", id, err)
	}
	return rating, nil
}

// Update replaces the mutable fields of a rating and returns the stored row
// along with the business id it belonged to before the update.
func (r *RatingsRepository) Update(ctx context.Context, id int64, params RatingWriteParams) (domain.Rating, int64, error) {
	const query = `
        UPDATE ratings AS r
        SET business_id = $2, customer_id = $3, rating = $4, review = $5
        FROM (SELECT id, business_id FROM ratings WHERE id = $1 FOR UPDATE) AS prev
        WHERE r.id = prev.id
        RETURNING r.id, r.business_id, r.customer_id, r.rating, r.review, r.created_at, prev.business_id
    `

	var (
		rating       domain.Rating
		prevBusiness int64
	)
	err := r.pool.QueryRow(ctx, query, id, params.BusinessID, params.CustomerID, params.Score, params.Review).Scan(
		&rating.ID,
		&rating.BusinessID,
		&rating.CustomerID,
		&rating.Score,
		&rating.Review,
		&rating.CreatedAt,
		&prevBusiness,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, 0, ErrNotFound
		}
		return domain.Rating{}, 0, fmt.Errorf("update rating %d: %w", id, err)
	}
	return rating, prevBusiness, nil
}

// Delete removes a rating permanently and returns its business id.
func (r *RatingsRepository) Delete(ctx context.Context, id int64) (int64, error) {
	var businessID int64
	err := r.pool.QueryRow(ctx, `DELETE FROM ratings WHERE id = $1 RETURNING business_id`, id).Scan(&businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("delete rating %d: %w", id, err)
	}
	return businessID, nil
}

// List returns at most filters.Limit ratings ordered by id.
func (r *RatingsRepository) List(ctx context.Context, filters RatingListFilters) ([]domain.Rating, error) {
	items := make([]domain.Rating, 0)
	if filters.Limit <= 0 {
		return items, nil
	}

	query, args := buildListQuery(filters)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		items = append(items, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return items, nil
}

func buildListQuery(filters RatingListFilters) (string, []interface{}) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(ratingColumns...)
	sb.From("ratings")

	var conds []string
	if filters.CreatedFrom != nil {
		conds = append(conds, sb.GreaterEqualThan("created_at", *filters.CreatedFrom))
	}
	if filters.CreatedTo != nil {
		conds = append(conds, sb.LessEqualThan("created_at", *filters.CreatedTo))
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}

	sb.OrderBy("id").Asc()
	sb.Limit(filters.Limit)
	return sb.Build()
}

// Aggregate computes the mean score and count for a business in one pass.
// The mean is rounded to two decimals, half away from zero, on the exact
// numeric value before it is converted to float. A business without ratings
// yields a zero average and zero count.
func (r *RatingsRepository) Aggregate(ctx context.Context, businessID int64) (domain.RatingAggregate, error) {
	const query = `
        SELECT COALESCE(ROUND(AVG(rating), 2), 0)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE business_id = $1
    `

	agg := domain.RatingAggregate{BusinessID: businessID}
	if err := r.pool.QueryRow(ctx, query, businessID).Scan(&agg.Average, &agg.Count); err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.BusinessID,
		&rating.CustomerID,
		&rating.Score,
		&rating.Review,
		&rating.CreatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}
