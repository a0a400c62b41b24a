package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront-shipping/internal/domain"
	"github.com/utafrali/storefront-shipping/pkg/database"
	apperrors "github.com/utafrali/storefront-shipping/pkg/errors"
)

const (
	addressColumns = `id, user_id, text, phone, latitude, longitude, created_at`

	listAddressesSQL = `
		SELECT ` + addressColumns + `
		FROM shipping_addresses
		WHERE user_id = $1
		ORDER BY created_at, id`

	getAddressSQL = `
		SELECT ` + addressColumns + `
		FROM shipping_addresses
		WHERE id = $1 AND user_id = $2`

	insertAddressSQL = `
		INSERT INTO shipping_addresses (` + addressColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	deleteAddressSQL = `DELETE FROM shipping_addresses WHERE id = $1 AND user_id = $2`
)

// AddressRepository implements repository.AddressRepository using PostgreSQL.
type AddressRepository struct {
	db database.DBTX
}

// NewAddressRepository creates a new PostgreSQL-backed address repository.
func NewAddressRepository(db database.DBTX) *AddressRepository {
	return &AddressRepository{db: db}
}

// ListByUser returns every address of the user, oldest first.
func (r *AddressRepository) ListByUser(ctx context.Context, userID string) (addresses []domain.Address, err error) {
	ctx, end := database.TraceQuery(ctx, "ListAddresses", listAddressesSQL)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, listAddressesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses = []domain.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}

	return addresses, nil
}

// GetByID returns one address of the user. Addresses owned by someone else
// are reported as not found.
func (r *AddressRepository) GetByID(ctx context.Context, userID, id string) (a *domain.Address, err error) {
	ctx, end := database.TraceQuery(ctx, "GetAddress", getAddressSQL)
	defer func() { end(err) }()

	a, err = scanAddress(r.db.QueryRow(ctx, getAddressSQL, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("address", id)
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

// Create inserts a new address.
func (r *AddressRepository) Create(ctx context.Context, a *domain.Address) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateAddress", insertAddressSQL)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, insertAddressSQL,
		a.ID,
		a.UserID,
		a.Text,
		a.Phone,
		a.Coordinate.Latitude,
		a.Coordinate.Longitude,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

// Delete removes an address of the user and reports whether it existed.
func (r *AddressRepository) Delete(ctx context.Context, userID, id string) (deleted bool, err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteAddress", deleteAddressSQL)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, deleteAddressSQL, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete address: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func scanAddress(row pgx.Row) (*domain.Address, error) {
	var a domain.Address
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Text,
		&a.Phone,
		&a.Coordinate.Latitude,
		&a.Coordinate.Longitude,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
