package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// IsDuplicate reports whether err is a unique-constraint violation. The
// gorm connection runs with TranslateError, but raw pgconn errors can
// still surface from batch statements.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsSchemaMissing reports whether err means a required table has not
// been migrated yet (undefined_table). Callers surface this as a
// validation problem with a migration hint instead of a server error.
func IsSchemaMissing(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

// Repositories bundles everything the procurement services read and write.
type Repositories struct {
	Project     *ProjectRepository
	Supplier    *SupplierRepository
	LineItem    *LineItemRepository
	Order       *OrderRepository
	Receipt     *ReceiptRepository
	Reservation *ReservationRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Project:     NewProjectRepository(db),
		Supplier:    NewSupplierRepository(db),
		LineItem:    NewLineItemRepository(db),
		Order:       NewOrderRepository(db),
		Receipt:     NewReceiptRepository(db),
		Reservation: NewReservationRepository(db),
	}
}
