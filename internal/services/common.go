package services

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"medops-bknd/internal/apperr"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// clampLimit applies the default and ceiling to a caller-supplied page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// lookup maps a missing row to apperr.ErrNotFound and wraps anything else as
// a fetch failure.
func lookup(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return apperr.Fetch(op, err)
}

// affected turns an update result into ErrNotFound when no row matched.
func affected(op string, res sql.Result, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return apperr.Write(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Write(op, err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func ParseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Invalid(field, fmt.Sprintf("%q is not a valid id", raw))
	}
	return id, nil
}

// ValidateCoordinates rejects positions off the globe, NaN and infinities
// included.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return apperr.Invalid("coordinates", "must be finite numbers")
	}
	if lat < -90 || lat > 90 {
		return apperr.Invalid("latitude", "must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return apperr.Invalid("longitude", "must be between -180 and 180")
	}
	return nil
}

func stringsToLower(arr []string) []string {
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = strings.ToLower(v)
	}
	return out
}
