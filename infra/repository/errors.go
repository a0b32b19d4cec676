package repository

import (
	"errors"

	"github.com/amirasaad/microgive/pkg/domain"
	"gorm.io/gorm"
)

// MapGormErrorToDomain converts GORM errors to domain errors, walking the
// wrap chain. Requires gorm.Config.TranslateError so driver-specific
// constraint errors arrive as gorm sentinels.
func MapGormErrorToDomain(err error) error {
	if err == nil {
		return nil
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		switch {
		case errors.Is(cur, gorm.ErrDuplicatedKey):
			return domain.ErrAlreadyExists
		case errors.Is(cur, gorm.ErrRecordNotFound):
			return domain.ErrNotFound
		case errors.Is(cur, gorm.ErrForeignKeyViolated):
			return domain.ErrNotFound
		}
	}
	return err
}

// WrapError runs a GORM operation and maps its error.
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(m).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}
