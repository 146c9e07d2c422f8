package db

import (
	"context"
	"errors"

	"lablink/apperr"

	"gorm.io/gorm"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Transaction runs fn against a Repo bound to one transaction. Calling it on a
// Repo that is already inside a transaction opens a savepoint.
func (r *Repo) Transaction(ctx context.Context, fn func(tx *Repo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{DB: tx})
	})
}

// translate maps gorm sentinels onto the error taxonomy; what is used for the
// not-found message.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFoundf("%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &apperr.Error{Kind: apperr.Conflict, Message: what + " already exists", Err: err}
	}
	return err
}

func page(p, size, max int) (offset, limit int) {
	if p <= 0 {
		p = 1
	}
	if size <= 0 || size > max {
		size = 20
	}
	return (p - 1) * size, size
}
