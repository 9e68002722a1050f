package dao

import (
	"github.com/decred/slog"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
)

var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// storeError converts a storage error into a domain error. Not-found and
// duplicate keys get the supplied codes; anything else is logged and
// returned as an opaque internal error. Domain errors pass through.
func storeError(err error, op string, notFound apperr.Code, duplicate apperr.Code) error {
	if err == nil {
		return nil
	}
	if apperr.CodeOf(err) != apperr.CodeInternal {
		return err
	}
	switch err {
	case database.ErrNotFound:
		if notFound != "" {
			return apperr.Wrap(notFound, "not found", err)
		}
	case database.ErrDuplicate:
		if duplicate != "" {
			return apperr.Wrap(duplicate, "already exists", err)
		}
	}
	log.Errorf("%s: %v", op, err)
	return apperr.Internal(err)
}

func dbOrGlobal(db database.Database) database.Database {
	if db != nil {
		return db
	}
	return database.DB
}
