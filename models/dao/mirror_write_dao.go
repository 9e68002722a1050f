package dao

import (
	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
)

// MirrorWriteDAO outbox data access object
type MirrorWriteDAO struct {
	db database.Database
}

// NewMirrorWriteDAO create outbox DAO; a nil db means database.DB
func NewMirrorWriteDAO(db database.Database) *MirrorWriteDAO {
	return &MirrorWriteDAO{db: dbOrGlobal(db)}
}

// Create stores a new entry. An existing tx ref yields an InvalidState error
// that still matches database.ErrDuplicate.
func (d *MirrorWriteDAO) Create(w *model.MirrorWrite) error {
	return storeError(d.db.CreateMirrorWrite(w), "create mirror write", "", apperr.CodeInvalidState)
}

// Get loads an entry by chain reference
func (d *MirrorWriteDAO) Get(txRef string) (*model.MirrorWrite, error) {
	w, err := d.db.GetMirrorWrite(txRef)
	if err != nil {
		return nil, storeError(err, "get mirror write", apperr.CodeNotFound, "")
	}
	return w, nil
}

// Update replaces an entry
func (d *MirrorWriteDAO) Update(w *model.MirrorWrite) error {
	return storeError(d.db.UpdateMirrorWrite(w), "update mirror write", apperr.CodeNotFound, "")
}

// List lists entries in status, oldest first
func (d *MirrorWriteDAO) List(status model.MirrorStatus, limit int) ([]*model.MirrorWrite, error) {
	ws, err := d.db.ListMirrorWrites(status, limit)
	if err != nil {
		return nil, storeError(err, "list mirror writes", "", "")
	}
	return ws, nil
}

// Count counts entries in status; empty status counts all
func (d *MirrorWriteDAO) Count(status model.MirrorStatus) (int64, error) {
	n, err := d.db.CountMirrorWrites(status)
	if err != nil {
		return 0, storeError(err, "count mirror writes", "", "")
	}
	return n, nil
}
