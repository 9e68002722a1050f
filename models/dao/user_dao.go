package dao

import (
	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
)

// UserDAO user profile data access object
type UserDAO struct {
	db database.Database
}

// NewUserDAO create user DAO; a nil db means database.DB
func NewUserDAO(db database.Database) *UserDAO {
	return &UserDAO{db: dbOrGlobal(db)}
}

// Save creates or replaces a user
func (d *UserDAO) Save(u *model.User) error {
	return storeError(d.db.SaveUser(u), "save user", "", apperr.CodeInvalidState)
}

// Get loads a user by id
func (d *UserDAO) Get(id string) (*model.User, error) {
	u, err := d.db.GetUser(id)
	if err != nil {
		return nil, storeError(err, "get user", apperr.CodeNotFound, "")
	}
	return u, nil
}

// GetByWallet returns the user bound to wallet, or nil when there is none.
func (d *UserDAO) GetByWallet(wallet string) (*model.User, error) {
	u, err := d.db.GetUserByWallet(wallet)
	if err == database.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "get user by wallet", "", "")
	}
	return u, nil
}
