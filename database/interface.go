package database

import (
	model "trust-fund-service/models"
)

// ProjectMutator changes a project in place. Returning an error aborts the
// write and nothing is stored.
type ProjectMutator func(p *model.Project) error

// Database interface for different database implementations
type Database interface {
	// Project operations
	CreateProject(p *model.Project) error
	GetProject(id string) (*model.Project, error)
	// UpdateProject reads, mutates and writes a project as one step. Votes
	// added by fn are checked against the (milestone, voter wallet) index and
	// ErrDuplicate is returned if any already exists.
	UpdateProject(id string, fn ProjectMutator) (*model.Project, error)
	DeleteProject(id string) error
	ListProjects(status model.ProjectStatus, offset, limit int) ([]*model.Project, int64, error)
	ListProjectsByOwner(pr model.Principal) ([]*model.Project, error)

	// Contribution operations
	AddContribution(c *model.Contribution) error
	GetContributionByTxRef(txRef string) (*model.Contribution, error)
	ListContributionsByProject(projectID string) ([]*model.Contribution, error)
	ListContributionsByPrincipal(pr model.Principal) ([]*model.Contribution, error)
	CountContributions(projectID string) (int64, error)

	// User operations
	SaveUser(u *model.User) error
	GetUser(id string) (*model.User, error)
	GetUserByWallet(wallet string) (*model.User, error)

	// Mirror outbox operations
	CreateMirrorWrite(w *model.MirrorWrite) error
	GetMirrorWrite(txRef string) (*model.MirrorWrite, error)
	UpdateMirrorWrite(w *model.MirrorWrite) error
	ListMirrorWrites(status model.MirrorStatus, limit int) ([]*model.MirrorWrite, error)
	CountMirrorWrites(status model.MirrorStatus) (int64, error)

	// General operations
	Close() error
}

// DBType database type
type DBType string

const (
	DBTypeMySQL  DBType = "mysql"
	DBTypeSQLite DBType = "sqlite"
	DBTypePebble DBType = "pebble"
)

// Global database instance
var DB Database

// InitDatabase initialize database with specified type
func InitDatabase(dbType DBType, config interface{}) error {
	var err error

	switch dbType {
	case DBTypePebble:
		DB, err = NewPebbleDatabase(config)
	case DBTypeSQLite, DBTypeMySQL:
		DB, err = NewSQLDatabase(dbType, config)
	default:
		return ErrUnsupportedDBType
	}
	if err != nil {
		return err
	}
	log.Infof("Database ready (%s)", dbType)
	return nil
}
