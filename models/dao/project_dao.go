package dao

import (
	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
)

// ProjectDAO project data access object
type ProjectDAO struct {
	db database.Database
}

// NewProjectDAO create project DAO; a nil db means database.DB
func NewProjectDAO(db database.Database) *ProjectDAO {
	return &ProjectDAO{db: dbOrGlobal(db)}
}

// Create stores a new project
func (d *ProjectDAO) Create(p *model.Project) error {
	return storeError(d.db.CreateProject(p), "create project", "", apperr.CodeInvalidState)
}

// Get loads a project by id
func (d *ProjectDAO) Get(id string) (*model.Project, error) {
	p, err := d.db.GetProject(id)
	if err != nil {
		return nil, storeError(err, "get project", apperr.CodeProjectNotFound, "")
	}
	return p, nil
}

// Update mutates a project atomically. A vote that collides with the
// storage uniqueness index surfaces as DuplicateVote.
func (d *ProjectDAO) Update(id string, fn database.ProjectMutator) (*model.Project, error) {
	p, err := d.db.UpdateProject(id, fn)
	if err != nil {
		if err == database.ErrDuplicate {
			return nil, apperr.Wrap(apperr.CodeDuplicateVote, "this wallet already voted on the milestone", err)
		}
		return nil, storeError(err, "update project", apperr.CodeProjectNotFound, "")
	}
	return p, nil
}

// Delete removes a project
func (d *ProjectDAO) Delete(id string) error {
	return storeError(d.db.DeleteProject(id), "delete project", apperr.CodeProjectNotFound, "")
}

// List lists projects newest first, optionally filtered by status
func (d *ProjectDAO) List(status model.ProjectStatus, offset, limit int) ([]*model.Project, int64, error) {
	ps, total, err := d.db.ListProjects(status, offset, limit)
	if err != nil {
		return nil, 0, storeError(err, "list projects", "", "")
	}
	return ps, total, nil
}

// ListByOwner lists projects owned by pr, matched by wallet or user id
func (d *ProjectDAO) ListByOwner(pr model.Principal) ([]*model.Project, error) {
	ps, err := d.db.ListProjectsByOwner(pr)
	if err != nil {
		return nil, storeError(err, "list owner projects", "", "")
	}
	out := ps[:0]
	for _, p := range ps {
		if p.IsOwnedBy(pr) {
			out = append(out, p)
		}
	}
	return out, nil
}
