package database

import (
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	model "trust-fund-service/models"
)

// SQLDatabase sqlx implementation shared by the sqlite and mysql backends
type SQLDatabase struct {
	db     *sqlx.DB
	dbType DBType
}

// SQLConfig SQL database configuration
type SQLConfig struct {
	DSN          string // sqlite file path (or :memory:) / mysql DSN
	MaxOpenConns int
	MaxIdleConns int
}

// updateRetries bounds optimistic-lock retries in UpdateProject.
const updateRetries = 5

// NewSQLDatabase opens the database and applies pending migrations.
func NewSQLDatabase(dbType DBType, config interface{}) (Database, error) {
	cfg, ok := config.(*SQLConfig)
	if !ok {
		return nil, errors.New("invalid SQL config type")
	}

	driver := string(dbType)
	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", driver)
	}
	switch dbType {
	case DBTypeSQLite:
		// One writer; also keeps :memory: databases on a single connection.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "setting busy timeout")
		}
	default:
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		db.SetConnMaxLifetime(time.Hour)
	}

	s := newSQLDatabase(db, dbType)
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newSQLDatabase(db *sqlx.DB, dbType DBType) *SQLDatabase {
	return &SQLDatabase{db: db, dbType: dbType}
}

// isDuplicate reports whether err is a unique or primary key violation.
func isDuplicate(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Project operations

func (s *SQLDatabase) insertVotes(tx *sqlx.Tx, projectID string, keys map[voteKey]bool) error {
	for k := range keys {
		_, err := tx.Exec(`INSERT INTO milestone_votes (milestone_id, voter_wallet, project_id) VALUES (?, ?, ?)`,
			k.milestoneID, k.wallet, projectID)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return errors.Wrap(err, "inserting vote")
		}
	}
	return nil
}

type voteKey struct {
	milestoneID string
	wallet      string
}

func sqlVoteKeys(p *model.Project) map[voteKey]bool {
	keys := make(map[voteKey]bool)
	for _, m := range p.Milestones {
		for _, v := range m.Votes {
			keys[voteKey{m.ID, model.NormalizeWallet(v.VoterWallet)}] = true
		}
	}
	return keys
}

func (s *SQLDatabase) CreateProject(p *model.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO projects (id, owner_wallet, owner_user, status, doc, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		p.ID, p.OwnerWallet, p.OwnerUser, string(p.Status), string(doc), nanos(p.CreatedAt), nanos(p.UpdatedAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "inserting project")
	}
	if err := s.insertVotes(tx, p.ID, sqlVoteKeys(p)); err != nil {
		return err
	}
	return tx.Commit()
}

func decodeProject(doc string) (*model.Project, error) {
	var p model.Project
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, errors.Wrap(err, "decoding project")
	}
	return &p, nil
}

func (s *SQLDatabase) GetProject(id string) (*model.Project, error) {
	var doc string
	if err := s.db.Get(&doc, `SELECT doc FROM projects WHERE id = ?`, id); err != nil {
		return nil, noRows(err)
	}
	return decodeProject(doc)
}

func (s *SQLDatabase) UpdateProject(id string, fn ProjectMutator) (*model.Project, error) {
	for attempt := 0; attempt < updateRetries; attempt++ {
		p, err := s.updateProjectOnce(id, fn)
		if err == ErrConflict {
			log.Debugf("Project %s changed concurrently, retrying (%d)", id, attempt+1)
			continue
		}
		return p, err
	}
	return nil, ErrConflict
}

func (s *SQLDatabase) updateProjectOnce(id string, fn ProjectMutator) (*model.Project, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var row struct {
		Doc     string `db:"doc"`
		Version int64  `db:"version"`
	}
	if err := tx.Get(&row, `SELECT doc, version FROM projects WHERE id = ?`, id); err != nil {
		return nil, noRows(err)
	}
	p, err := decodeProject(row.Doc)
	if err != nil {
		return nil, err
	}
	before := sqlVoteKeys(p)
	if err := fn(p); err != nil {
		return nil, err
	}
	p.ID = id
	after := sqlVoteKeys(p)

	added := make(map[voteKey]bool)
	for k := range after {
		if !before[k] {
			added[k] = true
		}
	}
	if err := s.insertVotes(tx, id, added); err != nil {
		return nil, err
	}
	for k := range before {
		if after[k] {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM milestone_votes WHERE milestone_id = ? AND voter_wallet = ?`, k.milestoneID, k.wallet); err != nil {
			return nil, errors.Wrap(err, "deleting vote")
		}
	}

	doc, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	res, err := tx.Exec(`UPDATE projects SET status = ?, doc = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(p.Status), string(doc), nanos(p.UpdatedAt), id, row.Version)
	if err != nil {
		return nil, errors.Wrap(err, "updating project")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLDatabase) DeleteProject(id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting project")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM milestone_votes WHERE project_id = ?`, id); err != nil {
		return errors.Wrap(err, "deleting project votes")
	}
	return tx.Commit()
}

func (s *SQLDatabase) selectProjects(query string, args ...interface{}) ([]*model.Project, error) {
	var docs []string
	if err := s.db.Select(&docs, query, args...); err != nil {
		return nil, err
	}
	out := make([]*model.Project, 0, len(docs))
	for _, d := range docs {
		p, err := decodeProject(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLDatabase) ListProjects(status model.ProjectStatus, offset, limit int) ([]*model.Project, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	where, args := "", []interface{}{}
	if status != "" {
		where, args = " WHERE status = ?", append(args, string(status))
	}

	var total int64
	if err := s.db.Get(&total, `SELECT COUNT(*) FROM projects`+where, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting projects")
	}
	ps, err := s.selectProjects(`SELECT doc FROM projects`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing projects")
	}
	return ps, total, nil
}

func (s *SQLDatabase) ListProjectsByOwner(owner model.Principal) ([]*model.Project, error) {
	ps, err := s.selectProjects(`SELECT doc FROM projects
		WHERE owner_wallet = ? OR (owner_user <> '' AND owner_user = ?)
		ORDER BY created_at DESC, id DESC`,
		model.NormalizeWallet(owner.WalletAddress), owner.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "listing owner projects")
	}
	return ps, nil
}

// Contribution operations

type contributionRow struct {
	ID            string         `db:"id"`
	ProjectID     string         `db:"project_id"`
	WalletAddress string         `db:"wallet_address"`
	UserID        string         `db:"user_id"`
	Amount        string         `db:"amount"`
	ChainTxRef    sql.NullString `db:"chain_tx_ref"`
	CreatedAt     int64          `db:"created_at"`
}

func (r *contributionRow) toModel() (*model.Contribution, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, errors.Wrapf(err, "contribution %s amount", r.ID)
	}
	return &model.Contribution{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		WalletAddress: r.WalletAddress,
		UserID:        r.UserID,
		Amount:        amount,
		ChainTxRef:    r.ChainTxRef.String,
		CreatedAt:     fromNanos(r.CreatedAt),
	}, nil
}

const contributionColumns = `id, project_id, wallet_address, user_id, amount, chain_tx_ref, created_at`

func (s *SQLDatabase) AddContribution(c *model.Contribution) error {
	txRef := sql.NullString{String: c.ChainTxRef, Valid: c.ChainTxRef != ""}
	_, err := s.db.Exec(`INSERT INTO contributions (`+contributionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.WalletAddress, c.UserID, c.Amount.String(), txRef, nanos(c.CreatedAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "inserting contribution")
	}
	return nil
}

func (s *SQLDatabase) selectContributions(query string, args ...interface{}) ([]*model.Contribution, error) {
	var rows []contributionRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing contributions")
	}
	out := make([]*model.Contribution, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLDatabase) GetContributionByTxRef(txRef string) (*model.Contribution, error) {
	var row contributionRow
	if err := s.db.Get(&row, `SELECT `+contributionColumns+` FROM contributions WHERE chain_tx_ref = ?`, txRef); err != nil {
		return nil, noRows(err)
	}
	return row.toModel()
}

func (s *SQLDatabase) ListContributionsByProject(projectID string) ([]*model.Contribution, error) {
	return s.selectContributions(`SELECT `+contributionColumns+` FROM contributions WHERE project_id = ? ORDER BY id`, projectID)
}

func (s *SQLDatabase) ListContributionsByPrincipal(pr model.Principal) ([]*model.Contribution, error) {
	return s.selectContributions(`SELECT `+contributionColumns+` FROM contributions
		WHERE wallet_address = ? OR (user_id <> '' AND user_id = ?) ORDER BY id`,
		model.NormalizeWallet(pr.WalletAddress), pr.UserID)
}

func (s *SQLDatabase) CountContributions(projectID string) (int64, error) {
	var n int64
	err := s.db.Get(&n, `SELECT COUNT(*) FROM contributions WHERE project_id = ?`, projectID)
	return n, err
}

// User operations

func (s *SQLDatabase) SaveUser(u *model.User) error {
	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var owner string
	err = tx.Get(&owner, `SELECT id FROM users WHERE wallet_address = ?`, u.WalletAddress)
	switch {
	case err == nil && owner != u.ID:
		return ErrDuplicate
	case err == nil:
		_, err = tx.Exec(`UPDATE users SET doc = ?, updated_at = ? WHERE id = ?`, string(doc), nanos(u.UpdatedAt), u.ID)
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.Exec(`INSERT INTO users (id, wallet_address, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.WalletAddress, string(doc), nanos(u.CreatedAt), nanos(u.UpdatedAt))
	}
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "saving user")
	}
	return tx.Commit()
}

func (s *SQLDatabase) getUser(query string, arg string) (*model.User, error) {
	var doc string
	if err := s.db.Get(&doc, query, arg); err != nil {
		return nil, noRows(err)
	}
	var u model.User
	if err := json.Unmarshal([]byte(doc), &u); err != nil {
		return nil, errors.Wrap(err, "decoding user")
	}
	return &u, nil
}

func (s *SQLDatabase) GetUser(id string) (*model.User, error) {
	return s.getUser(`SELECT doc FROM users WHERE id = ?`, id)
}

func (s *SQLDatabase) GetUserByWallet(wallet string) (*model.User, error) {
	return s.getUser(`SELECT doc FROM users WHERE wallet_address = ?`, model.NormalizeWallet(wallet))
}

// Mirror outbox operations

func (s *SQLDatabase) CreateMirrorWrite(w *model.MirrorWrite) error {
	doc, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO mirror_writes (tx_ref, status, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		w.TxRef, string(w.Status), string(doc), nanos(w.CreatedAt), nanos(w.UpdatedAt))
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "inserting mirror write")
	}
	return nil
}

func decodeMirrorWrite(doc string) (*model.MirrorWrite, error) {
	var w model.MirrorWrite
	if err := json.Unmarshal([]byte(doc), &w); err != nil {
		return nil, errors.Wrap(err, "decoding mirror write")
	}
	return &w, nil
}

func (s *SQLDatabase) GetMirrorWrite(txRef string) (*model.MirrorWrite, error) {
	var doc string
	if err := s.db.Get(&doc, `SELECT doc FROM mirror_writes WHERE tx_ref = ?`, txRef); err != nil {
		return nil, noRows(err)
	}
	return decodeMirrorWrite(doc)
}

func (s *SQLDatabase) UpdateMirrorWrite(w *model.MirrorWrite) error {
	var created int64
	if err := s.db.Get(&created, `SELECT created_at FROM mirror_writes WHERE tx_ref = ?`, w.TxRef); err != nil {
		return noRows(err)
	}
	w.CreatedAt = fromNanos(created)
	doc, err := json.Marshal(w)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE mirror_writes SET status = ?, doc = ?, updated_at = ? WHERE tx_ref = ?`,
		string(w.Status), string(doc), nanos(w.UpdatedAt), w.TxRef)
	if err != nil {
		return errors.Wrap(err, "updating mirror write")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLDatabase) ListMirrorWrites(status model.MirrorStatus, limit int) ([]*model.MirrorWrite, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	var docs []string
	var err error
	if status == "" {
		err = s.db.Select(&docs, `SELECT doc FROM mirror_writes ORDER BY created_at, tx_ref LIMIT ?`, limit)
	} else {
		err = s.db.Select(&docs, `SELECT doc FROM mirror_writes WHERE status = ? ORDER BY created_at, tx_ref LIMIT ?`,
			string(status), limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "listing mirror writes")
	}
	out := make([]*model.MirrorWrite, 0, len(docs))
	for _, d := range docs {
		w, err := decodeMirrorWrite(d)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *SQLDatabase) CountMirrorWrites(status model.MirrorStatus) (int64, error) {
	var n int64
	var err error
	if status == "" {
		err = s.db.Get(&n, `SELECT COUNT(*) FROM mirror_writes`)
	} else {
		err = s.db.Get(&n, `SELECT COUNT(*) FROM mirror_writes WHERE status = ?`, string(status))
	}
	return n, err
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}
