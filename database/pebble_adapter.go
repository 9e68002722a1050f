package database

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	model "trust-fund-service/models"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleDatabase PebbleDB database implementation with multiple collections
type PebbleDatabase struct {
	collections map[string]*pebble.DB // Map of collection name to PebbleDB instance

	projectLocks sync.Map   // project id -> *sync.Mutex
	contribMu    sync.Mutex // Guards chain tx ref uniqueness
	userMu       sync.Mutex // Guards wallet uniqueness
	mirrorMu     sync.Mutex
}

// PebbleConfig PebbleDB configuration
type PebbleConfig struct {
	DataDir string
	FS      vfs.FS // Optional, defaults to the OS filesystem
}

// Collection names and their key formats
const (
	// key: p:{id} -> JSON(Project)
	//      v:{milestone_id}:{voter_wallet} -> "" (vote uniqueness)
	//      t:{reverse_created}:{id} -> id (newest first listing)
	//      o:{owner_wallet}:{id} -> id, ou:{owner_user}:{id} -> id
	collectionProjects = "projects"

	// key: c:{id} -> JSON(Contribution)
	//      p:{project_id}:{id}, w:{wallet}:{id}, u:{user_id}:{id} -> JSON(Contribution)
	//      t:{chain_tx_ref} -> id
	collectionContributions = "contributions"

	// key: u:{id} -> JSON(User), w:{wallet} -> id
	collectionUsers = "users"

	// key: m:{tx_ref} -> JSON(MirrorWrite), s:{status}:{created}:{tx_ref} -> tx_ref
	collectionMirrorWrites = "mirror_writes"
)

const maxInt64 = int64(^uint64(0) >> 1)

// NewPebbleDatabase create PebbleDB database instance with multiple collections
func NewPebbleDatabase(config interface{}) (Database, error) {
	cfg, ok := config.(*PebbleConfig)
	if !ok {
		return nil, fmt.Errorf("invalid PebbleDB config type")
	}
	fs := cfg.FS
	if fs == nil {
		fs = vfs.Default
	}
	root := filepath.Join(cfg.DataDir, "mirror_db")
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
	}

	collectionNames := []string{
		collectionProjects,
		collectionContributions,
		collectionUsers,
		collectionMirrorWrites,
	}

	collections := make(map[string]*pebble.DB)
	for _, name := range collectionNames {
		collectionPath := filepath.Join(root, name)
		db, err := pebble.Open(collectionPath, &pebble.Options{FS: fs})
		if err != nil {
			for _, openedDB := range collections {
				openedDB.Close()
			}
			return nil, fmt.Errorf("failed to open collection %s at %s: %w", name, collectionPath, err)
		}
		collections[name] = db
		log.Debugf("Collection %s opened at %s", name, collectionPath)
	}

	log.Infof("PebbleDB opened %d collections under %s", len(collections), root)
	return &PebbleDatabase{collections: collections}, nil
}

// getJSON decodes the value stored at key into v.
func getJSON(db *pebble.DB, key string, v interface{}) error {
	data, closer, err := db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(data, v)
}

func has(db *pebble.DB, key string) (bool, error) {
	_, closer, err := db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// scanPrefix calls fn for every key under prefix, in key order.
func scanPrefix(db *pebble.DB, prefix string, fn func(key, value []byte) error) error {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func reverseKey(nanos int64) string {
	return fmt.Sprintf("%019d", maxInt64-nanos)
}

// Project operations

func (p *PebbleDatabase) lockProject(id string) func() {
	v, _ := p.projectLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func voteKeys(pr *model.Project) map[string]bool {
	keys := make(map[string]bool)
	for _, m := range pr.Milestones {
		for _, v := range m.Votes {
			keys["v:"+m.ID+":"+model.NormalizeWallet(v.VoterWallet)] = true
		}
	}
	return keys
}

func ownerKeys(pr *model.Project) []string {
	keys := []string{"o:" + pr.OwnerWallet + ":" + pr.ID}
	if pr.OwnerUser != "" {
		keys = append(keys, "ou:"+pr.OwnerUser+":"+pr.ID)
	}
	return keys
}

func (p *PebbleDatabase) CreateProject(pr *model.Project) error {
	db := p.collections[collectionProjects]
	unlock := p.lockProject(pr.ID)
	defer unlock()

	exists, err := has(db, "p:"+pr.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}

	data, err := json.Marshal(pr)
	if err != nil {
		return err
	}
	batch := db.NewBatch()
	defer batch.Close()

	batch.Set([]byte("p:"+pr.ID), data, nil)
	batch.Set([]byte("t:"+reverseKey(pr.CreatedAt.UnixNano())+":"+pr.ID), []byte(pr.ID), nil)
	for _, k := range ownerKeys(pr) {
		batch.Set([]byte(k), []byte(pr.ID), nil)
	}
	for k := range voteKeys(pr) {
		batch.Set([]byte(k), nil, nil)
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleDatabase) GetProject(id string) (*model.Project, error) {
	var pr model.Project
	if err := getJSON(p.collections[collectionProjects], "p:"+id, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

func (p *PebbleDatabase) UpdateProject(id string, fn ProjectMutator) (*model.Project, error) {
	db := p.collections[collectionProjects]
	unlock := p.lockProject(id)
	defer unlock()

	var pr model.Project
	if err := getJSON(db, "p:"+id, &pr); err != nil {
		return nil, err
	}
	before := voteKeys(&pr)
	if err := fn(&pr); err != nil {
		return nil, err
	}
	pr.ID = id
	after := voteKeys(&pr)

	batch := db.NewBatch()
	defer batch.Close()

	for k := range after {
		if before[k] {
			continue
		}
		taken, err := has(db, k)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrDuplicate
		}
		batch.Set([]byte(k), nil, nil)
	}
	for k := range before {
		if !after[k] {
			batch.Delete([]byte(k), nil)
		}
	}

	data, err := json.Marshal(&pr)
	if err != nil {
		return nil, err
	}
	batch.Set([]byte("p:"+id), data, nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return &pr, nil
}

func (p *PebbleDatabase) DeleteProject(id string) error {
	db := p.collections[collectionProjects]
	unlock := p.lockProject(id)
	defer unlock()

	var pr model.Project
	if err := getJSON(db, "p:"+id, &pr); err != nil {
		return err
	}

	batch := db.NewBatch()
	defer batch.Close()

	batch.Delete([]byte("p:"+id), nil)
	batch.Delete([]byte("t:"+reverseKey(pr.CreatedAt.UnixNano())+":"+id), nil)
	for _, k := range ownerKeys(&pr) {
		batch.Delete([]byte(k), nil)
	}
	for k := range voteKeys(&pr) {
		batch.Delete([]byte(k), nil)
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleDatabase) ListProjects(status model.ProjectStatus, offset, limit int) ([]*model.Project, int64, error) {
	db := p.collections[collectionProjects]
	if offset < 0 {
		offset = 0
	}

	var (
		out   []*model.Project
		total int64
	)
	err := scanPrefix(db, "t:", func(_, value []byte) error {
		var pr model.Project
		if err := getJSON(db, "p:"+string(value), &pr); err != nil {
			if err == ErrNotFound {
				return nil
			}
			return err
		}
		if status != "" && pr.Status != status {
			return nil
		}
		total++
		if total > int64(offset) && (limit <= 0 || len(out) < limit) {
			out = append(out, &pr)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p *PebbleDatabase) ListProjectsByOwner(owner model.Principal) ([]*model.Project, error) {
	db := p.collections[collectionProjects]
	ids := make(map[string]bool)
	collect := func(_, value []byte) error {
		ids[string(value)] = true
		return nil
	}
	if owner.WalletAddress != "" {
		if err := scanPrefix(db, "o:"+model.NormalizeWallet(owner.WalletAddress)+":", collect); err != nil {
			return nil, err
		}
	}
	if owner.UserID != "" {
		if err := scanPrefix(db, "ou:"+owner.UserID+":", collect); err != nil {
			return nil, err
		}
	}

	out := make([]*model.Project, 0, len(ids))
	for id := range ids {
		pr, err := p.GetProject(id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	sortProjectsNewestFirst(out)
	return out, nil
}

func sortProjectsNewestFirst(ps []*model.Project) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID > ps[j].ID
		}
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
}

// Contribution operations

func (p *PebbleDatabase) AddContribution(c *model.Contribution) error {
	db := p.collections[collectionContributions]
	p.contribMu.Lock()
	defer p.contribMu.Unlock()

	exists, err := has(db, "c:"+c.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}
	if c.ChainTxRef != "" {
		taken, err := has(db, "t:"+c.ChainTxRef)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicate
		}
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	batch := db.NewBatch()
	defer batch.Close()

	batch.Set([]byte("c:"+c.ID), data, nil)
	batch.Set([]byte("p:"+c.ProjectID+":"+c.ID), data, nil)
	batch.Set([]byte("w:"+c.WalletAddress+":"+c.ID), data, nil)
	if c.UserID != "" {
		batch.Set([]byte("u:"+c.UserID+":"+c.ID), data, nil)
	}
	if c.ChainTxRef != "" {
		batch.Set([]byte("t:"+c.ChainTxRef), []byte(c.ID), nil)
	}
	return batch.Commit(pebble.Sync)
}

func (p *PebbleDatabase) GetContributionByTxRef(txRef string) (*model.Contribution, error) {
	db := p.collections[collectionContributions]
	data, closer, err := db.Get([]byte("t:" + txRef))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id := string(data)
	closer.Close()

	var c model.Contribution
	if err := getJSON(db, "c:"+id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeContributions(db *pebble.DB, prefix string, seen map[string]bool, out []*model.Contribution) ([]*model.Contribution, error) {
	err := scanPrefix(db, prefix, func(_, value []byte) error {
		var c model.Contribution
		if err := json.Unmarshal(value, &c); err != nil {
			return err
		}
		if seen[c.ID] {
			return nil
		}
		seen[c.ID] = true
		out = append(out, &c)
		return nil
	})
	return out, err
}

func (p *PebbleDatabase) ListContributionsByProject(projectID string) ([]*model.Contribution, error) {
	return decodeContributions(p.collections[collectionContributions], "p:"+projectID+":", map[string]bool{}, nil)
}

func (p *PebbleDatabase) ListContributionsByPrincipal(pr model.Principal) ([]*model.Contribution, error) {
	db := p.collections[collectionContributions]
	seen := make(map[string]bool)
	var (
		out []*model.Contribution
		err error
	)
	if pr.WalletAddress != "" {
		if out, err = decodeContributions(db, "w:"+model.NormalizeWallet(pr.WalletAddress)+":", seen, out); err != nil {
			return nil, err
		}
	}
	if pr.UserID != "" {
		if out, err = decodeContributions(db, "u:"+pr.UserID+":", seen, out); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *PebbleDatabase) CountContributions(projectID string) (int64, error) {
	var n int64
	err := scanPrefix(p.collections[collectionContributions], "p:"+projectID+":", func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// User operations

func (p *PebbleDatabase) SaveUser(u *model.User) error {
	db := p.collections[collectionUsers]
	p.userMu.Lock()
	defer p.userMu.Unlock()

	walletKey := "w:" + u.WalletAddress
	data, closer, err := db.Get([]byte(walletKey))
	switch {
	case err == nil:
		owner := string(data)
		closer.Close()
		if owner != u.ID {
			return ErrDuplicate
		}
	case err != pebble.ErrNotFound:
		return err
	}

	doc, err := json.Marshal(u)
	if err != nil {
		return err
	}
	batch := db.NewBatch()
	defer batch.Close()

	batch.Set([]byte("u:"+u.ID), doc, nil)
	batch.Set([]byte(walletKey), []byte(u.ID), nil)
	return batch.Commit(pebble.Sync)
}

func (p *PebbleDatabase) GetUser(id string) (*model.User, error) {
	var u model.User
	if err := getJSON(p.collections[collectionUsers], "u:"+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *PebbleDatabase) GetUserByWallet(wallet string) (*model.User, error) {
	db := p.collections[collectionUsers]
	data, closer, err := db.Get([]byte("w:" + model.NormalizeWallet(wallet)))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	id := string(data)
	closer.Close()
	return p.GetUser(id)
}

// Mirror outbox operations

func statusKey(w *model.MirrorWrite) string {
	return fmt.Sprintf("s:%s:%019d:%s", w.Status, w.CreatedAt.UnixNano(), w.TxRef)
}

func (p *PebbleDatabase) CreateMirrorWrite(w *model.MirrorWrite) error {
	db := p.collections[collectionMirrorWrites]
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()

	exists, err := has(db, "m:"+w.TxRef)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	batch := db.NewBatch()
	defer batch.Close()

	batch.Set([]byte("m:"+w.TxRef), data, nil)
	batch.Set([]byte(statusKey(w)), []byte(w.TxRef), nil)
	return batch.Commit(pebble.Sync)
}

func (p *PebbleDatabase) GetMirrorWrite(txRef string) (*model.MirrorWrite, error) {
	var w model.MirrorWrite
	if err := getJSON(p.collections[collectionMirrorWrites], "m:"+txRef, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (p *PebbleDatabase) UpdateMirrorWrite(w *model.MirrorWrite) error {
	db := p.collections[collectionMirrorWrites]
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()

	var old model.MirrorWrite
	if err := getJSON(db, "m:"+w.TxRef, &old); err != nil {
		return err
	}
	w.CreatedAt = old.CreatedAt
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	batch := db.NewBatch()
	defer batch.Close()

	batch.Delete([]byte(statusKey(&old)), nil)
	batch.Set([]byte(statusKey(w)), []byte(w.TxRef), nil)
	batch.Set([]byte("m:"+w.TxRef), data, nil)
	return batch.Commit(pebble.Sync)
}

// ListMirrorWrites returns entries in status, oldest first. An empty status
// lists every entry.
func (p *PebbleDatabase) ListMirrorWrites(status model.MirrorStatus, limit int) ([]*model.MirrorWrite, error) {
	db := p.collections[collectionMirrorWrites]
	var out []*model.MirrorWrite
	full := func() bool { return limit > 0 && len(out) >= limit }

	if status == "" {
		err := scanPrefix(db, "m:", func(_, value []byte) error {
			var w model.MirrorWrite
			if err := json.Unmarshal(value, &w); err != nil {
				return err
			}
			out = append(out, &w)
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		if full() {
			out = out[:limit]
		}
		return out, nil
	}

	err := scanPrefix(db, "s:"+string(status)+":", func(_, value []byte) error {
		if full() {
			return nil
		}
		var w model.MirrorWrite
		if err := getJSON(db, "m:"+string(value), &w); err != nil {
			return err
		}
		out = append(out, &w)
		return nil
	})
	return out, err
}

func (p *PebbleDatabase) CountMirrorWrites(status model.MirrorStatus) (int64, error) {
	prefix := "m:"
	if status != "" {
		prefix = "s:" + string(status) + ":"
	}
	var n int64
	err := scanPrefix(p.collections[collectionMirrorWrites], prefix, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

func (p *PebbleDatabase) Close() error {
	var firstErr error
	for name, db := range p.collections {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close collection %s: %w", name, err)
		}
	}
	return firstErr
}
