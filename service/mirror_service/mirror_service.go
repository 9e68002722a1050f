package mirror_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
	model "trust-fund-service/models"
	"trust-fund-service/models/dao"
	"trust-fund-service/node"
)

// Applier performs the mirror side of a chain-confirmed write. The returned
// value is stored as the entry's result. Appliers must be safe to repeat for
// the same entry.
type Applier func(ctx context.Context, w *model.MirrorWrite) (interface{}, error)

// Options reconciler settings
type Options struct {
	MaxAttempts    int  // Automatic attempts before an entry is stalled
	BatchSize      int  // Entries per sweep
	VerifyReceipts bool // Require a successful chain receipt before applying
}

// MirrorService chain-then-mirror outbox. Every write that follows a chain
// transaction is recorded here first and applied to the mirror once; entries
// that cannot be applied yet are retried by the reconciler.
type MirrorService struct {
	writes   *dao.MirrorWriteDAO
	chain    node.ChainReader
	appliers map[model.MirrorKind]Applier
	opts     Options
	now      func() time.Time

	locks    sync.Map // txRef -> *sync.Mutex
	sweeping atomic.Bool
	cron     *cron.Cron
}

// NewMirrorService create outbox service. chain may be nil when receipts are
// not verified.
func NewMirrorService(db database.Database, chain node.ChainReader, opts Options) *MirrorService {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &MirrorService{
		writes:   dao.NewMirrorWriteDAO(db),
		chain:    chain,
		appliers: make(map[model.MirrorKind]Applier),
		opts:     opts,
		now:      time.Now,
	}
}

// Register sets the applier for kind. Not safe to call once serving.
func (s *MirrorService) Register(kind model.MirrorKind, fn Applier) {
	s.appliers[kind] = fn
}

// NewWrite builds a pending outbox entry with payload encoded as JSON.
func NewWrite(kind model.MirrorKind, txRef, projectID, milestoneID string, pr model.Principal, payload interface{}) (*model.MirrorWrite, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &model.MirrorWrite{
		TxRef:       model.NormalizeTxRef(txRef),
		Kind:        kind,
		ProjectID:   projectID,
		MilestoneID: milestoneID,
		Principal:   pr,
		Payload:     raw,
		Status:      model.MirrorStatusPending,
	}, nil
}

// Get returns the outbox entry for txRef.
func (s *MirrorService) Get(txRef string) (*model.MirrorWrite, error) {
	return s.writes.Get(model.NormalizeTxRef(txRef))
}

// Submit records w and tries to apply it right away. The returned entry is
// applied, or still pending (or stalled) when the mirror could not be
// updated yet; a permanent rejection is returned as the error. Submitting
// the same chain reference again resumes the existing entry.
func (s *MirrorService) Submit(ctx context.Context, w *model.MirrorWrite) (*model.MirrorWrite, error) {
	if w.Principal.IsZero() {
		return nil, apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	w.TxRef = model.NormalizeTxRef(w.TxRef)
	if w.TxRef == "" {
		return nil, apperr.New(apperr.CodeValidation, "chainTxRef is required")
	}
	if _, ok := s.appliers[w.Kind]; !ok {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown mirror write kind %q", w.Kind)
	}

	now := s.now().UTC()
	w.Status = model.MirrorStatusPending
	w.Attempts = 0
	w.CreatedAt, w.UpdatedAt = now, now
	err := s.writes.Create(w)
	if errors.Is(err, database.ErrDuplicate) {
		existing, gerr := s.writes.Get(w.TxRef)
		if gerr != nil {
			return nil, gerr
		}
		if !existing.SameRequest(w) {
			return nil, apperr.Newf(apperr.CodeValidation, "chain transaction %s is already recorded for a different write", w.TxRef)
		}
		log.Debugf("Resubmitted %s %s (%s)", existing.Kind, existing.TxRef, existing.Status)
		w = existing
	} else if err != nil {
		return nil, err
	}
	return s.attempt(ctx, w.TxRef, false)
}

func (s *MirrorService) lock(txRef string) func() {
	mu, _ := s.locks.LoadOrStore(txRef, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// attempt applies the entry once unless it is already done. The state is
// reloaded under the entry lock so concurrent submits and sweeps apply it at
// most once. A stalled entry gets a fresh attempt budget when unstall is set.
func (s *MirrorService) attempt(ctx context.Context, txRef string, unstall bool) (*model.MirrorWrite, error) {
	unlock := s.lock(txRef)
	defer unlock()

	w, err := s.writes.Get(txRef)
	if err != nil {
		return nil, err
	}
	if w.Done() {
		return w, doneError(w)
	}
	if unstall && w.Status == model.MirrorStatusStalled {
		w.Status = model.MirrorStatusPending
		w.Attempts = 0
	}

	if s.opts.VerifyReceipts {
		if perr := s.verify(ctx, w); perr != nil {
			if apperr.Retryable(perr) && !errors.Is(perr, errReverted) {
				return w, s.retryLater(w, perr)
			}
			return w, s.fail(w, perr)
		}
	}

	result, aerr := s.appliers[w.Kind](ctx, w)
	if aerr != nil {
		if apperr.Retryable(aerr) {
			return w, s.retryLater(w, aerr)
		}
		return w, s.fail(w, aerr)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return w, s.retryLater(w, apperr.Internal(err))
	}
	w.Attempts++
	w.Status = model.MirrorStatusApplied
	w.LastError = ""
	w.Result = raw
	w.UpdatedAt = s.now().UTC()
	if err := s.writes.Update(w); err != nil {
		// Applied but not marked; the next attempt replays an idempotent write.
		log.Errorf("Mark %s applied: %v", w.TxRef, err)
		return w, nil
	}
	log.Infof("Mirrored %s %s for project %s after %d attempt(s)", w.Kind, w.TxRef, w.ProjectID, w.Attempts)
	return w, nil
}

var errReverted = errors.New("transaction reverted")

// verify checks the chain receipt. A receipt that is not available yet is
// retryable; a reverted or foreign transaction is permanent.
func (s *MirrorService) verify(ctx context.Context, w *model.MirrorWrite) error {
	if s.chain == nil {
		return apperr.New(apperr.CodeUpstreamFailure, "chain client not configured")
	}
	rc, err := s.chain.TransactionReceipt(ctx, w.TxRef)
	if err != nil {
		if apperr.IsCategory(err, apperr.CategoryNotFound) {
			return apperr.Newf(apperr.CodeUpstreamFailure, "no receipt for %s yet", w.TxRef)
		}
		return err
	}
	switch rc.Status {
	case node.ReceiptReverted:
		return apperr.Wrap(apperr.CodeUpstreamFailure, "chain transaction "+w.TxRef+" reverted", errReverted)
	case node.ReceiptNotFound:
		return apperr.Newf(apperr.CodeUpstreamFailure, "no receipt for %s yet", w.TxRef)
	}
	if rc.From != "" && model.NormalizeWallet(rc.From) != w.Principal.WalletAddress {
		return apperr.Newf(apperr.CodeForbidden, "chain transaction %s was sent by another wallet", w.TxRef)
	}
	return nil
}

// retryLater records a transient failure. The entry stays pending until it
// runs out of attempts.
func (s *MirrorService) retryLater(w *model.MirrorWrite, cause error) error {
	w.Attempts++
	w.LastError = cause.Error()
	w.UpdatedAt = s.now().UTC()
	if w.Attempts >= s.opts.MaxAttempts {
		if w.Status != model.MirrorStatusStalled {
			log.Warnf("Mirror write %s stalled after %d attempts: %v", w.TxRef, w.Attempts, cause)
		}
		w.Status = model.MirrorStatusStalled
	} else {
		log.Debugf("Mirror write %s not applied (attempt %d): %v", w.TxRef, w.Attempts, cause)
	}
	return s.writes.Update(w)
}

func (s *MirrorService) fail(w *model.MirrorWrite, cause error) error {
	w.Attempts++
	w.Status = model.MirrorStatusFailed
	w.LastError = apperr.PublicMessage(cause)
	w.UpdatedAt = s.now().UTC()
	log.Warnf("Mirror write %s %s rejected: %v", w.Kind, w.TxRef, cause)
	if err := s.writes.Update(w); err != nil {
		return err
	}
	return cause
}

func doneError(w *model.MirrorWrite) error {
	if w.Status == model.MirrorStatusFailed {
		return apperr.Newf(apperr.CodeInvalidState, "chain transaction %s was rejected by the mirror: %s", w.TxRef, w.LastError)
	}
	return nil
}

// Report outcome of one reconciliation sweep
type Report struct {
	Scanned int `json:"scanned"`
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
	Stalled int `json:"stalled"`
}

func (r Report) String() string {
	return fmt.Sprintf("scanned %d, applied %d, failed %d, pending %d, stalled %d",
		r.Scanned, r.Applied, r.Failed, r.Pending, r.Stalled)
}

// Pending returns the entries a sweep would pick up.
func (s *MirrorService) Pending(includeStalled bool) ([]*model.MirrorWrite, error) {
	ws, err := s.writes.List(model.MirrorStatusPending, s.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if includeStalled {
		stalled, err := s.writes.List(model.MirrorStatusStalled, s.opts.BatchSize)
		if err != nil {
			return nil, err
		}
		ws = append(ws, stalled...)
	}
	return ws, nil
}

// Reconcile retries pending entries, and stalled ones when asked. onEach,
// if set, is called after every entry.
func (s *MirrorService) Reconcile(ctx context.Context, includeStalled bool, onEach func(*model.MirrorWrite)) (Report, error) {
	var rep Report
	ws, err := s.Pending(includeStalled)
	if err != nil {
		return rep, err
	}
	for _, w := range ws {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		cur, aerr := s.attempt(ctx, w.TxRef, includeStalled)
		if cur == nil {
			return rep, aerr
		}
		switch cur.Status {
		case model.MirrorStatusApplied:
			rep.Applied++
		case model.MirrorStatusFailed:
			rep.Failed++
		case model.MirrorStatusStalled:
			rep.Stalled++
		default:
			rep.Pending++
		}
		if onEach != nil {
			onEach(cur)
		}
	}
	return rep, nil
}

// StartReconciler runs a sweep on the cron spec (e.g. "@every 15s").
// Overlapping runs are skipped.
func (s *MirrorService) StartReconciler(spec string) error {
	c := cron.New()
	err := c.AddFunc(spec, func() {
		if !s.sweeping.CompareAndSwap(false, true) {
			return
		}
		defer s.sweeping.Store(false)

		rep, err := s.Reconcile(context.Background(), false, nil)
		if err != nil {
			log.Errorf("Mirror reconcile: %v", err)
			return
		}
		if rep.Scanned > 0 {
			log.Infof("Mirror reconcile: %v", rep)
		}
	})
	if err != nil {
		return fmt.Errorf("reconciler schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	log.Infof("Mirror reconciler scheduled %s", spec)
	return nil
}

// Stop stops the reconciler schedule.
func (s *MirrorService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Backlog counts entries by status.
type Backlog struct {
	Pending int64 `json:"pending"`
	Stalled int64 `json:"stalled"`
	Failed  int64 `json:"failed"`
}

// ChainStatus chain head and outbox backlog
type ChainStatus struct {
	BlockNumber uint64  `json:"blockNumber"`
	ChainError  string  `json:"chainError,omitempty"`
	Backlog     Backlog `json:"backlog"`
}

// Status reports the chain head and the outbox backlog. A chain that
// cannot be reached is reported, not returned as an error.
func (s *MirrorService) Status(ctx context.Context) (*ChainStatus, error) {
	out := &ChainStatus{}
	var err error
	if out.Backlog.Pending, err = s.writes.Count(model.MirrorStatusPending); err != nil {
		return nil, err
	}
	if out.Backlog.Stalled, err = s.writes.Count(model.MirrorStatusStalled); err != nil {
		return nil, err
	}
	if out.Backlog.Failed, err = s.writes.Count(model.MirrorStatusFailed); err != nil {
		return nil, err
	}
	if s.chain == nil {
		out.ChainError = "chain client not configured"
		return out, nil
	}
	if out.BlockNumber, err = s.chain.BlockNumber(ctx); err != nil {
		out.ChainError = apperr.PublicMessage(err)
	}
	return out, nil
}
