package mirror_service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	"trust-fund-service/database"
	"trust-fund-service/database/dbtest"
	model "trust-fund-service/models"
	"trust-fund-service/node"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/project_service"
)

var (
	owner  = model.NewPrincipal("0x00000000000000000000000000000000000000aa", "")
	backer = model.NewPrincipal("0x00000000000000000000000000000000000000bb", "")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeChain serves receipts from a map; missing hashes are not mined yet.
type fakeChain struct {
	mu       sync.Mutex
	receipts map[string]*node.Receipt
	err      error
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash string) (*node.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	rc, ok := c.receipts[hash]
	if !ok {
		return &node.Receipt{TxHash: hash, Status: node.ReceiptNotFound}, nil
	}
	return rc, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	return 42, nil
}

func (c *fakeChain) mine(hash string, status node.ReceiptStatus, from string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[hash] = &node.Receipt{TxHash: hash, Status: status, BlockNumber: 7, From: from}
}

type env struct {
	db      database.Database
	chain   *fakeChain
	mirror  *MirrorService
	ledger  *ledger_service.LedgerService
	project *model.Project
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	db := dbtest.NewPebble(t)
	chain := &fakeChain{receipts: map[string]*node.Receipt{}}
	ledger := ledger_service.NewLedgerService(db)
	projects := project_service.NewProjectService(db, ledger, model.DefaultVoteParams)
	p, err := projects.Create(owner, model.ProjectDraft{
		Title: "Bridge", TargetAmount: dec("10"), Description: "crossing",
		Milestones: []model.MilestoneDraft{{Title: "piers", Order: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := NewMirrorService(db, chain, opts)
	m.RegisterAppliers(ledger, projects)
	return &env{db: db, chain: chain, mirror: m, ledger: ledger, project: p}
}

func (e *env) contribution(t *testing.T, txRef, amount string) *model.MirrorWrite {
	t.Helper()
	w, err := NewWrite(model.MirrorKindContribution, txRef, e.project.ID, "", backer, ContributionPayload{Amount: dec(amount)})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func (e *env) total(t *testing.T) decimal.Decimal {
	t.Helper()
	total, err := e.ledger.TotalFor(e.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	return total
}

func TestSubmitAppliesConfirmedContribution(t *testing.T) {
	e := newEnv(t, Options{VerifyReceipts: true})
	e.chain.mine("0xaa01", node.ReceiptSuccess, backer.WalletAddress)

	w, err := e.mirror.Submit(context.Background(), e.contribution(t, "0xAA01", "4"))
	if err != nil {
		t.Fatal(err)
	}
	if w.Status != model.MirrorStatusApplied || w.Attempts != 1 {
		t.Fatalf("entry %s after %d attempts", w.Status, w.Attempts)
	}
	var res ContributionResult
	if err := json.Unmarshal(w.Result, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Funding.CurrentAmount.Equal(dec("4")) || res.Contribution.ChainTxRef != "0xaa01" {
		t.Fatalf("result %+v", res)
	}

	// Resubmitting is a no-op.
	again, err := e.mirror.Submit(context.Background(), e.contribution(t, "0xaa01", "4"))
	if err != nil || again.Status != model.MirrorStatusApplied {
		t.Fatalf("resubmit %v %v", again, err)
	}
	if got := e.total(t); !got.Equal(dec("4")) {
		t.Fatalf("total %s after resubmit", got)
	}
}

func TestRevertedReceiptNeverReachesMirror(t *testing.T) {
	e := newEnv(t, Options{VerifyReceipts: true})
	e.chain.mine("0xdead", node.ReceiptReverted, backer.WalletAddress)

	w, err := e.mirror.Submit(context.Background(), e.contribution(t, "0xdead", "4"))
	if !apperr.IsCategory(err, apperr.CategoryUpstreamFailure) {
		t.Fatalf("got %v", err)
	}
	if w.Status != model.MirrorStatusFailed {
		t.Fatalf("status %s", w.Status)
	}
	if got := e.total(t); !got.IsZero() {
		t.Fatalf("reverted transfer mirrored: %s", got)
	}

	rep, err := e.mirror.Reconcile(context.Background(), true, nil)
	if err != nil || rep.Scanned != 0 {
		t.Fatalf("failed entry swept again: %v %v", rep, err)
	}
}

func TestForeignSenderRejected(t *testing.T) {
	e := newEnv(t, Options{VerifyReceipts: true})
	e.chain.mine("0xbeef", node.ReceiptSuccess, owner.WalletAddress)

	_, err := e.mirror.Submit(context.Background(), e.contribution(t, "0xbeef", "1"))
	if !apperr.IsCategory(err, apperr.CategoryForbidden) {
		t.Fatalf("got %v", err)
	}
}

func TestUnminedStaysPendingUntilReconciled(t *testing.T) {
	e := newEnv(t, Options{VerifyReceipts: true})

	w, err := e.mirror.Submit(context.Background(), e.contribution(t, "0xc0de", "6"))
	if err != nil {
		t.Fatal(err)
	}
	if w.Status != model.MirrorStatusPending || w.LastError == "" {
		t.Fatalf("entry %+v", w)
	}

	e.chain.mine("0xc0de", node.ReceiptSuccess, backer.WalletAddress)
	var seen []string
	rep, err := e.mirror.Reconcile(context.Background(), false, func(w *model.MirrorWrite) {
		seen = append(seen, w.TxRef)
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Applied != 1 || len(seen) != 1 {
		t.Fatalf("report %v, seen %v", rep, seen)
	}
	if got := e.total(t); !got.Equal(dec("6")) {
		t.Fatalf("total %s", got)
	}
}

func TestRetryAppliesExactlyOnce(t *testing.T) {
	e := newEnv(t, Options{MaxAttempts: 5})

	var mu sync.Mutex
	calls, failures := 0, 2
	e.mirror.Register(model.MirrorKindContribution, func(ctx context.Context, w *model.MirrorWrite) (interface{}, error) {
		mu.Lock()
		calls++
		fail := calls <= failures
		mu.Unlock()
		if fail {
			return nil, apperr.Internal(errors.New("mirror store unavailable"))
		}
		var p ContributionPayload
		if err := decode(w, &p); err != nil {
			return nil, err
		}
		c, _, err := e.ledger.Record(w.ProjectID, w.Principal, p.Amount, w.TxRef)
		return c, err
	})

	w, err := e.mirror.Submit(context.Background(), e.contribution(t, "0x0101", "3"))
	if err != nil || w.Status != model.MirrorStatusPending {
		t.Fatalf("first attempt %v %v", w, err)
	}

	// Concurrent sweeps and a client retry race for the same entry.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.mirror.Reconcile(context.Background(), false, nil)
		}()
	}
	retry := e.contribution(t, "0x0101", "3")
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.mirror.Submit(context.Background(), retry)
	}()
	wg.Wait()
	e.mirror.Reconcile(context.Background(), false, nil)

	got, err := e.mirror.Get("0x0101")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.MirrorStatusApplied {
		t.Fatalf("status %s after %d calls", got.Status, calls)
	}
	if calls != failures+1 {
		t.Fatalf("applier called %d times", calls)
	}
	if total := e.total(t); !total.Equal(dec("3")) {
		t.Fatalf("total %s", total)
	}
}

func TestStallAndManualRetry(t *testing.T) {
	e := newEnv(t, Options{MaxAttempts: 2, VerifyReceipts: true})
	e.chain.err = apperr.New(apperr.CodeUpstreamFailure, "node down")

	e.mirror.Submit(context.Background(), e.contribution(t, "0x5151", "2"))
	rep, err := e.mirror.Reconcile(context.Background(), false, nil)
	if err != nil || rep.Stalled != 1 {
		t.Fatalf("report %v %v", rep, err)
	}
	rep, _ = e.mirror.Reconcile(context.Background(), false, nil)
	if rep.Scanned != 0 {
		t.Fatalf("stalled entry retried automatically: %v", rep)
	}

	st, err := e.mirror.Status(context.Background())
	if err != nil || st.Backlog.Stalled != 1 || st.BlockNumber != 42 {
		t.Fatalf("status %+v %v", st, err)
	}

	e.chain.err = nil
	e.chain.mine("0x5151", node.ReceiptSuccess, backer.WalletAddress)
	rep, err = e.mirror.Reconcile(context.Background(), true, nil)
	if err != nil || rep.Applied != 1 {
		t.Fatalf("manual retry %v %v", rep, err)
	}
}

func TestSubmitRejects(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()

	w := e.contribution(t, "", "1")
	if _, err := e.mirror.Submit(ctx, w); !apperr.IsCategory(err, apperr.CategoryValidation) {
		t.Fatalf("missing tx: %v", err)
	}
	w = e.contribution(t, "0x01", "1")
	w.Principal = model.Principal{}
	if _, err := e.mirror.Submit(ctx, w); !apperr.IsCategory(err, apperr.CategoryUnauthenticated) {
		t.Fatalf("anonymous: %v", err)
	}
	w = e.contribution(t, "0x01", "1")
	w.Kind = "airdrop"
	if _, err := e.mirror.Submit(ctx, w); !apperr.IsCategory(err, apperr.CategoryValidation) {
		t.Fatalf("unknown kind: %v", err)
	}

	if _, err := e.mirror.Submit(ctx, e.contribution(t, "0x02", "1")); err != nil {
		t.Fatal(err)
	}
	vote, _ := NewWrite(model.MirrorKindVote, "0x02", e.project.ID, e.project.Milestones[0].ID, backer, VotePayload{Choice: model.VoteYes})
	if _, err := e.mirror.Submit(ctx, vote); !apperr.IsCategory(err, apperr.CategoryValidation) {
		t.Fatalf("reused tx for another write: %v", err)
	}

	bad := e.contribution(t, "0x03", "0")
	got, err := e.mirror.Submit(ctx, bad)
	if apperr.CodeOf(err) != apperr.CodeInvalidAmount || got.Status != model.MirrorStatusFailed {
		t.Fatalf("bad amount: %v %v", got, err)
	}
}

func TestVoteAndResolutionAppliers(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	mid := e.project.Milestones[0].ID

	if _, err := e.mirror.Submit(ctx, e.contribution(t, "0xf1", "5")); err != nil {
		t.Fatal(err)
	}
	projects := project_service.NewProjectService(e.db, e.ledger, model.DefaultVoteParams)
	if _, err := projects.RequestCompletion(e.project.ID, mid, owner, "done", ""); err != nil {
		t.Fatal(err)
	}

	vote, _ := NewWrite(model.MirrorKindVote, "0xf2", e.project.ID, mid, backer, VotePayload{Choice: model.VoteYes})
	w, err := e.mirror.Submit(ctx, vote)
	if err != nil || w.Status != model.MirrorStatusApplied {
		t.Fatalf("vote %v %v", w, err)
	}
	var view model.TallyView
	json.Unmarshal(w.Result, &view)
	if view.YesCount != 1 || !view.YesAmount.Equal(dec("5")) {
		t.Fatalf("tally %+v", view.Tally)
	}

	res, _ := NewWrite(model.MirrorKindMilestoneResolution, "0xf3", e.project.ID, mid, owner, ResolutionPayload{Outcome: model.MilestoneStatusApproved})
	if w, err = e.mirror.Submit(ctx, res); err != nil || w.Status != model.MirrorStatusApplied {
		t.Fatalf("resolution %v %v", w, err)
	}
	link, _ := NewWrite(model.MirrorKindChainLink, "0xf4", e.project.ID, "", owner, ChainLinkPayload{ChainProjectID: 3})
	if w, err = e.mirror.Submit(ctx, link); err != nil || w.Status != model.MirrorStatusApplied {
		t.Fatalf("link %v %v", w, err)
	}
	d, _ := projects.Detail(e.project.ID, owner)
	if d.ChainProjectID == nil || *d.ChainProjectID != 3 || d.Milestones[0].Status != model.MilestoneStatusApproved {
		t.Fatalf("project %+v", d.Project)
	}
}

func openVote(t *testing.T, e *env) (*project_service.ProjectService, string) {
	t.Helper()
	projects := project_service.NewProjectService(e.db, e.ledger, model.DefaultVoteParams)
	mid := e.project.Milestones[0].ID
	if _, err := projects.RequestCompletion(e.project.ID, mid, owner, "done", ""); err != nil {
		t.Fatal(err)
	}
	return projects, mid
}

func reconcileTwice(t *testing.T, e *env) {
	t.Helper()
	for i := 0; i < 2; i++ {
		if _, err := e.mirror.Reconcile(context.Background(), false, nil); err != nil {
			t.Fatal(err)
		}
	}
}

func TestVoteAheadOfContributionIsRetried(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Options{VerifyReceipts: true})
	projects, mid := openVote(t, e)

	e.chain.err = apperr.New(apperr.CodeUpstreamFailure, "node timeout")
	c, err := e.mirror.Submit(ctx, e.contribution(t, "0xc1", "4"))
	if err != nil || c.Status != model.MirrorStatusPending {
		t.Fatalf("contribution %+v %v", c, err)
	}
	e.chain.err = nil
	e.chain.mine("0xc1", node.ReceiptSuccess, backer.WalletAddress)
	e.chain.mine("0xc2", node.ReceiptSuccess, backer.WalletAddress)

	vote, _ := NewWrite(model.MirrorKindVote, "0xc2", e.project.ID, mid, backer, VotePayload{Choice: model.VoteYes})
	w, err := e.mirror.Submit(ctx, vote)
	if err != nil || w.Status != model.MirrorStatusPending {
		t.Fatalf("vote ahead of contribution: %+v %v", w, err)
	}

	reconcileTwice(t, e)
	for _, ref := range []string{"0xc1", "0xc2"} {
		if got, _ := e.mirror.Get(ref); got.Status != model.MirrorStatusApplied {
			t.Fatalf("%s: %+v", ref, got)
		}
	}
	view, err := projects.Tally(e.project.ID, mid, backer)
	if err != nil {
		t.Fatal(err)
	}
	if view.YesCount != 1 || !view.YesAmount.Equal(dec("4")) {
		t.Fatalf("tally %+v", view.Tally)
	}
}

func TestUnverifiedVoteWaitsOnlyForContributionInFlight(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, Options{})
	projects, mid := openVote(t, e)

	stray, _ := NewWrite(model.MirrorKindVote, "0xd1", e.project.ID, mid, backer, VotePayload{Choice: model.VoteYes})
	if _, err := e.mirror.Submit(ctx, stray); apperr.CodeOf(err) != apperr.CodeNotBacker {
		t.Fatalf("vote without contribution: %v", err)
	}
	if got, _ := e.mirror.Get("0xd1"); got.Status != model.MirrorStatusFailed {
		t.Fatalf("stray vote %+v", got)
	}

	apply := e.mirror.appliers[model.MirrorKindContribution]
	down := true
	e.mirror.Register(model.MirrorKindContribution, func(ctx context.Context, w *model.MirrorWrite) (interface{}, error) {
		if down {
			return nil, apperr.Internal(errors.New("mirror store unavailable"))
		}
		return apply(ctx, w)
	})
	if c, err := e.mirror.Submit(ctx, e.contribution(t, "0xd2", "3")); err != nil || c.Status != model.MirrorStatusPending {
		t.Fatalf("contribution %+v %v", c, err)
	}
	weight := dec("3")
	vote, _ := NewWrite(model.MirrorKindVote, "0xd3", e.project.ID, mid, backer, VotePayload{Choice: model.VoteNo, Amount: &weight})
	if w, err := e.mirror.Submit(ctx, vote); err != nil || w.Status != model.MirrorStatusPending {
		t.Fatalf("vote %+v %v", w, err)
	}

	down = false
	reconcileTwice(t, e)
	view, err := projects.Tally(e.project.ID, mid, backer)
	if err != nil {
		t.Fatal(err)
	}
	if view.NoCount != 1 || !view.NoAmount.Equal(weight) {
		t.Fatalf("tally %+v", view.Tally)
	}
}

func TestStartReconcilerRejectsBadSpec(t *testing.T) {
	e := newEnv(t, Options{})
	if err := e.mirror.StartReconciler("every now and then"); err == nil {
		t.Fatal("expected error")
	}
	if err := e.mirror.StartReconciler("@every 1h"); err != nil {
		t.Fatal(err)
	}
	e.mirror.Stop()
}
