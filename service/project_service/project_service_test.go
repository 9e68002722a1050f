package project_service

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	"trust-fund-service/database/dbtest"
	model "trust-fund-service/models"
	"trust-fund-service/service/ledger_service"
)

var (
	owner    = model.NewPrincipal("0x00000000000000000000000000000000000000aa", "u-owner")
	backerA  = model.NewPrincipal("0x00000000000000000000000000000000000000bb", "")
	backerB  = model.NewPrincipal("0x00000000000000000000000000000000000000cc", "")
	stranger = model.NewPrincipal("0x00000000000000000000000000000000000000dd", "")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc    *ProjectService
	ledger *ledger_service.LedgerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.NewPebble(t)
	ledger := ledger_service.NewLedgerService(db)
	svc := NewProjectService(db, ledger, model.DefaultVoteParams)
	n := 0
	svc.newID = func() string { n++; return fmt.Sprintf("id-%03d", n) }
	return &fixture{svc: svc, ledger: ledger}
}

func (f *fixture) create(t *testing.T, target string, orders ...int) *model.Project {
	t.Helper()
	d := model.ProjectDraft{Title: "Library", TargetAmount: dec(target), Description: "books for everyone"}
	for _, o := range orders {
		d.Milestones = append(d.Milestones, model.MilestoneDraft{Title: fmt.Sprintf("m%d", o), Order: o})
	}
	p, err := f.svc.Create(owner, d)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) fund(t *testing.T, id string, pr model.Principal, amount string) {
	t.Helper()
	if _, _, err := f.ledger.Record(id, pr, dec(amount), ""); err != nil {
		t.Fatal(err)
	}
}

func TestCreateRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(model.Principal{}, model.ProjectDraft{Title: "x", TargetAmount: dec("1"), Description: "y"})
	if !apperr.IsCategory(err, apperr.CategoryUnauthenticated) {
		t.Fatalf("got %v", err)
	}
}

func TestDetailPromotesAndShowsViewer(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "10", 1)
	f.fund(t, p.ID, backerA, "6")

	list, total, err := f.svc.List("", 1, 10)
	if err != nil || total != 1 || list[0].Progress != 60 {
		t.Fatalf("list %v %d %v", list, total, err)
	}

	f.fund(t, p.ID, backerB, "5")
	d, err := f.svc.Detail(p.ID, backerA)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != model.ProjectStatusCompleted || d.Progress != 100 || !d.CurrentAmount.Equal(dec("11")) {
		t.Fatalf("detail %s %d %s", d.Status, d.Progress, d.CurrentAmount)
	}
	if d.MyAmount == nil || !d.MyAmount.Equal(dec("6")) || d.IsOwner {
		t.Fatalf("viewer fields %v %v", d.MyAmount, d.IsOwner)
	}

	anon, err := f.svc.Detail(p.ID, model.Principal{})
	if err != nil || anon.MyAmount != nil {
		t.Fatalf("anonymous detail %v %v", anon.MyAmount, err)
	}
	if _, err := f.svc.Detail("nope", owner); apperr.CodeOf(err) != apperr.CodeProjectNotFound {
		t.Fatalf("got %v", err)
	}
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, "10")
	}
	page, total, err := f.svc.List("funding", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("total %d, page %d", total, len(page))
	}
	if _, _, err := f.svc.List("bogus", 1, 10); !apperr.IsCategory(err, apperr.CategoryValidation) {
		t.Fatalf("got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "10", 1)

	title := "Bigger library"
	if _, err := f.svc.Update(p.ID, stranger, ProjectUpdate{Title: &title}); !apperr.IsCategory(err, apperr.CategoryForbidden) {
		t.Fatalf("stranger update: %v", err)
	}
	padded := "  " + title + "\n"
	got, err := f.svc.Update(p.ID, owner, ProjectUpdate{Title: &padded})
	if err != nil || got.Title != title {
		t.Fatalf("%v %v", got, err)
	}
	blank := "   "
	for name, u := range map[string]ProjectUpdate{
		"blank title":       {Title: &blank},
		"blank description": {Description: &blank},
	} {
		if _, err := f.svc.Update(p.ID, owner, u); !apperr.IsCategory(err, apperr.CategoryValidation) {
			t.Fatalf("%s: %v", name, err)
		}
	}

	done := "COMPLETED"
	if _, err := f.svc.Update(p.ID, owner, ProjectUpdate{Status: &done}); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("manual completion: %v", err)
	}

	if _, err := f.svc.LinkChain(p.ID, owner, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.LinkChain(p.ID, owner, 8); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("relink: %v", err)
	}
	target := dec("20")
	if _, err := f.svc.Update(p.ID, owner, ProjectUpdate{TargetAmount: &target}); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("target change on chain: %v", err)
	}

	cancel := "cancelled"
	got, err = f.svc.Update(p.ID, owner, ProjectUpdate{Status: &cancel})
	if err != nil || got.Status != model.ProjectStatusCancelled {
		t.Fatalf("%v %v", got, err)
	}
}

func TestDeleteRefusedOnceFunded(t *testing.T) {
	f := newFixture(t)
	funded := f.create(t, "10")
	empty := f.create(t, "10")
	f.fund(t, funded.ID, backerA, "1")

	if err := f.svc.Delete(empty.ID, stranger); !apperr.IsCategory(err, apperr.CategoryForbidden) {
		t.Fatalf("stranger delete: %v", err)
	}
	if err := f.svc.Delete(funded.ID, owner); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("funded delete: %v", err)
	}
	if err := f.svc.Delete(empty.ID, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Detail(empty.ID, owner); !apperr.IsCategory(err, apperr.CategoryNotFound) {
		t.Fatalf("deleted project still readable: %v", err)
	}
}

func TestRequestCompletionOwnerOnly(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "10", 1)
	mid := p.Milestones[0].ID

	_, err := f.svc.RequestCompletion(p.ID, mid, stranger, "done", "ipfs://x")
	if !apperr.IsCategory(err, apperr.CategoryForbidden) {
		t.Fatalf("got %v", err)
	}
	info, err := f.svc.CompletionInfo(p.ID, mid)
	if err != nil {
		t.Fatal(err)
	}
	if info.RequestSent || info.CompletionDetail != "" {
		t.Fatalf("milestone changed by a stranger: %+v", info)
	}

	m, err := f.svc.RequestCompletion(p.ID, mid, owner, "walls are up", "ipfs://proof")
	if err != nil {
		t.Fatal(err)
	}
	if !m.RequestSent || m.Status != model.MilestoneStatusPending {
		t.Fatalf("milestone %+v", m)
	}
	if _, err := f.svc.RequestCompletion(p.ID, "missing", owner, "x", ""); apperr.CodeOf(err) != apperr.CodeMilestoneNotFound {
		t.Fatalf("got %v", err)
	}
}

func TestCompletionInfoIndexIsPosition(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "10", 1, 2, 3, 4)

	info, err := f.svc.CompletionInfo(p.ID, p.Milestones[2].ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Order != 3 || info.MilestoneIndex != 2 {
		t.Fatalf("order %d index %d", info.Order, info.MilestoneIndex)
	}
}

func TestCastVote(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "100", 1)
	mid := p.Milestones[0].ID
	f.fund(t, p.ID, backerA, "3")
	f.fund(t, p.ID, backerB, "5")

	if _, err := f.svc.CastVote(p.ID, mid, backerA, model.VoteYes, nil, ""); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("vote before request: %v", err)
	}
	if _, err := f.svc.RequestCompletion(p.ID, mid, owner, "done", ""); err != nil {
		t.Fatal(err)
	}

	view, err := f.svc.CastVote(p.ID, mid, backerA, model.VoteYes, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if view.YesCount != 1 || !view.YesAmount.Equal(dec("3")) || !view.HasVoted {
		t.Fatalf("tally %+v", view.Tally)
	}

	_, err = f.svc.CastVote(p.ID, mid, backerA, model.VoteNo, nil, "")
	if !apperr.IsCategory(err, apperr.CategoryDuplicateVote) {
		t.Fatalf("second vote: %v", err)
	}
	after, err := f.svc.Tally(p.ID, mid, backerA)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(view.Tally, after.Tally); diff != "" {
		t.Fatalf("duplicate vote changed tally (-want +got):\n%s", diff)
	}

	for name, tc := range map[string]struct {
		pr  model.Principal
		cat apperr.Category
	}{
		"owner":      {owner, apperr.CategoryForbidden},
		"non-backer": {stranger, apperr.CategoryForbidden},
		"anonymous":  {model.Principal{}, apperr.CategoryUnauthenticated},
	} {
		if _, err := f.svc.CastVote(p.ID, mid, tc.pr, model.VoteYes, nil, ""); !apperr.IsCategory(err, tc.cat) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
	zero := decimal.Zero
	if _, err := f.svc.CastVote(p.ID, mid, backerB, model.VoteNo, &zero, ""); apperr.CodeOf(err) != apperr.CodeInvalidAmount {
		t.Fatalf("zero weight: %v", err)
	}
	tooMuch := dec("5.000001")
	if _, err := f.svc.CastVote(p.ID, mid, backerB, model.VoteNo, &tooMuch, ""); apperr.CodeOf(err) != apperr.CodeInvalidAmount {
		t.Fatalf("weight above contribution: %v", err)
	}
	part := dec("2")
	view, err = f.svc.CastVote(p.ID, mid, backerB, model.VoteNo, &part, "")
	if err != nil {
		t.Fatal(err)
	}
	if view.NoCount != 1 || !view.NoAmount.Equal(part) {
		t.Fatalf("partial weight %+v", view.Tally)
	}
}

func TestDetailShowsParticipationAndVotes(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "100", 1, 2)
	first, second := p.Milestones[0].ID, p.Milestones[1].ID
	f.fund(t, p.ID, backerA, "4")
	if _, err := f.svc.RequestCompletion(p.ID, first, owner, "done", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CastVote(p.ID, first, backerA, model.VoteYes, nil, ""); err != nil {
		t.Fatal(err)
	}

	type seen struct {
		Participated bool
		Voted        []bool
	}
	view := func(pr model.Principal) seen {
		t.Helper()
		d, err := f.svc.Detail(p.ID, pr)
		if err != nil {
			t.Fatal(err)
		}
		s := seen{Participated: d.HasParticipated}
		for _, m := range d.Milestones {
			s.Voted = append(s.Voted, m.HasVoted)
		}
		return s
	}
	tests := []struct {
		name string
		pr   model.Principal
		want seen
	}{
		{"backer who voted", backerA, seen{true, []bool{true, false}}},
		{"stranger", stranger, seen{false, []bool{false, false}}},
		{"owner", owner, seen{false, []bool{false, false}}},
		{"anonymous", model.Principal{}, seen{false, []bool{false, false}}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, view(tc.pr)); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tc.name, diff)
		}
	}

	d, err := f.svc.Detail(p.ID, model.Principal{})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		HasParticipated *bool `json:"hasParticipated"`
		Milestones      []struct {
			ID       string `json:"id"`
			HasVoted *bool  `json:"hasVoted"`
		} `json:"milestones"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.HasParticipated == nil || len(doc.Milestones) != 2 || doc.Milestones[1].ID != second || doc.Milestones[0].HasVoted == nil {
		t.Fatalf("detail json %s", raw)
	}
}

func TestCastVoteReplayedTxIsNoop(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "10", 1)
	mid := p.Milestones[0].ID
	f.fund(t, p.ID, backerA, "4")
	f.svc.RequestCompletion(p.ID, mid, owner, "done", "")

	w := dec("4")
	first, err := f.svc.CastVote(p.ID, mid, backerA, model.VoteYes, &w, "0xVOTE")
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.svc.CastVote(p.ID, mid, backerA, model.VoteYes, &w, "0xvote")
	if err != nil {
		t.Fatal(err)
	}
	if again.YesCount != 1 || !again.YesAmount.Equal(first.YesAmount) {
		t.Fatalf("replay changed tally: %+v", again.Tally)
	}
	if again.Projected != model.MilestoneStatusApproved {
		t.Fatalf("projected %s", again.Projected)
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, "10", 1)
	mid := p.Milestones[0].ID
	f.svc.RequestCompletion(p.ID, mid, owner, "done", "")

	if _, err := f.svc.Resolve(p.ID, mid, stranger, model.MilestoneStatusApproved, "0x1"); !apperr.IsCategory(err, apperr.CategoryForbidden) {
		t.Fatalf("stranger resolve: %v", err)
	}
	if _, err := f.svc.Resolve(p.ID, mid, owner, model.MilestoneStatusApproved, ""); !apperr.IsCategory(err, apperr.CategoryValidation) {
		t.Fatalf("missing tx: %v", err)
	}
	m, err := f.svc.Resolve(p.ID, mid, owner, model.MilestoneStatusApproved, "0x1")
	if err != nil || m.Status != model.MilestoneStatusApproved {
		t.Fatalf("%v %v", m, err)
	}
	if _, err := f.svc.Resolve(p.ID, mid, owner, model.MilestoneStatusApproved, "0x1"); err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if _, err := f.svc.Resolve(p.ID, mid, owner, model.MilestoneStatusRejected, "0x2"); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("flip outcome: %v", err)
	}
}
