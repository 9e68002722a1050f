package dashboard_service

import (
	"testing"

	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
	"trust-fund-service/database/dbtest"
	model "trust-fund-service/models"
	"trust-fund-service/service/ledger_service"
	"trust-fund-service/service/project_service"
)

var (
	alice = model.NewPrincipal("0x00000000000000000000000000000000000000a1", "u-alice")
	bob   = model.NewPrincipal("0x00000000000000000000000000000000000000b2", "")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDashboard(t *testing.T) {
	db := dbtest.NewPebble(t)
	ledger := ledger_service.NewLedgerService(db)
	projects := project_service.NewProjectService(db, ledger, model.DefaultVoteParams)
	dash := NewDashboardService(db, ledger)

	mk := func(owner model.Principal, target string) *model.Project {
		p, err := projects.Create(owner, model.ProjectDraft{Title: "t", TargetAmount: dec(target), Description: "d"})
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	own := mk(alice, "10")
	backed := mk(bob, "4")

	for _, c := range []struct {
		id     string
		pr     model.Principal
		amount string
	}{
		{own.ID, bob, "2.5"},
		{backed.ID, alice, "1"},
		{backed.ID, model.NewPrincipal("0x00000000000000000000000000000000000000a9", "u-alice"), "2"},
		{backed.ID, bob, "1"},
	} {
		if _, _, err := ledger.Record(c.id, c.pr, dec(c.amount), ""); err != nil {
			t.Fatal(err)
		}
	}

	d, err := dash.Dashboard(alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.MyProjects) != 1 || d.MyProjects[0].ID != own.ID || d.MyProjects[0].Progress != 25 {
		t.Fatalf("myProjects %+v", d.MyProjects)
	}
	if len(d.MyFundings) != 1 {
		t.Fatalf("myFundings %+v", d.MyFundings)
	}
	f := d.MyFundings[0]
	if f.ID != backed.ID || !f.MyAmount.Equal(dec("3")) || !f.CurrentAmount.Equal(dec("4")) || f.Progress != 100 {
		t.Fatalf("funded %s mine %s current %s progress %d", f.ID, f.MyAmount, f.CurrentAmount, f.Progress)
	}
	if f.Status != model.ProjectStatusCompleted {
		t.Fatalf("status %s", f.Status)
	}
}

func TestDashboardEmptyAndAnonymous(t *testing.T) {
	db := dbtest.NewPebble(t)
	dash := NewDashboardService(db, ledger_service.NewLedgerService(db))

	d, err := dash.Dashboard(bob)
	if err != nil {
		t.Fatal(err)
	}
	if d.MyProjects == nil || d.MyFundings == nil || len(d.MyProjects)+len(d.MyFundings) != 0 {
		t.Fatalf("dashboard %+v", d)
	}
	if _, err := dash.Dashboard(model.Principal{}); !apperr.IsCategory(err, apperr.CategoryUnauthenticated) {
		t.Fatalf("got %v", err)
	}
}
