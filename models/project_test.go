package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"trust-fund-service/apperr"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var owner = NewPrincipal("0xAbC0000000000000000000000000000000000001", "user-1")

func draft(orders ...int) ProjectDraft {
	d := ProjectDraft{
		Title:        "Library",
		TargetAmount: dec("10"),
		Description:  "Build a library",
	}
	for _, o := range orders {
		d.Milestones = append(d.Milestones, MilestoneDraft{
			Title:           fmt.Sprintf("m%d", o),
			Order:           o,
			AllocatedAmount: dec("1"),
		})
	}
	return d
}

func TestNewProjectPreservesMilestones(t *testing.T) {
	now := time.Unix(1700000000, 0)
	p, err := NewProject(owner, draft(3, 1, 2), now, seqIDs())
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != ProjectStatusFunding {
		t.Fatalf("status %v", p.Status)
	}
	var orders []int
	for _, m := range p.Milestones {
		orders = append(orders, m.Order)
		if m.Status != MilestoneStatusPending || m.YesCount != 0 || m.NoCount != 0 ||
			!m.YesAmount.IsZero() || !m.NoAmount.IsZero() || len(m.Votes) != 0 {
			t.Fatalf("milestone %v not fresh: %+v", m.ID, m)
		}
	}
	if diff := cmp.Diff([]int{3, 1, 2}, orders); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if p.OwnerWallet != "0xabc0000000000000000000000000000000000001" {
		t.Fatalf("owner wallet not normalized: %v", p.OwnerWallet)
	}
}

func TestNewProjectValidation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*ProjectDraft)
	}{
		{"no title", func(d *ProjectDraft) { d.Title = " " }},
		{"no description", func(d *ProjectDraft) { d.Description = "" }},
		{"zero target", func(d *ProjectDraft) { d.TargetAmount = decimal.Zero }},
		{"negative target", func(d *ProjectDraft) { d.TargetAmount = dec("-1") }},
		{"too many milestones", func(d *ProjectDraft) { *d = draft(1, 2, 3, 4, 5, 6) }},
		{"duplicate order", func(d *ProjectDraft) { *d = draft(1, 2, 2) }},
		{"zero order", func(d *ProjectDraft) { *d = draft(0) }},
		{"untitled milestone", func(d *ProjectDraft) {
			d.Milestones = []MilestoneDraft{{Order: 1}}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := draft(1)
			tc.mod(&d)
			_, err := NewProject(owner, d, time.Now(), seqIDs())
			if !apperr.IsCategory(err, apperr.CategoryValidation) {
				t.Fatalf("got %v, want validation error", err)
			}
		})
	}
}

func TestMilestoneIndexIsPosition(t *testing.T) {
	p, err := NewProject(owner, draft(1, 2, 3, 4), time.Now(), seqIDs())
	if err != nil {
		t.Fatal(err)
	}
	target := p.Milestones[2]
	m, idx, err := p.Milestone(target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 2 || m.Order != 3 {
		t.Fatalf("got index %d order %d", idx, m.Order)
	}
	if _, _, err := p.Milestone("nope"); apperr.CodeOf(err) != apperr.CodeMilestoneNotFound {
		t.Fatalf("got %v", err)
	}
}

func TestOwnership(t *testing.T) {
	p, _ := NewProject(owner, draft(), time.Now(), seqIDs())

	tests := []struct {
		name string
		pr   Principal
		want bool
	}{
		{"same user id, other wallet", NewPrincipal("0x1111111111111111111111111111111111111111", "user-1"), true},
		{"wallet case differs", NewPrincipal("0xABC0000000000000000000000000000000000001", ""), true},
		{"stranger", NewPrincipal("0x2222222222222222222222222222222222222222", "user-2"), false},
	}
	for _, tc := range tests {
		if got := p.IsOwnedBy(tc.pr); got != tc.want {
			t.Errorf("%s: got %v", tc.name, got)
		}
	}
	if err := p.AuthorizeOwner(Principal{}); apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Errorf("got %v", err)
	}
}

func TestPromotionIsSticky(t *testing.T) {
	p, _ := NewProject(owner, draft(), time.Now(), seqIDs())
	if p.PromoteIfFunded(dec("9.99")) {
		t.Fatal("promoted below target")
	}
	if !p.PromoteIfFunded(dec("11")) {
		t.Fatal("not promoted at 11/10")
	}
	if p.PromoteIfFunded(dec("12")) {
		t.Fatal("second promotion reported a change")
	}
	if p.Status != ProjectStatusCompleted {
		t.Fatalf("status %v", p.Status)
	}
	if err := p.SetStatus(ProjectStatusFunding); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("reverted: %v", err)
	}

	c, _ := NewProject(owner, draft(), time.Now(), seqIDs())
	if err := c.SetStatus(ProjectStatusCancelled); err != nil {
		t.Fatal(err)
	}
	if c.PromoteIfFunded(dec("100")) {
		t.Fatal("cancelled project promoted")
	}
}

func TestReplaceMilestonesLocked(t *testing.T) {
	p, _ := NewProject(owner, draft(1, 2), time.Now(), seqIDs())
	if err := p.ReplaceMilestones(draft(5).Milestones, seqIDs()); err != nil {
		t.Fatal(err)
	}
	if err := p.LinkChainProject(7); err != nil {
		t.Fatal(err)
	}
	if err := p.ReplaceMilestones(draft(1).Milestones, seqIDs()); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("got %v", err)
	}
	if err := p.LinkChainProject(7); err != nil {
		t.Fatalf("relink same id: %v", err)
	}
	if err := p.LinkChainProject(8); !apperr.IsCategory(err, apperr.CategoryInvalidState) {
		t.Fatalf("got %v", err)
	}
}
