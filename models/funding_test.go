package models

import (
	"strings"
	"testing"
	"time"

	"trust-fund-service/apperr"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		total, target string
		want          int64
	}{
		{"0", "10", 0},
		{"6", "10", 60},
		{"11", "10", 100},
		{"0.999", "10", 9},
		{"5", "0", 0},
		{"1", "3", 33},
		{"3", "3", 100},
		{"2.999999999999999999", "3", 99},
		{"9.99999999999999999999", "10", 99},
	}
	for _, tc := range tests {
		if got := Progress(dec(tc.total), dec(tc.target)); got != tc.want {
			t.Errorf("Progress(%s, %s) = %d, want %d", tc.total, tc.target, got, tc.want)
		}
	}
}

func TestProgressBelowTargetNeverFull(t *testing.T) {
	total, target := dec("2.999999999999999999"), dec("3")
	if ShouldComplete(ProjectStatusFunding, total, target) {
		t.Fatal("promoted below target")
	}
	if got := Progress(total, target); got >= 100 {
		t.Fatalf("progress %d for a FUNDING project", got)
	}
}

func TestSumsAreExact(t *testing.T) {
	var cs []*Contribution
	for i := 0; i < 10; i++ {
		c, err := NewContribution("c", "p", NewPrincipal("0xa", ""), dec("0.1"), "", time.Now())
		if err != nil {
			t.Fatal(err)
		}
		cs = append(cs, c)
	}
	if got := SumContributions(cs); !got.Equal(dec("1")) {
		t.Fatalf("got %v", got)
	}
	if got := SumFor(cs, NewPrincipal("0xB", "")); !got.IsZero() {
		t.Fatalf("got %v", got)
	}
}

func TestNewContributionRejectsNonPositive(t *testing.T) {
	for _, a := range []string{"0", "-1"} {
		_, err := NewContribution("c", "p", NewPrincipal("0xa", ""), dec(a), "", time.Now())
		if apperr.CodeOf(err) != apperr.CodeInvalidAmount {
			t.Errorf("%s: got %v", a, err)
		}
	}
}

func TestValidateWallet(t *testing.T) {
	good := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	got, err := ValidateWallet(good)
	if err != nil {
		t.Fatal(err)
	}
	if got != strings.ToLower(good) {
		t.Fatalf("got %v", got)
	}
	if _, err := ValidateWallet(strings.ToLower(good)); err != nil {
		t.Fatalf("lowercase: %v", err)
	}
	bad := "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if _, err := ValidateWallet(bad); !apperr.IsCategory(err, apperr.CategoryValidation) {
		t.Fatalf("bad checksum accepted: %v", err)
	}
	if _, err := ValidateWallet("0x1234"); err == nil {
		t.Fatal("short address accepted")
	}
}
