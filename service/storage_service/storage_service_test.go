package storage_service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trust-fund-service/apperr"
)

func fakePinata(t *testing.T, status int, body string) (*httptest.Server, *http.Request, *string) {
	t.Helper()
	var (
		seen    http.Request
		content string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = *r.Clone(context.Background())
		if f, _, err := r.FormFile("file"); err == nil {
			b, _ := io.ReadAll(f)
			content = string(b)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen, &content
}

func TestPinImage(t *testing.T) {
	srv, seen, content := fakePinata(t, http.StatusOK, `{"IpfsHash":"QmCID","PinSize":5,"Timestamp":"2025-01-01"}`)
	s := NewStorageService(Options{PinURL: srv.URL, Gateway: "https://gw.example/ipfs", JWT: "pin-jwt", Timeout: time.Second})

	p, err := s.PinImage(context.Background(), "cover.PNG", 5, io.NopCloser(strings.NewReader("image")))
	if err != nil {
		t.Fatal(err)
	}
	if p.CID != "QmCID" || p.URL != "https://gw.example/ipfs/QmCID" || p.Size != 5 {
		t.Fatalf("pinned %+v", p)
	}
	if got := seen.Header.Get("Authorization"); got != "Bearer pin-jwt" {
		t.Fatalf("authorization %q", got)
	}
	if *content != "image" {
		t.Fatalf("uploaded %q", *content)
	}
}

func TestPinImageRejects(t *testing.T) {
	srv, _, _ := fakePinata(t, http.StatusUnauthorized, `{"error":"bad jwt"}`)
	s := NewStorageService(Options{PinURL: srv.URL, JWT: "x", MaxBytes: 1 << 20, Timeout: time.Second})
	body := func() io.ReadCloser { return io.NopCloser(strings.NewReader("data")) }

	tests := []struct {
		name string
		svc  *StorageService
		file string
		size int64
		cat  apperr.Category
	}{
		{"not an image", s, "notes.txt", 4, apperr.CategoryValidation},
		{"empty", s, "a.png", 0, apperr.CategoryValidation},
		{"too large", s, "a.png", 2 << 20, apperr.CategoryValidation},
		{"upstream refuses", s, "a.png", 4, apperr.CategoryUpstreamFailure},
		{"no credentials", NewStorageService(Options{PinURL: srv.URL}), "a.png", 4, apperr.CategoryUpstreamFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.svc.PinImage(context.Background(), tc.file, tc.size, body())
			if !apperr.IsCategory(err, tc.cat) {
				t.Fatalf("got %v, want %s", err, tc.cat)
			}
		})
	}
}
