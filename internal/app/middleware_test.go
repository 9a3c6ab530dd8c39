package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/assetkart/iam/internal/shared"
)

func TestSubjectMiddlewareCopiesHeaderIntoContext(t *testing.T) {
	var got string
	var ok bool
	handler := SubjectMiddleware("X-Auth-Subject")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Auth-Subject", "customer@assetkart.local")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok || got != "customer@assetkart.local" {
		t.Fatalf("expected subject in context, got %q ok=%v", got, ok)
	}
}

func TestSubjectMiddlewareMissingHeader(t *testing.T) {
	handler := SubjectMiddleware("X-Auth-Subject")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.SubjectFromContext(r.Context()); ok {
			t.Fatal("expected no subject in context")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSubjectMiddlewareCustomHeader(t *testing.T) {
	var got string
	handler := SubjectMiddleware("X-Verified-Sub")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.SubjectFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Verified-Sub", "partner@assetkart.local")
	req.Header.Set("X-Auth-Subject", "spoofed@assetkart.local")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "partner@assetkart.local" {
		t.Fatalf("expected configured header to win, got %q", got)
	}
}
