package imagefetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

func TestFetch(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	img, err := New(0, 0).Fetch(context.Background(), srv.URL+"/meme.png")
	if err != nil {
		t.Fatal(err)
	}
	if img.MediaType != "image/png" || !bytes.Equal(img.Bytes, payload) {
		t.Errorf("unexpected image: type=%q len=%d", img.MediaType, len(img.Bytes))
	}
}

func TestFetch_ExtensionFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0xff, 0xd8})
	}))
	defer srv.Close()

	img, err := New(0, 0).Fetch(context.Background(), srv.URL+"/photo.jpg?size=large")
	if err != nil {
		t.Fatal(err)
	}
	if img.MediaType != "image/jpeg" {
		t.Errorf("expected extension fallback to image/jpeg, got %q", img.MediaType)
	}
}

func TestFetch_NotAnImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	_, err := New(0, 0).Fetch(context.Background(), srv.URL+"/page")
	if !errors.Is(err, domain.ErrImageUnavailable) {
		t.Fatalf("expected ErrImageUnavailable, got %v", err)
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := New(0, 32).Fetch(context.Background(), srv.URL+"/big.png")
	if !errors.Is(err, domain.ErrImageUnavailable) {
		t.Fatalf("expected ErrImageUnavailable, got %v", err)
	}
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(0, 0).Fetch(context.Background(), srv.URL+"/gone.png")
	if !errors.Is(err, domain.ErrImageUnavailable) {
		t.Fatalf("expected ErrImageUnavailable, got %v", err)
	}
}
