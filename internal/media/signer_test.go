package media

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"valentine/internal/config"
)

func TestStaticSigner(t *testing.T) {
	s := StaticSigner{BaseURL: "https://cdn.example/gift/"}
	got, err := s.URL(context.Background(), "stage1/place.jpg")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if got != "https://cdn.example/gift/stage1/place.jpg" {
		t.Fatalf("unexpected url %q", got)
	}
	for _, key := range []string{"", "/etc/passwd", "../secret", "a/../../b"} {
		if _, err := s.URL(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestNewPicksStaticWithoutBucket(t *testing.T) {
	s, err := New(context.Background(), config.MediaConfig{BaseURL: "/media/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := s.(StaticSigner); !ok {
		t.Fatalf("expected StaticSigner, got %T", s)
	}
}

func TestS3SignerPresignsOffline(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")
	s, err := NewS3Signer(context.Background(), config.MediaConfig{
		Bucket:     "valentine-saturn",
		Region:     "eu-central-1",
		Endpoint:   "http://127.0.0.1:9000",
		AccessKey:  "AKIDEXAMPLE",
		SecretKey:  "secret",
		PresignTTL: 2 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new s3 signer: %v", err)
	}
	raw, err := s.URL(context.Background(), "stage4/code.mp3")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse presigned url: %v", err)
	}
	if u.Host != "127.0.0.1:9000" || !strings.HasPrefix(u.Path, "/valentine-saturn/stage4/code.mp3") {
		t.Fatalf("expected path-style url, got %q", raw)
	}
	q := u.Query()
	if q.Get("X-Amz-Signature") == "" || q.Get("X-Amz-Expires") != "120" {
		t.Fatalf("expected signed query with 120s expiry, got %q", u.RawQuery)
	}
}
