package object

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseLocator(t *testing.T) {
	cases := []struct {
		in     string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://maps/city/graph.json.zst", "maps", "city/graph.json.zst", true},
		{"s3://maps//city/./graph.json", "maps", "city/graph.json", true},
		{"s3://maps/", "", "", false},
		{"s3://maps", "", "", false},
		{"s3://maps/../etc", "maps", "etc", true},
		{"https://maps/graph", "", "", false},
	}
	for _, tc := range cases {
		b, k, ok := ParseLocator(tc.in)
		if ok != tc.ok || b != tc.bucket || k != tc.key {
			t.Fatalf("ParseLocator(%q) = %q,%q,%v want %q,%q,%v", tc.in, b, k, ok, tc.bucket, tc.key, tc.ok)
		}
	}
}

func TestClient_PutAndGetSigned(t *testing.T) {
	var mu sync.Mutex
	store := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AK/20260102/auto/s3/aws4_request") {
			http.Error(w, "bad auth "+auth, http.StatusForbidden)
			return
		}
		if r.Header.Get("x-amz-date") != "20260102T030405Z" {
			http.Error(w, "bad date", http.StatusForbidden)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			store[r.URL.Path] = b
		case http.MethodGet:
			b, ok := store[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(b)
		}
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, Bucket: "maps", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	ctx := context.Background()
	if err := c.Put(ctx, "/city/graph.json", []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	mu.Lock()
	_, stored := store["/maps/city/graph.json"]
	mu.Unlock()
	if !stored {
		t.Fatalf("object not stored under bucket path")
	}
	got, err := c.Get(ctx, "city/graph.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q", got)
	}
	if _, err := c.Get(ctx, "city/missing"); err == nil {
		t.Fatalf("expected error for missing object")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Endpoint: "example.com", Bucket: "b"}); err == nil {
		t.Fatalf("expected error")
	}
}

type recordingUploader struct {
	mu   sync.Mutex
	keys []string
	fail int
}

func (u *recordingUploader) PutFile(_ context.Context, key, _ string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail > 0 {
		u.fail--
		return io.ErrUnexpectedEOF
	}
	u.keys = append(u.keys, key)
	return nil
}

func TestMirror_UploadsRelativeKeysWithRetry(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "runs", "r1", "ticks-0001.jsonl.zst")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	up := &recordingUploader{fail: 1}
	m := NewMirror(up, dir, "/roadsim/", 1, 4, nil)
	m.backoff = time.Millisecond
	m.Enqueue(local)
	m.Enqueue(filepath.Join(t.TempDir(), "outside.jsonl"))
	m.Close()

	if len(up.keys) != 1 || up.keys[0] != "roadsim/runs/r1/ticks-0001.jsonl.zst" {
		t.Fatalf("keys: %v", up.keys)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadSuccessTotal != 1 || st.UploadFailTotal != 0 {
		t.Fatalf("stats: %+v", st)
	}
}
