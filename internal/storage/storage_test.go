package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
)

func TestLocalPutOpenDelete(t *testing.T) {
	st, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := NewKey(12, ".pdf")
	if err := st.Put(ctx, key, strings.NewReader("%PDF-1.4 hello")); err != nil {
		t.Fatal(err)
	}
	rc, err := st.Open(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	if string(b) != "%PDF-1.4 hello" {
		t.Fatalf("read back %q", b)
	}
	if err := st.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.Delete(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	st, _ := NewLocal(t.TempDir())
	for _, key := range []string{"", "/etc/passwd", "../x", "1/../../x", "..", `1\..\x`} {
		if err := st.Put(context.Background(), key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestNewKeyIsNamespacedAndUnique(t *testing.T) {
	re := regexp.MustCompile(`^7/[0-9A-HJKMNP-TV-Z]{26}\.png$`)
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		k := NewKey(7, ".png")
		if !re.MatchString(k) {
			t.Fatalf("bad key %q", k)
		}
		if seen[k] {
			t.Fatalf("duplicate key %q", k)
		}
		seen[k] = true
	}
}
