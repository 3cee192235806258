package keyspace

import (
	"strings"
	"testing"
)

func TestUniqueBucket(t *testing.T) {
	tests := []struct {
		bucket   string
		field    string
		expected string
	}{
		{"users", "email", "_users_ul_email"},
		{"users", "handle", "_users_ul_handle"},
		{"blog_posts", "slug", "_blog_posts_ul_slug"},
	}

	for _, tt := range tests {
		result := UniqueBucket(tt.bucket, tt.field)
		if result != tt.expected {
			t.Errorf("UniqueBucket(%q, %q) = %q, want %q", tt.bucket, tt.field, result, tt.expected)
		}
	}
}

func TestUniqueBucket_Deterministic(t *testing.T) {
	first := UniqueBucket("users", "email")
	for i := 0; i < 100; i++ {
		if result := UniqueBucket("users", "email"); result != first {
			t.Errorf("expected deterministic result %q, got %q on iteration %d", first, result, i)
		}
	}
}

func TestIsUniqueBucket(t *testing.T) {
	if !IsUniqueBucket(UniqueBucket("users", "email")) {
		t.Error("expected derived bucket to be recognized")
	}
	for _, name := range []string{"users", "user_ul_email", "_private"} {
		if IsUniqueBucket(name) {
			t.Errorf("expected %q not to be a unique bucket", name)
		}
	}
}

func TestRecordPK(t *testing.T) {
	tests := []struct {
		bucket string
		key    string
	}{
		{"users", "alice"},
		{"_users_ul_email", "alice@example.com"},
		{"posts", strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		result := RecordPK(tt.bucket, tt.key)

		// Should be 32 characters (128-bit hash as hex)
		if len(result) != 32 {
			t.Errorf("RecordPK(%q, ...) = %q (len=%d), want 32 chars", tt.bucket, result, len(result))
		}
		for _, c := range result {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
				t.Errorf("expected hex character, got %c in %q", c, result)
			}
		}
	}
}

func TestRecordPK_Uniqueness(t *testing.T) {
	pks := make(map[string]string)
	inputs := [][2]string{
		{"users", "alice"},
		{"users", "bob"},
		{"posts", "alice"},
		{"users#a", "lice"},
	}
	for _, in := range inputs {
		pk := RecordPK(in[0], in[1])
		id := in[0] + "|" + in[1]
		if existing, ok := pks[pk]; ok {
			t.Errorf("collision: %q and %q both produce %q", existing, id, pk)
		}
		pks[pk] = id
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		bucket   string
		key      string
		expected string
	}{
		{"no prefix", "", "users", "alice", "users/alice"},
		{"prefix", "docket", "users", "alice", "docket/users/alice"},
		{"trimmed prefix", "/docket/", "users", "alice", "docket/users/alice"},
		{"slash in key", "", "users", "a/b", "users/a%2Fb"},
		{"space in key", "p", "users", "a b", "p/users/a%20b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := ObjectKey(tt.prefix, tt.bucket, tt.key); result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func BenchmarkRecordPK(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordPK("users", "6ba7b8109dad11d180b400c04fd430c8")
	}
}
