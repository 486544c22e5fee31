package api

import (
	"crypto/sha1"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestParseHtpasswd(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sum := sha1.Sum([]byte("legacy"))
	sha := "{SHA}" + base64.StdEncoding.EncodeToString(sum[:])

	data := "# operators\nalice:" + string(hash) + "\n\nbob:" + sha + "\n"
	creds, err := ParseHtpasswd(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ParseHtpasswd: %v", err)
	}

	tests := []struct {
		user, password string
		want           bool
	}{
		{"alice", "hunter2", true},
		{"alice", "wrong", false},
		{"bob", "legacy", true},
		{"bob", "hunter2", false},
		{"carol", "hunter2", false},
	}
	for _, tt := range tests {
		if got := creds.Verify(tt.user, tt.password); got != tt.want {
			t.Errorf("Verify(%q, %q) = %v, want %v", tt.user, tt.password, got, tt.want)
		}
	}
}

func TestParseHtpasswdRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"empty":       "# nobody\n",
		"no colon":    "alice\n",
		"md5 apr1":    "alice:$apr1$abc$def\n",
		"crypt":       "alice:abJnggxhB/yWI\n",
		"empty field": "alice:\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseHtpasswd(strings.NewReader(data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadHtpasswd(t *testing.T) {
	if _, err := LoadHtpasswd(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}

	sum := sha1.Sum([]byte("pw"))
	path := filepath.Join(t.TempDir(), ".htpasswd")
	if err := os.WriteFile(path, []byte("ops:{SHA}"+base64.StdEncoding.EncodeToString(sum[:])+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	creds, err := LoadHtpasswd(path)
	if err != nil {
		t.Fatalf("LoadHtpasswd: %v", err)
	}
	if !creds.Verify("ops", "pw") {
		t.Fatal("expected credentials to verify")
	}
}

func TestNilCredentialsRejectEverything(t *testing.T) {
	var creds *Credentials
	if creds.Verify("anyone", "anything") {
		t.Fatal("nil credentials must not verify")
	}
}
