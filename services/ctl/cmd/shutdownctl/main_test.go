package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pw, _ := r.BasicAuth(); pw != "pw" {
			http.Error(w, `{"error":"invalid username or password"}`, http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"lab":{"pc-01":{"state":"online"}}}`)
	}))
	defer srv.Close()

	t.Setenv(passwordEnv, "pw")
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"status", "--api", srv.URL, "--user", "ops"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "pc-01") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestShutdownCommandRequiresGroup(t *testing.T) {
	cmd := newRootCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"shutdown", "--api", "http://localhost:1"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing --group error")
	}
}

func TestCommandsRequireAPI(t *testing.T) {
	t.Setenv("SHUTDOWNCTL_API", "")
	cmd := newRootCommand(&bytes.Buffer{})
	cmd.SetArgs([]string{"audit", "--api", ""})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--api") {
		t.Fatalf("expected --api error, got %v", err)
	}
}
