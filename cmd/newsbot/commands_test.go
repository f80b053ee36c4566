package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNextRunCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "daily later today",
			args: []string{"next-run", "daily", "09:00", "--tz", "UTC", "--from", "2026-03-04T08:00"},
			want: []string{"2026-03-04T09:00:00Z"},
		},
		{
			name: "weekly lands on monday",
			args: []string{"next-run", "weekly", "09:00", "--tz", "UTC", "--from", "2026-03-04T08:00", "-n", "2"},
			want: []string{"2026-03-09T09:00:00Z", "2026-03-16T09:00:00Z"},
		},
		{
			name: "monthly first of next month",
			args: []string{"next-run", "monthly", "06:30", "--tz", "UTC", "--from", "2026-03-04T08:00"},
			want: []string{"2026-04-01T06:30:00Z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			got := strings.Fields(out)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("output = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRunRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"next-run", "hourly", "09:00"},
		{"next-run", "daily", "25:00"},
		{"next-run", "daily", "09:00", "--tz", "Nowhere/Land"},
	} {
		if _, err := run(t, args...); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestValidateConfigCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("scheduler:\n  timezone: UTC\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("scheduler:\n  zone: UTC\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "validate-config", "--config", good)
	if err != nil || !strings.Contains(out, "ok") {
		t.Fatalf("good config: out=%q err=%v", out, err)
	}
	if _, err := run(t, "validate-config", "--config", bad); err == nil {
		t.Fatal("bad config: expected error")
	}
}
