package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureMasterSecretIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "master.pem")

	first, err := EnsureMasterSecret(path)
	if err != nil {
		t.Fatalf("first EnsureMasterSecret failed: %v", err)
	}
	second, err := EnsureMasterSecret(path)
	if err != nil {
		t.Fatalf("second EnsureMasterSecret failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected stable master secret across runs")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat master secret: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestLoadMasterSecretRejectsForeignPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.pem")
	if err := os.WriteFile(path, []byte("-----BEGIN OTHER-----\nAAAA\n-----END OTHER-----\n"), 0o600); err != nil {
		t.Fatalf("write foreign PEM: %v", err)
	}

	if _, err := EnsureMasterSecret(path); err == nil {
		t.Fatalf("expected foreign PEM to be rejected rather than overwritten")
	}
}

func TestFormatFingerprint(t *testing.T) {
	if got := FormatFingerprint("abcdef012345"); got != "ABCD EF01 2345" {
		t.Fatalf("unexpected grouping %q", got)
	}
	if got := FormatFingerprint("abcde"); got != "ABCD E" {
		t.Fatalf("unexpected tail grouping %q", got)
	}
	if got := SecretFingerprint(bytes.Repeat([]byte{9}, KeySize)); len(got) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", got)
	}
}
