package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/tailor-checkout/internal/gateway"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignFromFileAndStdin(t *testing.T) {
	body := `{"event":"charge.success","data":{"reference":"REF-1"}}`
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	want := gateway.Sign("sk_cli", []byte(body))

	out, err := execute(t, "", "sign", "--secret", "sk_cli", path)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out))

	out, err = execute(t, body, "sign", "--secret", "sk_cli", "-")
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out))
	assert.True(t, gateway.VerifySignature("sk_cli", []byte(body), strings.TrimSpace(out)))
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "", "hash-password", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestCommandArgs(t *testing.T) {
	_, err := execute(t, "", "replay")
	assert.Error(t, err)

	_, err = execute(t, "", "purge-snapshots", "--older-than", "0s")
	assert.ErrorContains(t, err, "--older-than")
}
