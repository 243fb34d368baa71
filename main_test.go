package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/lifesignal/utils"
)

func TestTokenCmd_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "owner-7", "--email", "owner@example.com",
		"--config", filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, root.Execute())

	claims, err := utils.ParseToken("cli-secret", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "owner-7", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "owner-7", "--config", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, root.Execute())
}
