package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kashguard/go-evidence/internal/evidence/key"
	"github.com/kashguard/go-evidence/internal/evidence/sign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysLifecycle(t *testing.T) {
	w := withWorkspace(t)

	out, err := executeCommand(w.args("keys", "bootstrap", "--principal", "ops"))
	require.NoError(t, err)
	var first key.SigningKey
	decode(t, out, &first)
	assert.Equal(t, key.StatusActive, first.Status)

	_, err = executeCommand(w.args("keys", "bootstrap", "--principal", "ops"))
	require.ErrorIs(t, err, key.ErrAlreadyBootstrapped)

	out, err = executeCommand(w.args("keys", "request", "create", "ROTATE", "--principal", "alice", "--reason", "scheduled"))
	require.NoError(t, err)
	var req key.LifecycleRequest
	decode(t, out, &req)
	assert.Equal(t, key.RequestPending, req.Status)

	_, err = executeCommand(w.args("keys", "request", "approve", req.ID, "--principal", "alice"))
	require.ErrorIs(t, err, key.ErrSelfApproval)

	_, err = executeCommand(w.args("keys", "request", "approve", req.ID, "--principal", "bob"))
	require.NoError(t, err)

	out, err = executeCommand(w.args("keys", "request", "execute", req.ID, "--principal", "carol"))
	require.NoError(t, err)
	decode(t, out, &req)
	assert.Equal(t, key.RequestExecuted, req.Status)
	assert.NotEmpty(t, req.ResultKeyID)

	out, err = executeCommand(w.args("keys", "list"))
	require.NoError(t, err)
	var keys []*key.SigningKey
	decode(t, out, &keys)
	require.Len(t, keys, 2)
	for _, k := range keys {
		assert.Empty(t, k.PrivateKey)
	}

	out, err = executeCommand(w.args("keys", "request", "list", "--status", "EXECUTED"))
	require.NoError(t, err)
	var list key.RequestList
	decode(t, out, &list)
	assert.Len(t, list.Requests, 1)
	assert.Equal(t, 0, list.PendingCount)
}

func TestKeysRequireArgs(t *testing.T) {
	w := withWorkspace(t)

	_, err := executeCommand(w.args("keys", "bootstrap"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--principal is required")

	_, err = executeCommand(w.args("keys", "request", "create", "DELETE", "--principal", "alice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")
}

func TestExportSignVerify(t *testing.T) {
	w := withWorkspace(t)

	_, err := executeCommand(w.args("keys", "bootstrap", "--principal", "ops"))
	require.NoError(t, err)

	dir := t.TempDir()
	exportFile := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(exportFile, []byte(`{"aircraft":"D-AIBC","cards":[{"id":"IC-1","result":"pass"}]}`), 0o600))

	out, err := executeCommand(w.args("export", "sign", exportFile))
	require.NoError(t, err)
	var signed sign.SignedExport
	decode(t, out, &signed)
	assert.NotEmpty(t, signed.ExportHash)

	signedFile := filepath.Join(dir, "signed.json")
	require.NoError(t, os.WriteFile(signedFile, signed.ExportJSON, 0o600))

	out, err = executeCommand(w.args("export", "verify", signedFile,
		"--signature", signed.Signature, "--key-id", signed.KeyID))
	require.NoError(t, err)
	var res sign.VerifyResult
	decode(t, out, &res)
	assert.True(t, res.OK)
	require.NotNil(t, res.Signature)
	assert.True(t, res.Signature.Valid)

	// Content only: an unsigned check still passes.
	_, err = executeCommand(w.args("export", "verify", signedFile))
	require.NoError(t, err)

	tampered := filepath.Join(dir, "tampered.json")
	require.NoError(t, os.WriteFile(tampered,
		[]byte(`{"aircraft":"D-AIBD","export_hash":"`+signed.ExportHash+`"}`), 0o600))
	_, err = executeCommand(w.args("export", "verify", tampered))
	require.ErrorIs(t, err, errExportInvalid)
}
