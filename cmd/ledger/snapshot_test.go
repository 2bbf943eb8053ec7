package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kashguard/go-evidence/internal/evidence/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotGenerateVerify(t *testing.T) {
	w := withWorkspace(t)

	_, err := executeCommand(w.args("snapshot", "generate", "daily"))
	require.Error(t, err, "signing needs an active key")

	_, err = executeCommand(w.args("keys", "bootstrap", "--principal", "ops"))
	require.NoError(t, err)

	out, err := executeCommand(w.args("snapshot", "generate", "daily"))
	require.NoError(t, err)
	var first snapshot.Result
	decode(t, out, &first)
	require.True(t, first.Created)
	assert.Equal(t, snapshot.KindDaily, first.Signed.Snapshot.Kind)
	assert.Nil(t, first.Signed.Snapshot.PreviousSnapshotHash)
	assert.NotEmpty(t, first.Signed.Snapshot.Keys.Active)

	out, err = executeCommand(w.args("snapshot", "generate", "daily"))
	require.NoError(t, err)
	var again snapshot.Result
	decode(t, out, &again)
	assert.False(t, again.Created)
	assert.Equal(t, first.Key, again.Key)

	out, err = executeCommand(w.args("snapshot", "verify", "all"))
	require.NoError(t, err)
	var report snapshot.Report
	decode(t, out, &report)
	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Checked)

	require.NoError(t, os.WriteFile(filepath.Join(w.bucket, filepath.FromSlash(first.Key)), []byte("{broken"), 0o600))

	out, err = executeCommand(w.args("snapshot", "verify", "latest"))
	require.ErrorIs(t, err, errSnapshotFindings)
	decode(t, out, &report)
	require.NotEmpty(t, report.Findings)
	assert.Equal(t, snapshot.FindingUnreadable, report.Findings[0].Code)
}

func TestSnapshotArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing kind", args: []string{"snapshot", "generate"}},
		{name: "unknown kind", args: []string{"snapshot", "generate", "monthly"}},
		{name: "unknown mode", args: []string{"snapshot", "verify", "first"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := withWorkspace(t)
			_, err := executeCommand(w.args(tt.args...))
			require.Error(t, err)
		})
	}
}
