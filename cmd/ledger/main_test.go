package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-evidence/internal/evidence/storage"
	"github.com/kashguard/go-evidence/internal/test"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns its standard output.
func executeCommand(args []string) (string, error) {
	defer resetCmdArgs()

	buf := new(bytes.Buffer)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))

	err := rootCmd.Execute()

	return buf.String(), err
}

// resetCmdArgs restores every flag struct between runs.
func resetCmdArgs() {
	rootArgs = rootFlags{timeout: timeout}
	publishArgs = publishFlags{namespace: storage.NamespaceLedger}
	enrichArgs = enrichFlags{}
	gcPendingArgs = gcPendingFlags{}
	deadletterArgs = deadletterFlags{}
	anchoringArgs = anchoringFlags{}
	keysArgs = keysFlags{}
	exportArgs = exportFlags{}
	rollupBuildArgs = rollupBuildFlags{}
	rollupProveArgs = rollupProveFlags{}

	resetFlags(rootCmd)
}

// resetFlags clears the parsed state cobra keeps between Execute calls, so
// required-flag checks and Changed() see a fresh command line.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type workspace struct {
	clock *time2.MockClock
	// bucket is the localfs directory backing the store.
	bucket        string
	deadLetterDir string
	root          string
}

// withWorkspace points the CLI at a fresh localfs store and dead-letter
// directory and freezes the clock.
func withWorkspace(t *testing.T) *workspace {
	t.Helper()

	mock := test.NewClock(t)
	prev := clock
	clock = mock
	t.Cleanup(func() { clock = prev })

	root := t.TempDir()
	return &workspace{
		clock:         mock,
		root:          root,
		bucket:        filepath.Join(root, "evidence"),
		deadLetterDir: t.TempDir(),
	}
}

// args appends the workspace flags to a command line.
func (w *workspace) args(args ...string) []string {
	return append(args,
		"--backend", "localfs",
		"--local-root", w.root,
		"--bucket", "evidence",
		"--dead-letter-dir", w.deadLetterDir,
		"--log-level", "error",
	)
}

func decode(t *testing.T, out string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}
