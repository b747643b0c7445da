package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		uploadCmd.Flags().VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestUploadSingleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"accuracy":0.92}}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "model.pkl")
	require.NoError(t, os.WriteFile(path, []byte("pickle"), 0o644))

	out, err := execute(t, "upload", "--gateway", srv.URL, "--file", path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"accuracy":0.92}}`, out)
}

func TestUploadFlagConflicts(t *testing.T) {
	_, err := execute(t, "upload", "--file", "a.pkl", "--target", "t.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be combined")

	_, err = execute(t, "upload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to upload")
}
