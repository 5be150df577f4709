package storage

import (
	"testing"

	"github.com/spf13/afero"
)

// useMemFs points the package at an in-memory filesystem rooted at /cfg
// for the duration of the test.
func useMemFs(t *testing.T) afero.Fs {
	t.Helper()
	prevFs, prevDir := fs, baseDir
	mem := afero.NewMemMapFs()
	SetFs(mem)
	SetBaseDir("/cfg")
	t.Cleanup(func() {
		fs = prevFs
		baseDir = prevDir
	})
	return mem
}
