package tools

import (
	"errors"
	"io/fs"
	"os"
)

// FileExists reports whether filename can be stat'ed.
func FileExists(filename string) bool {
	exists, _ := PathExists(filename)
	return exists
}

// PathExists reports whether path exists, returning stat errors other than
// not-exist.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
