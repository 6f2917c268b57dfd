package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/spf13/afero"
)

// EnsureDirectory creates relativePath below baseDir one segment at a time,
// checking each level first. It is idempotent and "" or "/" is a no-op.
func EnsureDirectory(fs afero.Fs, relativePath, baseDir string) error {
	current := baseDir
	for _, segment := range strings.Split(strings.Trim(relativePath, "/"), "/") {
		if segment == "" {
			continue
		}
		current = filepath.Join(current, segment)

		info, err := fs.Stat(current)
		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			return filesystemError(fmt.Sprintf("%s exists and is not a directory", current), current, nil)
		case !os.IsNotExist(err):
			return filesystemError(fmt.Sprintf("cannot stat %s", current), current, err)
		}

		if err := fs.Mkdir(current, 0755); err != nil && !os.IsExist(err) {
			return filesystemError(fmt.Sprintf("cannot create %s", current), current, err)
		}
	}
	return nil
}

// Materialize creates every directory of a plan below baseDir
func Materialize(fs afero.Fs, dirs []string, baseDir string) error {
	if err := fs.MkdirAll(baseDir, 0755); err != nil {
		return filesystemError(fmt.Sprintf("cannot create staging directory %s", baseDir), baseDir, err)
	}
	for _, dir := range dirs {
		if err := EnsureDirectory(fs, dir, baseDir); err != nil {
			return err
		}
	}
	return nil
}

// ResetDirectory removes dir and everything below it, then recreates it empty
func ResetDirectory(fs afero.Fs, dir string) error {
	if err := RemoveDirectory(fs, dir); err != nil {
		return err
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return filesystemError(fmt.Sprintf("cannot create %s", dir), dir, err)
	}
	return nil
}

// RemoveDirectory removes dir recursively; a missing dir is not an error
func RemoveDirectory(fs afero.Fs, dir string) error {
	if err := fs.RemoveAll(dir); err != nil {
		return filesystemError(fmt.Sprintf("cannot remove %s", dir), dir, err)
	}
	return nil
}

func filesystemError(msg, path string, cause error) error {
	cliErr := utils.NewCLIError(utils.ErrCodeFilesystemFailure, msg).
		WithContext("path", path).
		Build()
	if cause == nil {
		return utils.NewAppError(cliErr)
	}
	return utils.WrapAppError(cliErr, cause)
}
