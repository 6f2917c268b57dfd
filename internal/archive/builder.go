// Package archive packages a scanned staging tree into a zip file.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/mirror"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// maxNameAttempts bounds the -N suffix search for a free archive name
const maxNameAttempts = 1000

// Result describes a written archive
type Result struct {
	Path  string
	Files int
	Dirs  int
	Bytes int64
}

// Builder writes archives from trees on Fs
type Builder struct {
	Fs     afero.Fs
	Logger logging.Logger

	files int
	dirs  int
	bytes int64
}

// NewBuilder creates a builder
func NewBuilder(fs afero.Fs, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Builder{Fs: fs, Logger: logger}
}

// ArchiveName formats the archive file name for t (UTC)
func ArchiveName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%d-%d-%d-%02d%02d%s",
		utils.ArchivePrefix, t.Day(), int(t.Month()), t.Year(), t.Hour(), t.Minute(), utils.ArchiveExt)
}

// AddTree adds node's children to zw depth first. archiveRoot is the entry
// prefix inside the archive ("" for the top level) and baseDir the on-disk
// directory node was scanned from.
func (b *Builder) AddTree(zw *zip.Writer, archiveRoot string, node *mirror.Node, baseDir string) error {
	for _, child := range node.Children {
		name := path.Join(archiveRoot, child.Name)
		full := filepath.Join(baseDir, child.Name)

		if child.Dir {
			if _, err := zw.CreateHeader(&zip.FileHeader{
				Name:     name + "/",
				Method:   zip.Store,
				Modified: b.modTime(full),
			}); err != nil {
				return archiveError(fmt.Sprintf("cannot add directory %s", name), name, err)
			}
			b.dirs++
			if err := b.AddTree(zw, name, child, full); err != nil {
				return err
			}
			continue
		}

		if err := b.addFile(zw, name, full); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) addFile(zw *zip.Writer, name, full string) error {
	src, err := b.Fs.Open(full)
	if err != nil {
		return archiveError(fmt.Sprintf("cannot open %s", full), name, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: b.modTime(full),
	})
	if err != nil {
		return archiveError(fmt.Sprintf("cannot add %s", name), name, err)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return archiveError(fmt.Sprintf("cannot compress %s", name), name, err)
	}
	b.files++
	b.bytes += n
	return nil
}

func (b *Builder) modTime(full string) time.Time {
	info, err := b.Fs.Stat(full)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Write builds an archive of tree (scanned from baseDir) into destDir. The
// archive is named after at and written through a temp file so a failed
// cycle never leaves a truncated archive behind.
func (b *Builder) Write(ctx context.Context, tree *mirror.Node, baseDir, destDir string, at time.Time) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.files, b.dirs, b.bytes = 0, 0, 0

	if err := b.Fs.MkdirAll(destDir, 0755); err != nil {
		return nil, archiveError(fmt.Sprintf("cannot create archive directory %s", destDir), destDir, err)
	}

	dest, err := b.freeName(destDir, ArchiveName(at))
	if err != nil {
		return nil, err
	}

	tmp, err := afero.TempFile(b.Fs, destDir, ".gdbackup-*.tmp")
	if err != nil {
		return nil, archiveError("cannot create temporary archive", destDir, err)
	}
	tmpName := tmp.Name()

	zw := zip.NewWriter(tmp)
	err = b.AddTree(zw, "", tree, baseDir)
	if closeErr := zw.Close(); err == nil && closeErr != nil {
		err = archiveError("cannot finish archive", tmpName, closeErr)
	}
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = archiveError("cannot close archive", tmpName, closeErr)
	}
	if err != nil {
		_ = b.Fs.Remove(tmpName)
		return nil, err
	}

	if err := b.Fs.Rename(tmpName, dest); err != nil {
		_ = b.Fs.Remove(tmpName)
		return nil, archiveError(fmt.Sprintf("cannot move archive to %s", dest), dest, err)
	}

	result := &Result{Path: dest, Files: b.files, Dirs: b.dirs, Bytes: b.bytes}
	b.Logger.Info("Archive written",
		logging.F("path", dest),
		logging.F("files", result.Files),
		logging.F("dirs", result.Dirs),
		logging.F("size", humanize.Bytes(uint64(result.Bytes))))
	return result, nil
}

// freeName returns destDir/name, or destDir/<stem>-N<ext> when taken
func (b *Builder) freeName(destDir, name string) (string, error) {
	ext := path.Ext(name)
	stem := name[:len(name)-len(ext)]

	candidate := filepath.Join(destDir, name)
	for n := 1; n <= maxNameAttempts; n++ {
		_, err := b.Fs.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", archiveError(fmt.Sprintf("cannot stat %s", candidate), candidate, err)
		}
		candidate = filepath.Join(destDir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	return "", archiveError(fmt.Sprintf("no free archive name for %s", name), destDir, nil)
}

func archiveError(msg, path string, cause error) error {
	cliErr := utils.NewCLIError(utils.ErrCodeArchiveFailed, msg).
		WithContext("path", path).
		Build()
	if cause == nil {
		return utils.NewAppError(cliErr)
	}
	return utils.WrapAppError(cliErr, cause)
}
