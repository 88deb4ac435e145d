package adapter

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// FilesystemConfig binds a local or mounted-share root directory.
type FilesystemConfig struct {
	RootPath string `json:"root_path"`
	Exposure string `json:"exposure_level"`
}

// FilesystemAdapter walks an ordinary filesystem path with io/fs. It
// is also the backend for the NFS AdapterKind, since NFS mounts present
// to a Go process as ordinary paths.
type FilesystemAdapter struct {
	cfg FilesystemConfig
}

// NewFilesystemAdapter builds a FilesystemAdapter bound to cfg.
func NewFilesystemAdapter(cfg FilesystemConfig) *FilesystemAdapter {
	return &FilesystemAdapter{cfg: cfg}
}

func (a *FilesystemAdapter) exposure() model.ExposureLevel {
	if a.cfg.Exposure != "" {
		return model.ExposureLevel(a.cfg.Exposure)
	}
	return model.ExposurePrivate
}

// Enumerate walks the root path lexically, resuming after startCursor
// (the last path yielded) when set.
func (a *FilesystemAdapter) Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error {
	resuming := startCursor != ""
	err := filepath.WalkDir(a.cfg.RootPath, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if os.IsPermission(err) {
				return nil // skip the entry, continue the walk
			}
			return apierrors.Transient("walking "+path, err)
		}
		if d.IsDir() {
			return nil
		}
		if resuming {
			if path == startCursor {
				resuming = false
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // permanent per-file skip
		}

		fi := FileInfo{
			Path:       path,
			Name:       d.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
			Exposure:   a.exposure(),
			Cursor:     path,
		}
		fi.Owner, fi.Permissions = fileOwnerAndMode(info)

		return yield(fi)
	})
	if err != nil {
		return fmt.Errorf("enumerating %s: %w", a.cfg.RootPath, err)
	}
	return nil
}

// Read returns the file's raw contents.
func (a *FilesystemAdapter) Read(ctx context.Context, fi FileInfo) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	b, err := os.ReadFile(fi.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.NotFound("file not found: " + fi.Path)
		}
		if os.IsPermission(err) {
			return nil, apierrors.Forbidden("permission denied: " + fi.Path)
		}
		return nil, apierrors.Transient("reading "+fi.Path, err)
	}
	return b, nil
}

// GetMetadata re-stats the file.
func (a *FilesystemAdapter) GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error) {
	info, err := os.Stat(fi.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, apierrors.NotFound("file not found: " + fi.Path)
		}
		return FileInfo{}, apierrors.Transient("statting "+fi.Path, err)
	}
	fi.Size = info.Size()
	fi.ModifiedAt = info.ModTime()
	fi.Owner, fi.Permissions = fileOwnerAndMode(info)
	return fi, nil
}

// TestConnection verifies the root path is reachable and a directory.
func (a *FilesystemAdapter) TestConnection(ctx context.Context) error {
	info, err := os.Stat(a.cfg.RootPath)
	if err != nil {
		return apierrors.Transient("root path unreachable: "+a.cfg.RootPath, err)
	}
	if !info.IsDir() {
		return apierrors.Validation("root path is not a directory: " + a.cfg.RootPath)
	}
	return nil
}

// NFSConfig is identical in shape to FilesystemConfig: an NFS mount is
// an ordinary path once mounted by the host OS.
type NFSConfig struct {
	RootPath string `json:"root_path"`
	Exposure string `json:"exposure_level"`
}

// NewNFSAdapter returns a FilesystemAdapter over an NFS-mounted path.
func NewNFSAdapter(cfg NFSConfig) *FilesystemAdapter {
	return NewFilesystemAdapter(FilesystemConfig{RootPath: cfg.RootPath, Exposure: cfg.Exposure})
}

// fileOwnerAndMode extracts what the platform can offer cheaply; on
// platforms without a uid/gid concept this degrades to the empty owner.
func fileOwnerAndMode(info fs.FileInfo) (owner, perm string) {
	perm = info.Mode().Perm().String()
	if runtime.GOOS == "windows" {
		return "", perm
	}
	return ownerFromSys(info), perm
}
