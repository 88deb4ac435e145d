package adapter

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"

	"github.com/hirochachacha/go-smb2"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

// SMBConfig binds one SMB share.
type SMBConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Share    string `json:"share"`
	Domain   string `json:"domain"`
	User     string `json:"user"`
	Password string `json:"password"`
	RootPath string `json:"root_path"`
	Exposure string `json:"exposure_level"`
}

// SMBAdapter enumerates and reads files over SMB2/3.
type SMBAdapter struct {
	cfg SMBConfig
}

// NewSMBAdapter builds an SMBAdapter bound to cfg.
func NewSMBAdapter(cfg SMBConfig) *SMBAdapter {
	return &SMBAdapter{cfg: cfg}
}

func (a *SMBAdapter) exposure() model.ExposureLevel {
	if a.cfg.Exposure != "" {
		return model.ExposureLevel(a.cfg.Exposure)
	}
	return model.ExposureInternal
}

func (a *SMBAdapter) addr() string {
	port := a.cfg.Port
	if port == 0 {
		port = 445
	}
	return fmt.Sprintf("%s:%d", a.cfg.Host, port)
}

func (a *SMBAdapter) mount(ctx context.Context) (*smb2.Share, func(), error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", a.addr())
	if err != nil {
		return nil, nil, apierrors.Transient("dialing SMB host "+a.addr(), err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     a.cfg.User,
			Password: a.cfg.Password,
			Domain:   a.cfg.Domain,
		},
	}
	sess, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, apierrors.Transient("SMB session negotiation", err)
	}

	share, err := sess.Mount(a.cfg.Share)
	if err != nil {
		sess.Logoff()
		conn.Close()
		return nil, nil, apierrors.Transient("mounting SMB share "+a.cfg.Share, err)
	}

	closer := func() {
		share.Umount()
		sess.Logoff()
		conn.Close()
	}
	return share, closer, nil
}

// Enumerate walks the share starting from RootPath, resuming after
// startCursor when set.
func (a *SMBAdapter) Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error {
	share, closer, err := a.mount(ctx)
	if err != nil {
		return err
	}
	defer closer()

	resuming := startCursor != ""
	root := a.cfg.RootPath
	if root == "" {
		root = "."
	}
	return a.walk(ctx, share, root, &resuming, startCursor, yield)
}

func (a *SMBAdapter) walk(ctx context.Context, share *smb2.Share, dir string, resuming *bool, startCursor string, yield func(FileInfo) error) error {
	entries, err := share.ReadDir(dir)
	if err != nil {
		return apierrors.Transient("reading SMB directory "+dir, err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		full := path.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := a.walk(ctx, share, full, resuming, startCursor, yield); err != nil {
				return err
			}
			continue
		}

		if *resuming {
			if full == startCursor {
				*resuming = false
			}
			continue
		}

		if err := yield(FileInfo{
			Path:       full,
			Name:       entry.Name(),
			Size:       entry.Size(),
			ModifiedAt: entry.ModTime(),
			Exposure:   a.exposure(),
			Cursor:     full,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Read streams the file's contents from the share.
func (a *SMBAdapter) Read(ctx context.Context, fi FileInfo) ([]byte, error) {
	share, closer, err := a.mount(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	f, err := share.Open(fi.Path)
	if err != nil {
		return nil, apierrors.Transient("opening SMB file "+fi.Path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, apierrors.Transient("reading SMB file "+fi.Path, err)
	}
	return b, nil
}

// GetMetadata re-stats the file over the share.
func (a *SMBAdapter) GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error) {
	share, closer, err := a.mount(ctx)
	if err != nil {
		return FileInfo{}, err
	}
	defer closer()

	info, err := share.Stat(fi.Path)
	if err != nil {
		return FileInfo{}, apierrors.NotFound("SMB file not found: " + fi.Path)
	}
	fi.Size = info.Size()
	fi.ModifiedAt = info.ModTime()
	return fi, nil
}

// TestConnection mounts the share and immediately releases it.
func (a *SMBAdapter) TestConnection(ctx context.Context) error {
	_, closer, err := a.mount(ctx)
	if err != nil {
		return err
	}
	closer()
	return nil
}
