package storage

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

const (
	backendDrive   = "drive"
	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = "id, webViewLink"
)

// DriveOptions configures DriveSink.
type DriveOptions struct {
	// RootFolderID is the parent of every package folder; empty means My Drive.
	RootFolderID string
	// ShareWithEmail, when set, is granted writer access to each package folder.
	ShareWithEmail string
}

// DriveSink uploads each package into its own Google Drive folder and makes
// the folder readable by anyone with the link.
type DriveSink struct {
	svc    *drive.Service
	opts   DriveOptions
	logger *zap.Logger
}

// NewDriveSink creates a sink. Client options select credentials, e.g.
// option.WithCredentialsFile.
func NewDriveSink(ctx context.Context, opts DriveOptions, logger *zap.Logger, clientOpts ...option.ClientOption) (*DriveSink, error) {
	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, &Error{Backend: backendDrive, Message: "failed to create drive client", Cause: err}
	}
	return &DriveSink{svc: svc, opts: opts, logger: logging.OrNop(logger)}, nil
}

// Upload creates the package folder, uploads the files and shares the folder.
func (d *DriveSink) Upload(ctx context.Context, u Upload) (*types.ShareLinks, error) {
	folderMeta := &drive.File{Name: FolderName(u), MimeType: folderMimeType}
	if d.opts.RootFolderID != "" {
		folderMeta.Parents = []string{d.opts.RootFolderID}
	}
	folder, err := d.svc.Files.Create(folderMeta).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, &Error{Backend: backendDrive, Path: folderMeta.Name, Message: "failed to create folder", Cause: err}
	}

	links := &types.ShareLinks{FolderLink: folder.WebViewLink}
	for _, path := range u.files() {
		f, err := d.uploadFile(ctx, folder.Id, path)
		if err != nil {
			return nil, err
		}
		if path == u.LetterPath {
			links.LetterLink = f.WebViewLink
		} else {
			links.ArchiveLink = f.WebViewLink
		}
	}

	if _, err := d.svc.Permissions.Create(folder.Id, &drive.Permission{Type: "anyone", Role: "reader"}).
		Context(ctx).Do(); err != nil {
		return nil, &Error{Backend: backendDrive, Path: folderMeta.Name, Message: "failed to share folder", Cause: err}
	}
	if d.opts.ShareWithEmail != "" {
		if _, err := d.svc.Permissions.Create(folder.Id, &drive.Permission{
			Type:         "user",
			Role:         "writer",
			EmailAddress: d.opts.ShareWithEmail,
		}).SendNotificationEmail(false).Context(ctx).Do(); err != nil {
			d.logger.Warn("failed to share folder with user",
				zap.String("email", d.opts.ShareWithEmail), zap.Error(err))
		}
	}

	d.logger.Info("package uploaded to drive",
		zap.String("tracking_id", u.TrackingID),
		zap.String("folder_id", folder.Id))
	return links, nil
}

func (d *DriveSink) uploadFile(ctx context.Context, folderID, path string) (*drive.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Backend: backendDrive, Path: path, Message: "failed to open file", Cause: err}
	}
	defer func() { _ = file.Close() }()

	meta := &drive.File{
		Name:     filepath.Base(path),
		MimeType: contentType(path),
		Parents:  []string{folderID},
	}
	created, err := d.svc.Files.Create(meta).Media(file).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return nil, &Error{Backend: backendDrive, Path: path, Message: "failed to upload file", Cause: err}
	}
	return created, nil
}
