package google

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/motorworks/invoicegen/internal/apperr"
	"github.com/motorworks/invoicegen/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	pdfMime    = "application/pdf"
	folderMime = "application/vnd.google-apps.folder"
)

// File is an uploaded Drive document.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	WebViewLink  string `json:"web_view_link,omitempty"`
	DownloadLink string `json:"download_link,omitempty"`
}

// Folder is a Drive folder the user can pick as upload target.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *session) drive(ctx context.Context, op string) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, s.options()...)
	if err != nil {
		return nil, apperr.TransportErr(op, err)
	}
	return svc, nil
}

// Upload stores a PDF. A non-empty fileID replaces that file's content;
// otherwise a new file is created in the account's folder.
func (c *Client) Upload(ctx context.Context, acct *models.GoogleAccount, fileID, name string, content []byte) (File, error) {
	const op = "google.Upload"
	s, err := c.session(ctx, op, acct)
	if err != nil {
		return File{}, err
	}
	defer s.writeBack()
	svc, err := s.drive(ctx, op)
	if err != nil {
		return File{}, err
	}

	media := googleapi.ContentType(pdfMime)
	var f *drive.File
	if fileID != "" {
		f, err = svc.Files.Update(fileID, &drive.File{}).
			Media(bytes.NewReader(content), media).
			Fields("id", "name", "webViewLink", "webContentLink").
			Context(ctx).Do()
	} else {
		meta := &drive.File{Name: name, MimeType: pdfMime}
		if acct.DriveFolderID != "" {
			meta.Parents = []string{acct.DriveFolderID}
		}
		f, err = svc.Files.Create(meta).
			Media(bytes.NewReader(content), media).
			Fields("id", "name", "webViewLink", "webContentLink").
			Context(ctx).Do()
	}
	if err != nil {
		c.logger.Warn("drive upload failed", zap.String("name", name), zap.Error(err))
		return File{}, apperr.TransportErr(op, err)
	}
	c.logger.Info("drive upload", zap.String("file_id", f.Id), zap.String("name", f.Name))
	return File{ID: f.Id, Name: f.Name, WebViewLink: f.WebViewLink, DownloadLink: f.WebContentLink}, nil
}

// Download returns the content of a Drive file.
func (c *Client) Download(ctx context.Context, acct *models.GoogleAccount, fileID string) ([]byte, error) {
	const op = "google.Download"
	s, err := c.session(ctx, op, acct)
	if err != nil {
		return nil, err
	}
	defer s.writeBack()
	svc, err := s.drive(ctx, op)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, apperr.TransportErr(op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.TransportErr(op, err)
	}
	return data, nil
}

// ListFolders returns the folders visible to the app, sorted by name.
func (c *Client) ListFolders(ctx context.Context, acct *models.GoogleAccount) ([]Folder, error) {
	const op = "google.ListFolders"
	s, err := c.session(ctx, op, acct)
	if err != nil {
		return nil, err
	}
	defer s.writeBack()
	svc, err := s.drive(ctx, op)
	if err != nil {
		return nil, err
	}

	list, err := svc.Files.List().
		Q("mimeType='" + folderMime + "' and trashed=false").
		Spaces("drive").
		Fields("files(id, name)").
		Context(ctx).Do()
	if err != nil {
		return nil, apperr.TransportErr(op, err)
	}
	folders := make([]Folder, 0, len(list.Files))
	for _, f := range list.Files {
		folders = append(folders, Folder{ID: f.Id, Name: f.Name})
	}
	sort.SliceStable(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}
