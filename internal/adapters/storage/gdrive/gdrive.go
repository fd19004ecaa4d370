package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"clipforge/internal/adapters/storage/signedurl"
	"clipforge/internal/ports"
)

// Client implements ports.StorageProvider on Google Drive. The ref returned
// by PutObject is the Drive file ID; the requested key becomes the file name.
type Client struct {
	srv      *drive.Service
	folderID string
	signer   *signedurl.Signer
}

func NewClient(srv *drive.Service, folderID string, signer *signedurl.Signer) *Client {
	return &Client{srv: srv, folderID: folderID, signer: signer}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).Fields("id", "size")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	size := in.Size
	if created.Size > 0 {
		size = created.Size
	}
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, err
	}
	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) Exists(ctx context.Context, objectKey string) (bool, error) {
	f, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Fields("id", "trashed").
		Context(ctx).
		Do()
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !f.Trashed, nil
}

// GetSignedURL signs the Drive file ID; the API proxies the download.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	if objectKey == "" {
		return ports.SignedURLOutput{}, fmt.Errorf("object_key is required")
	}
	return c.signer.Sign(objectKey, expiresIn), nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
