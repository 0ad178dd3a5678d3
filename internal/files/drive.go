package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Drive hosts attachments in a Google Drive folder.
type Drive struct {
	srv      *drive.Service
	folderID string
}

func NewDrive(srv *drive.Service, folderID string) *Drive {
	return &Drive{srv: srv, folderID: strings.TrimSpace(folderID)}
}

// NewDriveFromFiles builds a Drive host from a credentials file. Service
// account keys are used directly; OAuth client secrets need a saved token
// at tokenPath.
func NewDriveFromFiles(ctx context.Context, credentialsPath, tokenPath, folderID string) (*Drive, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read drive credentials %s: %w", credentialsPath, err)
	}

	var probe struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(b, &probe)

	var opt option.ClientOption
	if probe.Type == "service_account" {
		creds, err := google.CredentialsFromJSON(ctx, b, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account: %w", err)
		}
		opt = option.WithCredentials(creds)
	} else {
		cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
		}
		tok, err := tokenFromFile(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read drive token %s: %w", tokenPath, err)
		}
		opt = option.WithHTTPClient(cfg.Client(ctx, tok))
	}

	srv, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive client: %w", err)
	}
	return NewDrive(srv, folderID), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("no token file configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (d *Drive) Upload(ctx context.Context, f File) (Uploaded, error) {
	if f.Open == nil {
		return Uploaded{}, errors.New("files: nothing to upload")
	}
	in, err := f.Open()
	if err != nil {
		return Uploaded{}, err
	}
	defer in.Close()

	name := safeName(f.Name)
	mt := strings.TrimSpace(f.MimeType)
	if mt == "" {
		mt = guessMimeType(name)
	}
	meta := &drive.File{Name: name, MimeType: mt}
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}

	created, err := d.srv.Files.Create(meta).
		Media(in, googleapi.ContentType(mt)).
		SupportsAllDrives(true).
		Fields("id", "name", "mimeType", "size", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return Uploaded{}, fmt.Errorf("drive upload %s: %w", name, err)
	}

	link := created.WebViewLink
	if link == "" {
		link = "https://drive.google.com/file/d/" + created.Id + "/view"
	}
	if created.MimeType != "" {
		mt = created.MimeType
	}
	return Uploaded{
		FileID:    created.Id,
		Name:      name,
		URL:       link,
		MimeType:  mt,
		SizeBytes: created.Size,
	}, nil
}

func (d *Drive) Remove(ctx context.Context, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return errors.New("files: missing file id")
	}
	return d.srv.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do()
}
