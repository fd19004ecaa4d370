package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"clipforge/internal/adapters/storage/gdrive"
	"clipforge/internal/adapters/storage/localfs"
	"clipforge/internal/adapters/storage/signedurl"
	"clipforge/internal/config"
)

// NewProvider builds the configured backend. The returned Signer verifies the
// URLs the provider issues and is shared with the content handler.
func NewProvider(ctx context.Context, cfg config.StorageConfig, publicBaseURL string) (Provider, *signedurl.Signer, error) {
	signer := signedurl.New(cfg.SigningKey, publicBaseURL)

	switch cfg.Provider {
	case "", "localfs":
		return localfs.New(cfg.LocalRoot, signer), signer, nil

	case "gdrive":
		p, err := newGDriveProvider(ctx, cfg, signer)
		if err != nil {
			return nil, nil, err
		}
		return p, signer, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// DriveOAuthConfig returns the OAuth2 client used for Drive. redirectURL is
// only needed for the interactive consent flow.
func DriveOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func newGDriveProvider(ctx context.Context, cfg config.StorageConfig, signer *signedurl.Signer) (Provider, error) {
	conf := DriveOAuthConfig(cfg.GDriveClientID, cfg.GDriveClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gdrive service: %w", err)
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID, signer), nil
}
