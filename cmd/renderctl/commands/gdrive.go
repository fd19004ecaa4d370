package commands

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"clipforge/internal/storage"
)

func newGDriveAuthCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdrive-auth",
		Short: "Obtain a Google Drive refresh token for STORAGE_PROVIDER=gdrive",
		Long: `Runs the OAuth consent flow against a loopback callback and prints the
refresh token to store in GDRIVE_REFRESH_TOKEN. Needs GDRIVE_CLIENT_ID and
GDRIVE_CLIENT_SECRET.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			out := cmd.OutOrStdout()

			clientID := strings.TrimSpace(e.cfg.Storage.GDriveClientID)
			clientSecret := strings.TrimSpace(e.cfg.Storage.GDriveClientSecret)
			if clientID == "" || clientSecret == "" {
				return fmt.Errorf("GDRIVE_CLIENT_ID and GDRIVE_CLIENT_SECRET are required")
			}

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return fmt.Errorf("listen for callback: %w", err)
			}
			defer ln.Close()

			redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", ln.Addr().(*net.TCPAddr).Port)
			conf := storage.DriveOAuthConfig(clientID, clientSecret, redirectURL)
			state := randomState()

			codeCh := make(chan string, 1)
			errCh := make(chan error, 1)

			mux := http.NewServeMux()
			mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
				code, err := callbackCode(r, state)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					select {
					case errCh <- err:
					default:
					}
					return
				}
				fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
				select {
				case codeCh <- code:
				default:
				}
			})

			srv := &http.Server{
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			go func() { _ = srv.Serve(ln) }()
			defer srv.Close()

			// offline access plus forced consent so a refresh token is issued
			authURL := conf.AuthCodeURL(state,
				oauth2.AccessTypeOffline,
				oauth2.SetAuthURLParam("prompt", "consent"),
			)
			fmt.Fprintf(out, "Open this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, redirectURL)

			var code string
			select {
			case code = <-codeCh:
			case err := <-errCh:
				return err
			case <-time.After(timeout):
				return fmt.Errorf("timed out waiting for authorization")
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			tok, err := conf.Exchange(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("exchange authorization code: %w", err)
			}
			if strings.TrimSpace(tok.RefreshToken) == "" {
				return fmt.Errorf("no refresh token returned; revoke the app's access at https://myaccount.google.com/permissions and run again")
			}

			fmt.Fprintf(out, "\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 3*time.Minute, "How long to wait for the browser callback")
	return cmd
}

// callbackCode validates the OAuth redirect and returns the authorization code.
func callbackCode(r *http.Request, state string) (string, error) {
	q := r.URL.Query()
	if q.Get("state") != state {
		return "", fmt.Errorf("invalid state")
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("auth error: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("missing code")
	}
	return code, nil
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
