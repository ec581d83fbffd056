package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// Scopes requested when connecting an account.
var Scopes = []string{
	gmailapi.GmailReadonlyScope,
	gmailapi.GmailSendScope,
	gmailapi.GmailModifyScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
	"openid",
}

// OAuthConfig builds the Google OAuth client configuration. No credentials
// are embedded in the binary.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// Callback is the query of an OAuth redirect.
type Callback struct {
	Code  string
	State string
}

// Loopback receives a single OAuth redirect on 127.0.0.1 for CLI sign-in.
type Loopback struct {
	RedirectURL string

	server   *http.Server
	listener net.Listener
	result   chan Callback
	errs     chan error
}

// ListenLoopback starts a callback server on a random local port.
func ListenLoopback() (*Loopback, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	lb := &Loopback{
		RedirectURL: fmt.Sprintf("http://127.0.0.1:%d/callback", port),
		listener:    listener,
		result:      make(chan Callback, 1),
		errs:        make(chan error, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") == "" {
			select {
			case lb.errs <- fmt.Errorf("no code in callback: %s", q.Get("error")):
			default:
			}
			fmt.Fprint(w, "Authentication failed. You can close this tab.")
			return
		}
		select {
		case lb.result <- Callback{Code: q.Get("code"), State: q.Get("state")}:
		default:
		}
		fmt.Fprint(w, "Authentication successful! You can close this tab.")
	})
	lb.server = &http.Server{Handler: mux}
	go lb.server.Serve(listener)
	return lb, nil
}

// Wait blocks until the browser is redirected back or ctx ends.
func (lb *Loopback) Wait(ctx context.Context) (Callback, error) {
	select {
	case cb := <-lb.result:
		return cb, nil
	case err := <-lb.errs:
		return Callback{}, err
	case <-ctx.Done():
		return Callback{}, ctx.Err()
	}
}

func (lb *Loopback) Close() error {
	err := lb.server.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
