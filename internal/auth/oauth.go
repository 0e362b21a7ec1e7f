package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/hookscope/hookscope/internal/storage"
)

// OAuthConfig carries the provider settings for the login flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	UserInfoURL  string
}

// Enabled reports whether a provider is configured.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.AuthURL != "" && c.TokenURL != ""
}

// OAuth runs the authorization-code + PKCE login flow against the configured
// provider and exchanges its identity for a local session token.
type OAuth struct {
	config      *oauth2.Config
	userInfoURL string
	jwtSecret   string
	store       *storage.Store

	// One-shot state -> PKCE verifier entries; consumed on callback. A state
	// that fails to round-trip is treated as a CSRF failure.
	mu      sync.Mutex
	pending map[string]pendingLogin
}

type pendingLogin struct {
	verifier string
	created  time.Time
}

const pendingLoginTTL = 10 * time.Minute

// NewOAuth wires the login flow. Returns nil when no provider is configured.
func NewOAuth(cfg OAuthConfig, jwtSecret string, store *storage.Store) *OAuth {
	if !cfg.Enabled() {
		return nil
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		jwtSecret:   jwtSecret,
		store:       store,
		pending:     make(map[string]pendingLogin),
	}
}

// HandleLogin starts the flow: generates state and a PKCE verifier, stashes
// them, and redirects the browser to the provider's authorization page.
func (o *OAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	o.mu.Lock()
	now := time.Now()
	for key, p := range o.pending {
		if now.Sub(p.created) > pendingLoginTTL {
			delete(o.pending, key)
		}
	}
	o.pending[state] = pendingLogin{verifier: verifier, created: now}
	o.mu.Unlock()

	url := o.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	http.Redirect(w, r, url, http.StatusFound)
}

// HandleCallback finishes the flow: verifies the state round-trip, exchanges
// the code, resolves the provider identity to a local user and issues the
// session cookie.
func (o *OAuth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	o.mu.Lock()
	pending, ok := o.pending[state]
	delete(o.pending, state)
	o.mu.Unlock()

	if !ok || code == "" {
		log.Printf("OAuth callback rejected: unknown state")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	token, err := o.config.Exchange(r.Context(), code, oauth2.VerifierOption(pending.verifier))
	if err != nil {
		log.Printf("OAuth token exchange failed: %v", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	info, err := o.fetchUserInfo(r.Context(), token)
	if err != nil {
		log.Printf("Failed to fetch userinfo: %v", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	user, err := o.store.GetUserByEmail(r.Context(), info.Email)
	if errors.Is(err, storage.ErrUserNotFound) {
		user, err = o.store.CreateUser(r.Context(), info.Email, info.GivenName, info.FamilyName)
		if err == nil {
			log.Printf("Created user %s", info.Email)
		}
	}
	if err != nil {
		log.Printf("Failed to resolve user %s: %v", info.Email, err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	session, err := IssueToken(o.jwtSecret, user.ID, user.Email)
	if err != nil {
		log.Printf("Failed to issue session token: %v", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	SetSessionCookie(w, session)
	http.Redirect(w, r, "/endpoints", http.StatusFound)
}

// userInfo is the subset of the OIDC userinfo response the flow needs.
type userInfo struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (o *OAuth) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*userInfo, error) {
	client := o.config.Client(ctx, token)
	resp, err := client.Get(o.userInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, fmt.Errorf("userinfo response missing email")
	}
	return &info, nil
}
