package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"wa-dashboard/internal/apperrors"
)

// Identity is what an OAuth provider confirmed about the user.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// Provider is one OAuth identity provider.
type Provider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	// EmailsURL lists verified emails when the profile omits one (GitHub).
	EmailsURL string
	parse     func(body []byte) (Identity, error)
}

// GoogleProvider builds the Google provider for the given client.
func GoogleProvider(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: "google",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		parse:       parseGoogle,
	}
}

// GitHubProvider builds the GitHub provider for the given client.
func GitHubProvider(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: "github",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
		parse:       parseGitHub,
	}
}

// OAuth holds the configured providers by name.
type OAuth struct {
	providers map[string]*Provider
	client    *http.Client
}

// NewOAuth registers providers. client may be nil.
func NewOAuth(client *http.Client, providers ...*Provider) *OAuth {
	if client == nil {
		client = http.DefaultClient
	}
	o := &OAuth{providers: map[string]*Provider{}, client: client}
	for _, p := range providers {
		o.providers[p.Name] = p
	}
	return o
}

// Providers returns the names of the registered providers.
func (o *OAuth) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for name := range o.providers {
		names = append(names, name)
	}
	return names
}

func (o *OAuth) provider(name string) (*Provider, error) {
	p, ok := o.providers[name]
	if !ok {
		return nil, fmt.Errorf("oauth provider %q not configured: %w", name, apperrors.ErrNotFound)
	}
	return p, nil
}

// AuthCodeURL returns the provider consent URL carrying state.
func (o *OAuth) AuthCodeURL(name, state string) (string, error) {
	p, err := o.provider(name)
	if err != nil {
		return "", err
	}
	return p.Config.AuthCodeURL(state), nil
}

// Exchange trades the authorization code for a token and loads the identity.
func (o *OAuth) Exchange(ctx context.Context, name, code string) (Identity, error) {
	p, err := o.provider(name)
	if err != nil {
		return Identity{}, err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%s code exchange: %w: %v", name, apperrors.ErrUnauthorized, err)
	}
	client := p.Config.Client(ctx, tok)

	body, err := fetch(ctx, client, p.UserInfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("%s userinfo: %w", name, err)
	}
	id, err := p.parse(body)
	if err != nil {
		return Identity{}, fmt.Errorf("%s userinfo: %w", name, err)
	}
	id.Provider = p.Name

	if id.Email == "" && p.EmailsURL != "" {
		body, err := fetch(ctx, client, p.EmailsURL)
		if err != nil {
			return Identity{}, fmt.Errorf("%s emails: %w", name, err)
		}
		id.Email = primaryGitHubEmail(body)
	}
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	return id, nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func parseGoogle(body []byte) (Identity, error) {
	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Identity{}, fmt.Errorf("decode google profile: %w", err)
	}
	id := Identity{Subject: info.Sub, Name: info.Name}
	if info.EmailVerified {
		id.Email = info.Email
	}
	return id, nil
}

func parseGitHub(body []byte) (Identity, error) {
	var info struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return Identity{}, fmt.Errorf("decode github profile: %w", err)
	}
	name := info.Name
	if name == "" {
		name = info.Login
	}
	return Identity{Subject: strconv.FormatInt(info.ID, 10), Email: info.Email, Name: name}, nil
}

func primaryGitHubEmail(body []byte) string {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}
