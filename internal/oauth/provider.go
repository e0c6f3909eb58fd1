package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"oauth2jwt/internal/config"
	"oauth2jwt/internal/models"

	"golang.org/x/oauth2"
)

var (
	ErrExchange = errors.New("oauth: code exchange failed")
	ErrUserInfo = errors.New("oauth: userinfo request failed")
)

var defaultScopes = []string{"openid", "email", "profile"}

// maxUserInfoBytes caps the userinfo body read from the provider.
const maxUserInfoBytes = 1 << 20

// GoogleProvider runs the authorization code handshake against google and
// turns the result into a models.ExternalIdentity.
type GoogleProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(cfg config.Google) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       defaultScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthCodeURL is the consent page the user agent is redirected to.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type userInfo struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Exchange trades code for a provider token and fetches the user's profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (models.ExternalIdentity, error) {
	const op = "oauth.Exchange"

	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return models.ExternalIdentity{}, fmt.Errorf("%s: %w: %w", op, ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return models.ExternalIdentity{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return models.ExternalIdentity{}, fmt.Errorf("%s: %w: %w", op, ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ExternalIdentity{}, fmt.Errorf("%s: %w: status %d", op, ErrUserInfo, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return models.ExternalIdentity{}, fmt.Errorf("%s: %w: %w", op, ErrUserInfo, err)
	}

	return models.ExternalIdentity{
		Provider: models.ProviderGoogle,
		Subject:  info.Sub,
		Email:    strings.ToLower(strings.TrimSpace(info.Email)),
		Name:     info.Name,
		Picture:  info.Picture,
	}, nil
}
