package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubUser is the portion of the GitHub /user API response we care about.
// GitHub returns a much larger object — we only unmarshal the fields we need.
//
// GitHub API docs: https://docs.github.com/en/rest/users/users#get-the-authenticated-user
type GitHubUser struct {
	ID        int64  `json:"id"`         // GitHub's numeric user ID — stable, never changes
	Login     string `json:"login"`      // GitHub username, e.g. "alice"
	Email     string `json:"email"`      // Primary email (empty if hidden in GitHub settings)
	AvatarURL string `json:"avatar_url"` // Profile picture URL
}

// githubEmail is one entry of the GET /user/emails response, used by the
// email fallback when the profile's email field is hidden.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider wraps golang.org/x/oauth2 for the GitHub Authorization Code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. Your server redirects the user to GitHub's authorization endpoint,
//    with your ClientID and the requested scopes.
// 2. The user approves (or denies) the authorization request on GitHub.
// 3. GitHub redirects back to your CallbackURL with a short-lived "code".
// 4. Your server exchanges the code for an access token (server-to-server call).
// 5. Your server uses the access token to call the GitHub API for user info.
//
// WHY SERVER-SIDE EXCHANGE?
// The code-for-token exchange happens server-to-server, using your
// ClientSecret. The provider access token never touches the browser.
//
// WHY NO RETRIES?
// OAuth codes are single-use — if the exchange fails, retrying the same
// code would fail too. The caller surfaces the failure to the user instead.
type GitHubProvider struct {
	config *oauth2.Config

	// apiBaseURL is https://api.github.com in production; tests point it at
	// an httptest.Server.
	apiBaseURL string
}

// NewGitHubProvider creates a GitHubProvider with the given credentials.
//
// You get ClientID and ClientSecret by registering an OAuth App at:
// https://github.com/settings/developers → "OAuth Apps" → "New OAuth App"
//
// callbackURL must match the "Authorization callback URL" you configured
// exactly, e.g. "https://gitdoor.example.com/api/auth/github/callback".
//
// Scopes we request:
//   - "read:user" — access to the user's public profile (ID, login, avatar)
//   - "user:email" — access to the user's email addresses (for the fallback)
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint, // pre-defined GitHub OAuth endpoints
		},
		apiBaseURL: "https://api.github.com",
	}
}

// NewGitHubProviderForTest creates a provider whose OAuth endpoint and API
// base both point at a test server. Do NOT use outside tests.
func NewGitHubProviderForTest(clientID, clientSecret, callbackURL, serverURL string) *GitHubProvider {
	p := NewGitHubProvider(clientID, clientSecret, callbackURL)
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  serverURL + "/login/oauth/authorize",
		TokenURL: serverURL + "/login/oauth/access_token",
	}
	p.apiBaseURL = serverURL
	return p
}

// AuthURL returns the URL to redirect the user to for authorization.
//
// The state parameter is a signed token minted by the Codec. When GitHub
// calls back, the callback handler verifies the signature and freshness —
// no server-side storage needed. This is what ties the redirect we issued
// to the callback we receive, preventing CSRF.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for a
// GitHub user profile. This is the core of the callback handler.
//
// Steps:
//  1. Exchange the code for an OAuth access token (server-to-server)
//  2. Use the token to call GitHub's /user API endpoint
//  3. If the profile hides the email, fall back to /user/emails and pick
//     the primary verified address
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	// Step 1: exchange authorization code → OAuth access token.
	// This makes a POST to GitHub's token endpoint using our ClientSecret.
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// Step 2: call the GitHub /user API with the token.
	// oauth2.Config.Client returns an *http.Client that automatically adds
	// the "Authorization: Bearer <token>" header to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get(p.apiBaseURL + "/user")
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}

	if ghUser.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	// Step 3: email fallback. Users can hide their email from the public
	// profile, in which case /user returns "email": null. The dedicated
	// /user/emails endpoint (covered by the user:email scope) still lists
	// them. A failure here is non-fatal — an account with no email is fine.
	if ghUser.Email == "" {
		if email, err := p.primaryEmail(ctx, client); err == nil {
			ghUser.Email = email
		}
	}

	return &ghUser, nil
}

// primaryEmail fetches the user's email list and picks the primary verified
// address, falling back to any verified one.
func (p *GitHubProvider) primaryEmail(ctx context.Context, client *http.Client) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+"/user/emails", nil)
	if err != nil {
		return "", fmt.Errorf("auth: building /user/emails request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth: calling GitHub /user/emails API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth: GitHub /user/emails API returned status %d", resp.StatusCode)
	}

	var emails []githubEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", fmt.Errorf("auth: decoding GitHub /user/emails response: %w", err)
	}

	var verified string
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if verified == "" {
			verified = e.Email
		}
	}
	if verified == "" {
		return "", fmt.Errorf("auth: no verified email on GitHub account")
	}
	return verified, nil
}
