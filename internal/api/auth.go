/**
 * JWT service authentication for the remote service
 *
 * Loads the Box-style JWT app settings file, signs an RS256 client assertion
 * and exchanges it at the token endpoint for a short-lived access token.
 * Tokens can be minted for the service account (enterprise subject) or for a
 * managed/app user (user subject). The service-account token is cached until
 * shortly before expiry; per-user tokens are minted on demand because the
 * fix engine keeps its own credential cache.
 *
 * Author: box-fixer team
 */

package api

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/errors"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
)

const (
	jwtGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// Assertion lifetime. The token endpoint rejects anything over 60s.
	assertionTTL = 30 * time.Second

	// Refresh the cached service token this long before it expires.
	tokenExpiryMargin = 2 * time.Minute
)

// JWTSettings mirrors the app settings JSON downloaded from the developer
// console.
type JWTSettings struct {
	BoxAppSettings struct {
		ClientID     string `json:"clientID"`
		ClientSecret string `json:"clientSecret"`
		AppAuth      struct {
			PublicKeyID string `json:"publicKeyID"`
			PrivateKey  string `json:"privateKey"`
			Passphrase  string `json:"passphrase"`
		} `json:"appAuth"`
	} `json:"boxAppSettings"`
	EnterpriseID string `json:"enterpriseID"`
}

// AuthManager mints access tokens from the JWT app credentials.
type AuthManager struct {
	settings   *JWTSettings
	privateKey *rsa.PrivateKey
	tokenURL   string
	httpClient *http.Client
	logger     *logger.Logger

	mu           sync.Mutex
	serviceToken *oauth2.Token
}

// NewAuthManager loads the settings file and parses the signing key.
func NewAuthManager(settingsPath, tokenURL string, httpClient *http.Client, log *logger.Logger) (*AuthManager, error) {
	raw, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, errors.New(errors.TypeConfiguration, "load_jwt_settings", err)
	}

	settings := &JWTSettings{}
	if err := json.Unmarshal(raw, settings); err != nil {
		return nil, errors.New(errors.TypeConfiguration, "parse_jwt_settings", err)
	}
	if settings.BoxAppSettings.ClientID == "" || settings.BoxAppSettings.AppAuth.PrivateKey == "" {
		return nil, errors.New(errors.TypeConfiguration, "parse_jwt_settings",
			errors.NewSimple("settings file is missing clientID or privateKey"))
	}

	key, err := parsePrivateKey(settings.BoxAppSettings.AppAuth.PrivateKey, settings.BoxAppSettings.AppAuth.Passphrase)
	if err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &AuthManager{
		settings:   settings,
		privateKey: key,
		tokenURL:   tokenURL,
		httpClient: httpClient,
		logger:     log,
	}, nil
}

// parsePrivateKey accepts PKCS#1 and unencrypted PKCS#8 PEM keys. The
// console issues passphrase-protected keys; those must be decrypted once
// with openssl before use, and we fail loudly instead of guessing.
func parsePrivateKey(pemData, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New(errors.TypeConfiguration, "parse_private_key",
			errors.NewSimple("no PEM block found in private key"))
	}

	if passphrase != "" || strings.Contains(block.Type, "ENCRYPTED") {
		return nil, errors.New(errors.TypeConfiguration, "parse_private_key",
			errors.NewSimple("encrypted private keys are not supported; decrypt the key first (openssl pkcs8 ...)"))
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New(errors.TypeConfiguration, "parse_private_key", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New(errors.TypeConfiguration, "parse_private_key",
			errors.NewSimple("private key is not RSA"))
	}
	return rsaKey, nil
}

// ClientID returns the app's client id.
func (am *AuthManager) ClientID() string {
	return am.settings.BoxAppSettings.ClientID
}

// ServiceToken returns a cached service-account token, minting a new one
// when the cache is empty or close to expiry.
func (am *AuthManager) ServiceToken(ctx context.Context) (string, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if am.serviceToken != nil && time.Until(am.serviceToken.Expiry) > tokenExpiryMargin {
		return am.serviceToken.AccessToken, nil
	}

	token, err := am.mint(ctx, "enterprise", am.settings.EnterpriseID)
	if err != nil {
		return "", err
	}
	am.serviceToken = token

	if am.logger != nil {
		am.logger.Debug("Service account token minted", "expires_at", token.Expiry)
	}
	return token.AccessToken, nil
}

// UserToken mints a fresh token for the given user id. No caching here:
// the fix engine's credential broker owns token reuse.
func (am *AuthManager) UserToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	return am.mint(ctx, "user", userID)
}

// mint signs a client assertion for the subject and exchanges it.
func (am *AuthManager) mint(ctx context.Context, subType, subject string) (*oauth2.Token, error) {
	if subject == "" {
		return nil, errors.New(errors.TypeConfiguration, "mint_token",
			errors.NewSimple("empty token subject"))
	}

	assertion, err := am.signAssertion(subType, subject)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {jwtGrantType},
		"assertion":     {assertion},
		"client_id":     {am.settings.BoxAppSettings.ClientID},
		"client_secret": {am.settings.BoxAppSettings.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, am.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.New(errors.TypeConfiguration, "mint_token", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := am.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.TypeNetwork, "mint_token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError("mint_token", resp)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.New(errors.TypeUnknown, "mint_token", fmt.Errorf("decode token response: %w", err))
	}
	if body.AccessToken == "" {
		return nil, errors.New(errors.TypeUnknown, "mint_token",
			errors.NewSimple("token response missing access_token"))
	}

	return &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   body.TokenType,
		Expiry:      time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

// signAssertion builds the RS256 client assertion for one token exchange.
func (am *AuthManager) signAssertion(subType, subject string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":          am.settings.BoxAppSettings.ClientID,
		"sub":          subject,
		"box_sub_type": subType,
		"aud":          am.tokenURL,
		"jti":          uuid.NewString(),
		"exp":          now.Add(assertionTTL).Unix(),
		"iat":          now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = am.settings.BoxAppSettings.AppAuth.PublicKeyID

	signed, err := token.SignedString(am.privateKey)
	if err != nil {
		return "", errors.New(errors.TypeConfiguration, "sign_assertion", err)
	}
	return signed, nil
}
