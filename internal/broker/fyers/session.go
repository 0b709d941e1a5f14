package fyers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	authBaseURL = "https://api-t2.fyers.in/vagator/v2"
	apiBaseURL  = "https://api-t1.fyers.in/api/v3"
)

// Credentials holds everything the automated login chain needs.
type Credentials struct {
	AppID      string // "XXXXXXXX-100"
	SecretKey  string
	ClientID   string // FY id
	PIN        string
	TOTPSecret string
	TokenPath  string
}

// Session manages the access token: reuse from disk when present,
// otherwise run the OTP/PIN/auth-code chain. Safe for concurrent use.
type Session struct {
	creds  Credentials
	client *http.Client

	mu    sync.Mutex
	token string
}

func NewSession(creds Credentials) *Session {
	return &Session{
		creds:  creds,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a usable access token, logging in if none is cached.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" {
		return s.token, nil
	}
	if tok, err := os.ReadFile(s.creds.TokenPath); err == nil {
		if t := strings.TrimSpace(string(tok)); t != "" {
			s.token = t
			return s.token, nil
		}
	}
	return s.login(ctx)
}

// Invalidate drops the cached token, forcing a fresh login on the next
// Token call. Called when the API answers unauthorized.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	os.Remove(s.creds.TokenPath)
}

// login runs the headless chain: send OTP, answer with TOTP, verify
// PIN, exchange the intermediate token for an auth code, validate it.
func (s *Session) login(ctx context.Context) (string, error) {
	log.Printf("[fyers] starting automated login for %s", s.creds.ClientID)

	var otpResp struct {
		RequestKey string `json:"request_key"`
	}
	err := s.postJSON(ctx, authBaseURL+"/send_login_otp_v2", "", map[string]any{
		"fy_id":  base64.StdEncoding.EncodeToString([]byte(s.creds.ClientID)),
		"app_id": "2",
	}, &otpResp)
	if err != nil {
		return "", fmt.Errorf("fyers: send otp: %w", err)
	}

	code, err := totp.GenerateCode(s.creds.TOTPSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("fyers: totp: %w", err)
	}
	var verifyResp struct {
		RequestKey string `json:"request_key"`
	}
	err = s.postJSON(ctx, authBaseURL+"/verify_otp", "", map[string]any{
		"request_key": otpResp.RequestKey,
		"otp":         code,
	}, &verifyResp)
	if err != nil {
		return "", fmt.Errorf("fyers: verify otp: %w", err)
	}

	var pinResp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	err = s.postJSON(ctx, authBaseURL+"/verify_pin_v2", "", map[string]any{
		"request_key":   verifyResp.RequestKey,
		"identity_type": "pin",
		"identifier":    base64.StdEncoding.EncodeToString([]byte(s.creds.PIN)),
	}, &pinResp)
	if err != nil {
		return "", fmt.Errorf("fyers: verify pin: %w", err)
	}

	appID := strings.TrimSuffix(s.creds.AppID, "-100")
	var tokenResp struct {
		URL string `json:"Url"`
	}
	err = s.postJSON(ctx, apiBaseURL+"/token", "Bearer "+pinResp.Data.AccessToken, map[string]any{
		"fyers_id":      s.creds.ClientID,
		"app_id":        appID,
		"redirect_uri":  "https://trade.fyers.in/api-login/redirect-uri/index.html",
		"appType":       "100",
		"code_challenge": "",
		"state":         "None",
		"scope":         "",
		"nonce":         "",
		"response_type": "code",
		"create_cookie": true,
	}, &tokenResp)
	if err != nil {
		return "", fmt.Errorf("fyers: auth code: %w", err)
	}
	authCode, err := extractAuthCode(tokenResp.URL)
	if err != nil {
		return "", fmt.Errorf("fyers: auth code: %w", err)
	}

	hash := sha256.Sum256([]byte(s.creds.AppID + ":" + s.creds.SecretKey))
	var finalResp struct {
		AccessToken string `json:"access_token"`
		S           string `json:"s"`
		Message     string `json:"message"`
	}
	err = s.postJSON(ctx, apiBaseURL+"/validate-authcode", "", map[string]any{
		"grant_type": "authorization_code",
		"appIdHash":  hex.EncodeToString(hash[:]),
		"code":       authCode,
	}, &finalResp)
	if err != nil {
		return "", fmt.Errorf("fyers: validate authcode: %w", err)
	}
	if finalResp.AccessToken == "" {
		return "", fmt.Errorf("fyers: login refused: %s", finalResp.Message)
	}

	s.token = finalResp.AccessToken
	if err := os.WriteFile(s.creds.TokenPath, []byte(s.token), 0o600); err != nil {
		log.Printf("[fyers] persist token: %v", err)
	}
	log.Println("[fyers] login complete, token cached")
	return s.token, nil
}

func extractAuthCode(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	code := u.Query().Get("auth_code")
	if code == "" {
		return "", fmt.Errorf("no auth_code in redirect %q", rawURL)
	}
	return code, nil
}

func (s *Session) postJSON(ctx context.Context, url, auth string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
