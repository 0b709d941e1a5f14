package xts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Credentials for the interactive API.
type Credentials struct {
	AppKey    string
	SecretKey string
	UserID    string
	BaseURL   string
	TokenPath string
}

// Session holds the interactive session token, reused from disk across
// restarts and refreshed when the API answers unauthorized.
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

func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	os.Remove(s.creds.TokenPath)
}

func (s *Session) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"appKey":    s.creds.AppKey,
		"secretKey": s.creds.SecretKey,
		"source":    "WEBAPI",
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.creds.BaseURL+"/interactive/user/session", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("xts: session login: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Type   string `json:"type"`
		Result struct {
			Token string `json:"token"`
		} `json:"result"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("xts: session login decode: %w", err)
	}
	if out.Type != "success" || out.Result.Token == "" {
		return "", fmt.Errorf("xts: session login refused: %s", out.Description)
	}

	s.token = out.Result.Token
	if err := os.WriteFile(s.creds.TokenPath, []byte(s.token), 0o600); err != nil {
		log.Printf("[xts] persist token: %v", err)
	}
	log.Println("[xts] interactive session established")
	return s.token, nil
}
