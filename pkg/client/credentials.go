package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveToken writes tok to path as JSON, readable only by the current user.
func SaveToken(path string, tok *Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token %s: %w", path, err)
	}
	return nil
}

// LoadToken reads a token saved by SaveToken. An expired token is an error.
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", path, err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("token file %s is empty", path)
	}
	if !tok.ExpiresAt.IsZero() && time.Now().After(tok.ExpiresAt) {
		return nil, fmt.Errorf("token for %s expired at %s", tok.Address, tok.ExpiresAt.Format(time.RFC3339))
	}
	return &tok, nil
}

// WithTokenFile authenticates with a token saved by SaveToken.
func WithTokenFile(path string) Option {
	return func(c *Client) error {
		tok, err := LoadToken(path)
		if err != nil {
			return err
		}
		c.bearerToken = tok.Token
		return nil
	}
}
