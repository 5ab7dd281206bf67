package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const (
	generateSessionPath = "/generate_session/"
	resetSessionPath    = "/reset_session/"
	chatPath            = "/chat/"
)

// GenerateSession asks the backend for a fresh chat session. Conversation
// memory lives on the backend, keyed by the returned id.
func (c *Client) GenerateSession(ctx context.Context) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, generateSessionPath, nil, "", &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", errors.New("agent returned empty session id")
	}
	return resp.SessionID, nil
}

func (c *Client) ResetSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	body, contentType, err := encodeForm(map[string]string{"session_id": sessionID})
	if err != nil {
		return err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, resetSessionPath, body, contentType, &resp); err != nil {
		return err
	}
	c.logger.Debug("chat session reset", "session_id", sessionID, "message", resp.Message)
	return nil
}

func (c *Client) Chat(ctx context.Context, sessionID, query string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", errors.New("session id is required")
	}
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is required")
	}
	body, contentType, err := encodeForm(map[string]string{
		"query":      query,
		"session_id": sessionID,
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, chatPath, body, contentType, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}
