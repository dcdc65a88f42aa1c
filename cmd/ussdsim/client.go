package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *client) send(ctx context.Context, sessionID, serviceCode, phone, text string) (string, error) {
	form := url.Values{
		"sessionId":   {sessionID},
		"serviceCode": {serviceCode},
		"phoneNumber": {phone},
		"text":        {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/ussd", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) processDeposits(ctx context.Context, adminKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/process-deposits", nil)
	if err != nil {
		return "", err
	}
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
