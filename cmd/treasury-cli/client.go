package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func (c *cli) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *cli) post(ctx context.Context, path, token string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req)
}

// do prints the JSON response indented. Failed invocations still return a
// receipt, which is printed before the status error.
func (c *cli) do(req *http.Request) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if json.Valid(raw) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err == nil {
			fmt.Fprintln(c.out, pretty.String())
		}
	}
	if resp.StatusCode >= 300 {
		if !json.Valid(raw) {
			return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("%s", resp.Status)
	}
	return nil
}
