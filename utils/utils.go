package utils

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

func Str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// CheckStatus turns a non-2xx response into an error carrying a short body snippet.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
}

// HTTPClient returns c, or http.DefaultClient when c is nil.
func HTTPClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
