package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxPageBytes = 5 << 20

// Budget caps how much of the prompt one tool result may take.
type Budget struct {
	Tokens int
	// Count returns the token count of s. When nil, four bytes are counted
	// as one token.
	Count func(s string) int
}

func (b Budget) count(s string) int {
	if b.Count != nil {
		return b.Count(s)
	}
	return (len(s) + 3) / 4
}

// fit keeps whole lines of text while they stay inside the budget.
func (b Budget) fit(text string) string {
	if b.Tokens <= 0 || b.count(text) <= b.Tokens {
		return text
	}
	lines := strings.Split(text, "\n")
	kept, used := 0, 0
	for _, line := range lines {
		n := b.count(line + "\n")
		if used+n > b.Tokens {
			break
		}
		used += n
		kept++
	}
	return strings.Join(lines[:kept], "\n") +
		fmt.Sprintf("\n\n[page truncated to fit the prompt: %d of %d lines shown]", kept, len(lines))
}

// ReadURL fetches a page for the model, as markdown when it is HTML, trimmed
// to the tool budget.
type ReadURL struct {
	client *http.Client
	budget Budget
}

func NewReadURL(budget Budget) *ReadURL {
	return &ReadURL{
		client: &http.Client{Timeout: 30 * time.Second},
		budget: budget,
	}
}

func (r *ReadURL) Name() string { return "read_url" }
func (r *ReadURL) Description() string {
	return "Fetch an http(s) page such as an issue, docs or a CI log. HTML is returned as markdown; long pages are cut to fit the prompt."
}
func (r *ReadURL) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "Absolute http or https URL"}
		},
		"required": ["url"]
	}`)
}

func (r *ReadURL) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if !strings.HasPrefix(in.URL, "http://") && !strings.HasPrefix(in.URL, "https://") {
		return "", errors.New("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "foreman")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", in.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: %s", in.URL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", in.URL, err)
	}
	page := string(body)
	if isHTML(resp.Header.Get("Content-Type"), page) {
		md, err := htmltomarkdown.ConvertString(page)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", in.URL, err)
		}
		page = md
	}
	page = strings.ToValidUTF8(strings.TrimSpace(page), "")

	source := resp.Request.URL.String()
	return "Source: " + source + "\n\n" + r.budget.fit(page), nil
}

func isHTML(contentType, body string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt == "text/html" || mt == "application/xhtml+xml"
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), "<")
}
