package menu

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

const (
	maxBodyBytes    = 1 << 20
	maxContentBytes = 8000
	userAgent       = "lunchbell/1.0"
)

// HTTPProvider fetches today's menu from a web page. HTML pages are converted to
// markdown; JSON documents are narrowed with a JMESPath expression.
type HTTPProvider struct {
	url    string
	expr   string
	client *http.Client
}

// NewHTTPProvider returns a provider for url. expr is the JMESPath expression used
// when the response is JSON; empty means the whole document.
func NewHTTPProvider(url, expr string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		expr:   expr,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) FetchTodaysMenu(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch menu: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch menu: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	var content string
	if isJSON(resp.Header.Get("Content-Type")) {
		content, err = extractJSON(body, p.expr)
	} else {
		content, err = htmltomarkdown.ConvertString(string(body))
	}
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("menu is empty")
	}
	if len(content) > maxContentBytes {
		content = truncate(content, maxContentBytes) + "\n\n[Menu truncated]"
	}
	return content, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// extractJSON evaluates expr against the document and coerces the result to text.
// Lists of strings are joined one per line.
func extractJSON(body []byte, expr string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("invalid json menu: %w", err)
	}
	v := doc
	if expr != "" {
		var err error
		v, err = jmespath.Search(expr, doc)
		if err != nil {
			return "", fmt.Errorf("jmespath: %w", err)
		}
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				lines = append(lines, s)
				continue
			}
			b, _ := json.Marshal(item)
			lines = append(lines, string(b))
		}
		return strings.Join(lines, "\n"), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
