package menu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/suite"
)

type ProviderTestSuite struct {
	suite.Suite

	srv *httptest.Server
}

func TestProviderTestSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (s *ProviderTestSuite) SetupSuite() {
	mux := http.NewServeMux()
	mux.HandleFunc("/menu.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><h1>Today</h1><ul><li>Tacos</li><li>Salad</li></ul></body></html>`))
	})
	mux.HandleFunc("/menu.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"days":[{"day":"mon","dishes":["Tacos","Salad"]}]}`))
	})
	mux.HandleFunc("/long.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"a` + strings.Repeat("é", 5000) + `"}`))
	})
	mux.HandleFunc("/empty.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	s.srv = httptest.NewServer(mux)
}

func (s *ProviderTestSuite) TearDownSuite() {
	s.srv.Close()
}

func (s *ProviderTestSuite) TestHTMLToMarkdown() {
	p := NewHTTPProvider(s.srv.URL+"/menu.html", "", time.Second)
	content, err := p.FetchTodaysMenu(context.Background())
	s.NoError(err)
	s.Contains(content, "# Today")
	s.Contains(content, "Tacos")
	s.Contains(content, "Salad")
}

func (s *ProviderTestSuite) TestJSONWithExpression() {
	p := NewHTTPProvider(s.srv.URL+"/menu.json", "days[?day=='mon'] | [0].dishes", time.Second)
	content, err := p.FetchTodaysMenu(context.Background())
	s.NoError(err)
	s.Equal("Tacos\nSalad", content)
}

func (s *ProviderTestSuite) TestJSONExpressionMiss() {
	p := NewHTTPProvider(s.srv.URL+"/menu.json", "nothing_here", time.Second)
	_, err := p.FetchTodaysMenu(context.Background())
	s.Error(err)
}

func (s *ProviderTestSuite) TestEmptyPage() {
	p := NewHTTPProvider(s.srv.URL+"/empty.html", "", time.Second)
	_, err := p.FetchTodaysMenu(context.Background())
	s.Error(err)
}

func (s *ProviderTestSuite) TestBadStatus() {
	p := NewHTTPProvider(s.srv.URL+"/down", "", time.Second)
	_, err := p.FetchTodaysMenu(context.Background())
	s.ErrorContains(err, "status 503")
}

func (s *ProviderTestSuite) TestLongMenuIsTruncatedOnRuneBoundary() {
	p := NewHTTPProvider(s.srv.URL+"/long.json", "text", time.Second)
	content, err := p.FetchTodaysMenu(context.Background())
	s.Require().NoError(err)
	s.True(utf8.ValidString(content))
	s.True(strings.HasSuffix(content, "\n\n[Menu truncated]"))

	kept := strings.TrimSuffix(content, "\n\n[Menu truncated]")
	s.LessOrEqual(len(kept), maxContentBytes)
	s.Equal("a"+strings.Repeat("é", 3999), kept)
}

func (s *ProviderTestSuite) TestTruncate() {
	s.Equal("short", truncate("short", 10))
	s.Equal("a", truncate("aé", 2))
	s.Equal("aé", truncate("aé", 3))
	s.Equal("", truncate("日本", 2))
}
