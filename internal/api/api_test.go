package api

import (
	"context"
	"fmt"
	"io"
	"lunchbell/internal/types"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
)

const TestServerPort = 39080

type fakeInbound struct {
	messageID  string
	from, body string
	pushed     map[string]string
	bindErr    error
	unbindErr  error
	message    string
	menu       string
	menuOK     bool
}

func (f *fakeInbound) HandleText(_ context.Context, messageID, from, body string) string {
	f.messageID, f.from, f.body = messageID, from, body
	return "reply to " + from
}

func (f *fakeInbound) Subscribers() types.Snapshot {
	return types.Snapshot{"alice": {types.KindSMS: "arn:a", types.KindSlack: types.LocalBinding}}
}

func (f *fakeInbound) BindPush(_ context.Context, identity, token string) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.pushed[identity] = token
	return nil
}

func (f *fakeInbound) UnbindPush(_ context.Context, identity string) error {
	if f.unbindErr != nil {
		return f.unbindErr
	}
	delete(f.pushed, identity)
	return nil
}

func (f *fakeInbound) TriggerLunch(message string) string {
	f.message = message
	return "dispatch-1"
}

func (f *fakeInbound) Menu() (string, bool) { return f.menu, f.menuOK }

type APITestSuite struct {
	suite.Suite

	in     *fakeInbound
	router http.Handler
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupTest() {
	s.in = &fakeInbound{pushed: map[string]string{}}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "lunchbell_test_total"}))
	s.router = NewHandler(s.in, reg).Router()
}

func (s *APITestSuite) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) TestHealth() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", nil, "").Code)
}

func (s *APITestSuite) TestMetrics() {
	rec := s.do(http.MethodGet, "/metrics", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "lunchbell_test_total")
}

func (s *APITestSuite) TestSMSWebhook() {
	form := url.Values{"MessageSid": {"SM1"}, "From": {"+15551234"}, "Body": {"alice: sms"}}
	rec := s.do(http.MethodPost, "/sms", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("reply to +15551234", rec.Body.String())
	s.Contains(rec.Header().Get("Content-Type"), "text/plain")
	s.Equal("alice: sms", s.in.body)
	s.Equal("SM1", s.in.messageID)
}

func (s *APITestSuite) TestSMSWebhookRequiresSender() {
	form := url.Values{"Body": {"alice: sms"}}
	rec := s.do(http.MethodPost, "/sms", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestSubscribers() {
	rec := s.do(http.MethodGet, "/subscribers", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	var got map[string]map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("arn:a", got["alice"]["sms"])
	s.Equal("local", got["alice"]["slack"])
}

func (s *APITestSuite) TestPushBinding() {
	rec := s.do(http.MethodPut, "/push/alice", strings.NewReader(`{"token":"tok"}`), "application/json")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("tok", s.in.pushed["alice"])

	rec = s.do(http.MethodPut, "/push/alice", strings.NewReader(`{}`), "application/json")
	s.Equal(http.StatusBadRequest, rec.Code)

	s.in.bindErr = types.Err(types.ErrChannelBinding, nil, "endpoint rejected")
	rec = s.do(http.MethodPut, "/push/bob", strings.NewReader(`{"token":"tok"}`), "application/json")
	s.Equal(http.StatusBadGateway, rec.Code)

	rec = s.do(http.MethodDelete, "/push/alice", nil, "")
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(s.in.pushed)

	s.in.unbindErr = types.ErrNotFound
	rec = s.do(http.MethodDelete, "/push/alice", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APITestSuite) TestLunchTrigger() {
	rec := s.do(http.MethodPost, "/lunch", nil, "")
	s.Equal(http.StatusAccepted, rec.Code)
	var got map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("dispatch_initiated", got["status"])
	s.Equal("dispatch-1", got["id"])
	s.Equal("", s.in.message)

	rec = s.do(http.MethodPost, "/lunch", strings.NewReader(`{"message":"Pizza!"}`), "application/json")
	s.Equal(http.StatusAccepted, rec.Code)
	s.Equal("Pizza!", s.in.message)

	rec = s.do(http.MethodPost, "/lunch", strings.NewReader(`{nope`), "application/json")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APITestSuite) TestMenu() {
	rec := s.do(http.MethodGet, "/menu", nil, "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), "menu_unavailable")

	s.in.menu, s.in.menuOK = "# Tacos", true
	rec = s.do(http.MethodGet, "/menu", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("# Tacos", rec.Body.String())
}

func (s *APITestSuite) TestUnknownRoute() {
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/notify", nil, "").Code)
	s.Equal(http.StatusMethodNotAllowed, s.do(http.MethodGet, "/lunch", nil, "").Code)
}

func (s *APITestSuite) TestClientIP() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	s.Equal("10.0.0.1", clientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	s.Equal("203.0.113.9", clientIP(req))
}

func (s *APITestSuite) TestRunServerInterruptible() {
	stop, done := RunServerInterruptible(TestServerPort, s.router)

	var resp *http.Response
	s.Eventually(func() bool {
		var err error
		resp, err = http.Get(fmt.Sprintf("http://localhost:%d/health", TestServerPort))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	s.Require().NotNil(resp)
	_ = resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	close(stop)
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not shut down")
	}
}
