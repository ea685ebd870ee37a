package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/classify"
	"github.com/Le-dev-du-coin/ts-cargo-notify/internal/models"
	"github.com/Le-dev-du-coin/ts-cargo-notify/pkg/utils"
)

const maxResponseBody = 64 * 1024

// HTTPClient talks to the WhatsApp gateway over HTTP. It understands both
// credential generations and normalizes every outcome into a SendResult.
type HTTPClient struct {
	baseURL      string
	sendTimeout  time.Duration
	mediaTimeout time.Duration
	httpClient   *http.Client
	logger       *logrus.Logger
}

// NewHTTPClient creates a gateway client. baseURL is the default endpoint,
// overridable per account.
func NewHTTPClient(baseURL string, sendTimeout, mediaTimeout time.Duration, logger *logrus.Logger) *HTTPClient {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		sendTimeout:  sendTimeout,
		mediaTimeout: mediaTimeout,
		logger:       logger,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Send delivers one message through the account named in the request.
func (c *HTTPClient) Send(ctx context.Context, req SendRequest) SendResult {
	start := time.Now()

	timeout := c.sendTimeout
	if req.MediaURL != "" {
		timeout = c.mediaTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return SendResult{
			Kind:     classify.KindConfig,
			Message:  err.Error(),
			Duration: time.Since(start),
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := classifyTransportError(err)
		c.logger.WithFields(logrus.Fields{
			"region": req.Account.Region,
			"kind":   kind,
		}).Warn("Gateway request failed")
		return SendResult{
			Kind:     kind,
			Message:  err.Error(),
			Duration: time.Since(start),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	result := interpretResponse(resp.StatusCode, body)
	result.Duration = time.Since(start)

	if result.Success {
		c.logger.WithFields(logrus.Fields{
			"region":     req.Account.Region,
			"message_id": result.MessageID,
		}).Debug("Gateway accepted message")
	}
	return result
}

func (c *HTTPClient) buildRequest(ctx context.Context, req SendRequest) (*http.Request, error) {
	base := c.baseURL
	if req.Account.BaseURL != "" {
		base = strings.TrimRight(req.Account.BaseURL, "/")
	}

	switch req.Account.Generation {
	case models.GenerationLegacy:
		return c.buildLegacyRequest(ctx, base, req)
	case models.GenerationV2:
		return c.buildV2Request(ctx, base, req)
	default:
		return nil, fmt.Errorf("unknown API generation %q for region %s", req.Account.Generation, req.Account.Region)
	}
}

// Legacy gateway accounts authenticate with instance_id and access_token
// passed as form fields alongside the message.
func (c *HTTPClient) buildLegacyRequest(ctx context.Context, base string, req SendRequest) (*http.Request, error) {
	form := url.Values{}
	form.Set("number", req.To)
	form.Set("message", req.Message)
	form.Set("instance_id", req.Account.InstanceID)
	form.Set("access_token", req.Account.AccessToken)
	if req.MediaURL != "" {
		form.Set("type", "media")
		form.Set("media_url", req.MediaURL)
		if name := mediaFilename(req.MediaURL); name != "" {
			form.Set("filename", name)
		}
	} else {
		form.Set("type", "text")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return httpReq, nil
}

// V2 gateway accounts send JSON with a bearer secret.
func (c *HTTPClient) buildV2Request(ctx context.Context, base string, req SendRequest) (*http.Request, error) {
	payload := map[string]interface{}{
		"account_id": req.Account.AccountID,
		"to":         req.To,
		"text":       req.Message,
	}
	if req.MediaURL != "" {
		payload["media_url"] = req.MediaURL
		if name := mediaFilename(req.MediaURL); name != "" {
			payload["filename"] = name
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/send-message", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Account.Secret)
	return httpReq, nil
}

// mediaFilename extracts the document name gateways display for media
// messages from the attachment URL path.
func mediaFilename(mediaURL string) string {
	parsed, err := url.Parse(mediaURL)
	if err != nil || parsed.Path == "" {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// interpretResponse maps a gateway HTTP response to a SendResult. Gateways
// disagree on response shapes, so success is detected through several paths.
func interpretResponse(status int, body []byte) SendResult {
	if status != http.StatusOK {
		return SendResult{
			Kind:       fmt.Sprintf("http_%d", status),
			Message:    snippet(body),
			HTTPStatus: status,
		}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		// A 200 with an unparseable body still counts as accepted.
		return SendResult{Success: true, HTTPStatus: status}
	}

	if id, ok := extractMessageID(parsed); ok {
		return SendResult{Success: true, MessageID: id, HTTPStatus: status}
	}

	if s, ok := parsed["status"].(string); ok && !strings.EqualFold(s, "success") {
		return SendResult{
			Kind:       classify.KindProvider,
			Message:    snippet(body),
			HTTPStatus: status,
		}
	}
	return SendResult{Success: true, HTTPStatus: status}
}

// extractMessageID walks the known response shapes for a provider message id.
func extractMessageID(parsed map[string]interface{}) (string, bool) {
	if s, ok := parsed["status"].(string); ok && strings.EqualFold(s, "success") {
		if msg, ok := parsed["message"].(map[string]interface{}); ok {
			if id := stringField(msg, "id", "key_id", "message_id"); id != "" {
				return id, true
			}
		}
		if id := stringField(parsed, "id", "message_id"); id != "" {
			return id, true
		}
		return "", true
	}
	if msg, ok := parsed["message"].(map[string]interface{}); ok {
		if s, ok := msg["status"].(string); ok && strings.EqualFold(s, "success") {
			if id := stringField(msg, "id", "key_id", "message_id"); id != "" {
				return id, true
			}
			return "", true
		}
	}
	if id := stringField(parsed, "id", "message_id"); id != "" {
		return id, true
	}
	return "", false
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// classifyTransportError maps a transport failure to a classifier kind.
func classifyTransportError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classify.KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classify.KindTimeout
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return classify.KindSSL
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "tls") || strings.Contains(msg, "certificate") || strings.Contains(msg, "ssl") {
		return classify.KindSSL
	}
	return classify.KindConnection
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
