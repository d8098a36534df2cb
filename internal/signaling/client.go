// Package signaling implements the HTTP offer/answer exchange with the stream gateway.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/bdwind-viewer/internal/config"
)

const maxBodySize = 1 << 20

// Client 信令服务HTTP客户端，可被多个会话并发使用
type Client struct {
	baseURL    string
	cfg        config.SignalingConfig
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient 创建信令客户端，httpClient 为 nil 时使用默认客户端
func NewClient(cfg *config.SignalingConfig, httpClient *http.Client) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("signaling config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signaling config: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cfg:        *cfg,
		httpClient: httpClient,
		logger:     config.GetLoggerWithPrefix("signaling-client"),
	}, nil
}

// FetchICEServers GET /api/ice-servers
func (c *Client) FetchICEServers(ctx context.Context) ([]ICEServer, error) {
	const op = "fetch ice servers"

	var resp iceServersResponse
	if err := c.getJSON(ctx, op, "", c.baseURL+c.cfg.ICEServersPath, &resp); err != nil {
		return nil, err
	}

	c.logger.Debugf("Fetched %d ICE servers", len(resp.ICEServers))
	return resp.ICEServers, nil
}

// FetchCodecs GET /stream/codec/{id}，返回顺序即收发器创建顺序
func (c *Client) FetchCodecs(ctx context.Context, streamID string) ([]Codec, error) {
	const op = "fetch codecs"

	var codecs []Codec
	if err := c.getJSON(ctx, op, streamID, c.streamURL(c.cfg.CodecPath, streamID), &codecs); err != nil {
		return nil, err
	}

	for _, codec := range codecs {
		if _, err := codec.Kind(); err != nil {
			return nil, protocolError(op, streamID, err)
		}
	}

	c.logger.WithField("stream_id", streamID).Debugf("Fetched codecs: %+v", codecs)
	return codecs, nil
}

// ExchangeOffer POST /stream/receiver/{id}，提交 base64 编码的 offer 并返回解码后的 answer SDP
func (c *Client) ExchangeOffer(ctx context.Context, streamID, offerSDP string) (string, error) {
	const op = "exchange offer"

	form := url.Values{}
	form.Set("suuid", streamID)
	form.Set("data", EncodeOffer(offerSDP))

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(c.cfg.ReceiverPath, streamID), strings.NewReader(form.Encode()))
	if err != nil {
		return "", transportError(op, streamID, 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req, op, streamID)
	if err != nil {
		return "", err
	}

	answer, err := DecodeAnswer(string(body))
	if err != nil {
		return "", protocolError(op, streamID, err)
	}
	return answer, nil
}

func (c *Client) getJSON(ctx context.Context, op, streamID, target string, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return transportError(op, streamID, 0, err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req, op, streamID)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return protocolError(op, streamID, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return nil
}

// do 发送请求并读取响应体，非2xx视为传输错误
func (c *Client) do(req *http.Request, op, streamID string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, streamID, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(op, streamID, resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"stream_id": streamID,
		"status":    resp.StatusCode,
		"elapsed":   time.Since(start),
	}).Tracef("%s %s", req.Method, req.URL.Path)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transportError(op, streamID, resp.StatusCode, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
	}
	return body, nil
}

func (c *Client) streamURL(pathTemplate, streamID string) string {
	return c.baseURL + strings.ReplaceAll(pathTemplate, "{id}", url.PathEscape(streamID))
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

// IsTransient 判断是否为传输层错误
func IsTransient(err error) bool {
	return KindOf(err) == KindTransport || errors.Is(err, context.DeadlineExceeded)
}
