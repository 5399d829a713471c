package model

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opensource-finance/quantra/internal/domain"
)

// RemoteClient calls a remote inference endpoint over HTTP JSON.
type RemoteClient struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	headers map[string]string
}

// ClientOption configures a RemoteClient.
type ClientOption func(*RemoteClient)

// WithBearerToken authenticates every request with the token.
func WithBearerToken(token string) ClientOption {
	return func(c *RemoteClient) {
		c.headers["Authorization"] = "Bearer " + token
	}
}

// NewRemoteClient creates a client for one endpoint.
func NewRemoteClient(name, url string, timeout time.Duration, cfg domain.BreakerConfig, opts ...ClientOption) *RemoteClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &RemoteClient{
		url:     strings.TrimRight(url, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker(name, cfg),
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post sends req as JSON to the endpoint plus path and decodes the reply.
func (c *RemoteClient) Post(ctx context.Context, path string, req, resp any) error {
	return c.call(ctx, path, req, resp)
}

// call posts req as JSON to url+path and decodes the response into resp.
func (c *RemoteClient) call(ctx context.Context, path string, req, resp any) error {
	_, err := execute(c.breaker, func() (struct{}, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return struct{}{}, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			httpReq.Header.Set(k, v)
		}

		res, err := c.http.Do(httpReq)
		if err != nil {
			return struct{}{}, err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return struct{}{}, fmt.Errorf("remote returned %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
		}
		return struct{}{}, json.NewDecoder(res.Body).Decode(resp)
	})
	return err
}

// encodeImage renders an image as base64 PNG for transport.
func encodeImage(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

type imageRequest struct {
	Image string `json:"image"`
	Box   []int  `json:"box,omitempty"`
}

// RemoteDocumentValidator scores document authenticity on the sidecar.
type RemoteDocumentValidator struct {
	client *RemoteClient
}

// NewRemoteDocumentValidator wraps a sidecar client.
func NewRemoteDocumentValidator(c *RemoteClient) *RemoteDocumentValidator {
	return &RemoteDocumentValidator{client: c}
}

func (v *RemoteDocumentValidator) ValidateDocument(ctx context.Context, img image.Image) (float64, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Probability float64 `json:"probability"`
	}
	if err := v.client.call(ctx, "", imageRequest{Image: encoded}, &resp); err != nil {
		return 0, err
	}
	return resp.Probability, nil
}

// RemoteTextExtractor runs OCR on the sidecar.
type RemoteTextExtractor struct {
	client *RemoteClient
}

// NewRemoteTextExtractor wraps a sidecar client.
func NewRemoteTextExtractor(c *RemoteClient) *RemoteTextExtractor {
	return &RemoteTextExtractor{client: c}
}

func (x *RemoteTextExtractor) ExtractText(ctx context.Context, img *image.Gray) (string, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return "", err
	}
	var resp struct {
		Text string `json:"text"`
	}
	if err := x.client.call(ctx, "", imageRequest{Image: encoded}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// RemoteFaceMatcher locates and encodes faces on the sidecar and compares
// embeddings locally by Euclidean distance.
type RemoteFaceMatcher struct {
	client *RemoteClient
}

// NewRemoteFaceMatcher wraps a sidecar client.
func NewRemoteFaceMatcher(c *RemoteClient) *RemoteFaceMatcher {
	return &RemoteFaceMatcher{client: c}
}

func (f *RemoteFaceMatcher) LocateFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Boxes [][4]int `json:"boxes"`
	}
	if err := f.client.call(ctx, "/locate", imageRequest{Image: encoded}, &resp); err != nil {
		return nil, err
	}
	boxes := make([]image.Rectangle, 0, len(resp.Boxes))
	for _, b := range resp.Boxes {
		boxes = append(boxes, image.Rect(b[0], b[1], b[2], b[3]))
	}
	return boxes, nil
}

func (f *RemoteFaceMatcher) EncodeFace(ctx context.Context, img image.Image, box image.Rectangle) (domain.Embedding, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, err
	}
	req := imageRequest{
		Image: encoded,
		Box:   []int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y},
	}
	var resp struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := f.client.call(ctx, "/encode", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("sidecar returned an empty embedding")
	}
	return resp.Embedding, nil
}

// Distance is the Euclidean distance between two embeddings. Embeddings of
// different lengths are infinitely far apart.
func (f *RemoteFaceMatcher) Distance(a, b domain.Embedding) float64 {
	return EuclideanDistance(a, b)
}

// EuclideanDistance compares two embeddings.
func EuclideanDistance(a, b domain.Embedding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
