package codunot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	imageFetchTimeout = 10 * time.Second
	maxImageBytes     = 8 << 20

	ocrNoTextMarker = "[No readable text detected]"
	ocrFailedMarker = "[OCR failed]"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// OCRClient is the external OCR collaborator.
type OCRClient interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// HTTPOCRClient posts image bytes to a configured OCR endpoint and
// expects {"text": "..."} back.
type HTTPOCRClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPOCRClient(config *OCRConfig) *HTTPOCRClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultOCRTimeout
	}
	return &HTTPOCRClient{
		endpoint:   config.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPOCRClient) Recognize(ctx context.Context, image []byte) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("no OCR endpoint configured")
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.endpoint,
		bytes.NewReader(image),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Text, nil
}

// ImagePipeline extracts image bytes from inbound messages, runs the
// OCR collaborator, and composes vision prompts.
type ImagePipeline struct {
	httpClient *http.Client
	ocr        OCRClient
	logger     *slog.Logger
}

func NewImagePipeline(
	httpClient *http.Client,
	ocr OCRClient,
	logger *slog.Logger,
) *ImagePipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: imageFetchTimeout}
	}
	return &ImagePipeline{
		httpClient: httpClient,
		ocr:        ocr,
		logger:     logger.With(loggerNameKey, "image"),
	}
}

// HasImage reports whether the message plausibly carries an image,
// without fetching anything.
func HasImage(m *discordgo.Message) bool {
	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			return true
		}
	}
	for _, embed := range m.Embeds {
		if embed.Image != nil || embed.Thumbnail != nil {
			return true
		}
	}
	return false
}

// ExtractImageBytes searches attachments, then embed image/thumbnail
// URLs, then any URL in the message body whose GET returns an image
// content type. Fetch failures are treated as "no image".
func (p *ImagePipeline) ExtractImageBytes(
	ctx context.Context,
	m *discordgo.Message,
) (data []byte, mimeType string, ok bool) {
	for _, att := range m.Attachments {
		if !strings.HasPrefix(att.ContentType, "image/") {
			continue
		}
		if data, mimeType, ok = p.fetch(ctx, att.URL, false); ok {
			if mimeType == "" {
				mimeType = att.ContentType
			}
			return data, mimeType, true
		}
	}

	for _, embed := range m.Embeds {
		if embed.Image != nil {
			if data, mimeType, ok = p.fetch(ctx, embed.Image.URL, false); ok {
				return data, mimeType, true
			}
		}
		if embed.Thumbnail != nil {
			if data, mimeType, ok = p.fetch(ctx, embed.Thumbnail.URL, false); ok {
				return data, mimeType, true
			}
		}
	}

	for _, link := range urlPattern.FindAllString(m.Content, -1) {
		if data, mimeType, ok = p.fetch(ctx, link, true); ok {
			return data, mimeType, true
		}
	}

	return nil, "", false
}

// fetch GETs the URL. When requireImageType is set, a non-image
// content type is treated as a miss rather than an error.
func (p *ImagePipeline) fetch(
	ctx context.Context,
	rawURL string,
	requireImageType bool,
) ([]byte, string, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, imageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("image fetch failed", "url", rawURL, tint.Err(err))
		return nil, "", false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, "", false
	}

	contentType := resp.Header.Get("Content-Type")
	if requireImageType && !strings.HasPrefix(contentType, "image/") {
		return nil, "", false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil || len(data) == 0 {
		return nil, "", false
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = ""
	}
	return data, contentType, true
}

// OCRText runs the OCR collaborator and substitutes the fixed markers
// for empty or failed results.
func (p *ImagePipeline) OCRText(ctx context.Context, image []byte) string {
	if p.ocr == nil {
		return ocrFailedMarker
	}
	text, err := p.ocr.Recognize(ctx, image)
	if err != nil {
		p.logger.Warn("ocr failed", tint.Err(err))
		return ocrFailedMarker
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ocrNoTextMarker
	}
	return text
}

// BuildImagePrompt composes the persona-prefixed vision prompt with the
// OCR text fenced off. The model is told to answer from the extracted
// text when present, to fall back to the image itself otherwise, and
// never to mention whether OCR succeeded.
func BuildImagePrompt(persona string, userText string, ocrText string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nText extracted from the image:\n----\n")
	b.WriteString(ocrText)
	b.WriteString("\n----\n")
	b.WriteString(
		"Answer based on the extracted text above. If there is no usable " +
			"text, help based on the image content itself. Never mention " +
			"whether text extraction worked.",
	)
	if strings.TrimSpace(userText) != "" {
		b.WriteString("\n\nThe user said: ")
		b.WriteString(userText)
	}
	return b.String()
}
