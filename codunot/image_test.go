package codunot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) Recognize(context.Context, []byte) (string, error) {
	return s.text, s.err
}

func TestHasImage(t *testing.T) {
	assert.False(t, HasImage(&discordgo.Message{Content: "no image here"}))

	assert.True(
		t,
		HasImage(
			&discordgo.Message{
				Attachments: []*discordgo.MessageAttachment{
					{ContentType: "image/png", URL: "https://x/y.png"},
				},
			},
		),
	)
	assert.False(
		t,
		HasImage(
			&discordgo.Message{
				Attachments: []*discordgo.MessageAttachment{
					{ContentType: "video/mp4", URL: "https://x/y.mp4"},
				},
			},
		),
	)
	assert.True(
		t,
		HasImage(
			&discordgo.Message{
				Embeds: []*discordgo.MessageEmbed{
					{Image: &discordgo.MessageEmbedImage{URL: "https://x/y.png"}},
				},
			},
		),
	)
}

func TestExtractImageBytesFromAttachment(t *testing.T) {
	payload := []byte("fake-png-bytes")
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write(payload)
			},
		),
	)
	t.Cleanup(srv.Close)

	p := NewImagePipeline(nil, nil, testLogger(t))
	m := &discordgo.Message{
		Attachments: []*discordgo.MessageAttachment{
			{ContentType: "image/png", URL: srv.URL + "/img.png"},
		},
	}

	data, mimeType, ok := p.ExtractImageBytes(context.Background(), m)
	require.True(t, ok)
	assert.Equal(t, payload, data)
	assert.Equal(t, "image/png", mimeType)
}

func TestExtractImageBytesFromBodyURLRequiresImageType(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/page" {
					w.Header().Set("Content-Type", "text/html")
					_, _ = w.Write([]byte("<html></html>"))
					return
				}
				w.Header().Set("Content-Type", "image/jpeg")
				_, _ = w.Write([]byte("jpeg-bytes"))
			},
		),
	)
	t.Cleanup(srv.Close)

	p := NewImagePipeline(nil, nil, testLogger(t))

	// a non-image URL in the body is not an image message
	_, _, ok := p.ExtractImageBytes(
		context.Background(),
		&discordgo.Message{Content: "look at " + srv.URL + "/page"},
	)
	assert.False(t, ok)

	data, mimeType, ok := p.ExtractImageBytes(
		context.Background(),
		&discordgo.Message{Content: "look at " + srv.URL + "/photo.jpg"},
	)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "image/jpeg", mimeType)
}

func TestExtractImageBytesFetchFailureIsMiss(t *testing.T) {
	p := NewImagePipeline(nil, nil, testLogger(t))
	m := &discordgo.Message{
		Attachments: []*discordgo.MessageAttachment{
			{ContentType: "image/png", URL: "http://127.0.0.1:1/gone.png"},
		},
	}
	_, _, ok := p.ExtractImageBytes(context.Background(), m)
	assert.False(t, ok)
}

func TestOCRTextMarkers(t *testing.T) {
	img := []byte("img")

	p := NewImagePipeline(nil, stubOCR{text: "hello world"}, testLogger(t))
	assert.Equal(t, "hello world", p.OCRText(context.Background(), img))

	p = NewImagePipeline(nil, stubOCR{text: "   "}, testLogger(t))
	assert.Equal(t, ocrNoTextMarker, p.OCRText(context.Background(), img))

	p = NewImagePipeline(nil, stubOCR{err: errors.New("boom")}, testLogger(t))
	assert.Equal(t, ocrFailedMarker, p.OCRText(context.Background(), img))

	p = NewImagePipeline(nil, nil, testLogger(t))
	assert.Equal(t, ocrFailedMarker, p.OCRText(context.Background(), img))
}

func TestBuildImagePrompt(t *testing.T) {
	prompt := BuildImagePrompt(personaImage, "what's this?", "SOME OCR TEXT")
	assert.Contains(t, prompt, personaImage)
	assert.Contains(t, prompt, "----\nSOME OCR TEXT\n----")
	assert.Contains(t, prompt, "what's this?")
	assert.Contains(t, prompt, "Never mention")

	prompt = BuildImagePrompt(personaImage, "  ", ocrNoTextMarker)
	assert.NotContains(t, prompt, "The user said")
}
