package qwen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ecowing/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSendsImageAsDataURL(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"primary_waste\":\"Metal\"}  "},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	c := NewClient("secret", srv.URL, "qwen-vl-plus")
	out, err := c.Analyze(context.Background(), llm.Media{Data: []byte{1, 2, 3}, MIMEType: "image/png"}, "describe")
	require.NoError(t, err)
	assert.Equal(t, `{"primary_waste":"Metal"}`, out)

	assert.Equal(t, "qwen-vl-plus", body["model"])
	msgs := body["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	img := parts[0].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,AQID", img["url"])
	assert.Equal(t, "describe", parts[1].(map[string]any)["text"])
}

func TestAnalyzeRejectsVideo(t *testing.T) {
	c := NewClient("k", "http://127.0.0.1:1", "qwen-vl-plus")
	_, err := c.Analyze(context.Background(), llm.Media{Data: []byte{0}, MIMEType: "video/mp4"}, "p")
	assert.ErrorIs(t, err, llm.ErrUnsupportedMedia)
}

func TestAnalyzeSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "qwen-vl-plus")
	_, err := c.Analyze(context.Background(), llm.Media{Data: []byte{0}, MIMEType: "image/jpeg"}, "p")
	assert.Error(t, err)
}
