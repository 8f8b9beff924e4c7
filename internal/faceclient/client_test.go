package faceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/model"
)

var frame = model.Frame{Data: model.FramePrefix + "AAAA"}

func faceService(t *testing.T, handler func(path string, body map[string]any) (int, any)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil && r.Method == http.MethodPost {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		}
		status, resp := handler(r.URL.Path, body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp != nil {
			json.NewEncoder(w).Encode(resp)
		}
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, 0.45)
}

func TestMatchReturnsTopCandidate(t *testing.T) {
	c := faceService(t, func(path string, body map[string]any) (int, any) {
		assert.Equal(t, "/search", path)
		assert.Equal(t, frame.Data, body["image_url"])
		assert.EqualValues(t, 1, body["top_k"])
		assert.EqualValues(t, 0.45, body["threshold"])
		return http.StatusOK, SearchResult{
			FacesDetected: 1,
			Matches:       []SearchMatch{{UserID: "stu-1", Similarity: 0.91}},
		}
	})

	id, err := c.Match(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", id)
}

func TestMatchNoMatch(t *testing.T) {
	t.Run("empty gallery result", func(t *testing.T) {
		c := faceService(t, func(string, map[string]any) (int, any) {
			return http.StatusOK, SearchResult{FacesDetected: 1}
		})
		_, err := c.Match(context.Background(), frame)
		assert.ErrorIs(t, err, attendance.ErrNoMatch)
	})

	t.Run("no face", func(t *testing.T) {
		c := faceService(t, func(string, map[string]any) (int, any) {
			return http.StatusUnprocessableEntity, map[string]string{"detail": "no face"}
		})
		_, err := c.Match(context.Background(), frame)
		assert.ErrorIs(t, err, attendance.ErrNoMatch)
	})
}

func TestMatchServiceErrorIsNotNoMatch(t *testing.T) {
	c := faceService(t, func(string, map[string]any) (int, any) {
		return http.StatusBadGateway, map[string]string{"detail": "down"}
	})
	_, err := c.Match(context.Background(), frame)
	require.Error(t, err)
	assert.NotErrorIs(t, err, attendance.ErrNoMatch)
	assert.Contains(t, err.Error(), "502")
}

func TestEnroll(t *testing.T) {
	c := faceService(t, func(path string, body map[string]any) (int, any) {
		assert.Equal(t, "/enroll", path)
		assert.Equal(t, "stu-9", body["user_id"])
		assert.Equal(t, "Jane Doe", body["name"])
		return http.StatusOK, map[string]any{"success": true}
	})
	err := c.Enroll(context.Background(), model.Student{ID: "stu-9", Name: "Jane Doe"}, frame)
	require.NoError(t, err)
}

func TestEnrollRejected(t *testing.T) {
	c := faceService(t, func(string, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"success": false, "message": "low quality"}
	})
	err := c.Enroll(context.Background(), model.Student{ID: "stu-9"}, frame)
	assert.ErrorContains(t, err, "low quality")
}

func TestEmbed(t *testing.T) {
	c := faceService(t, func(path string, _ map[string]any) (int, any) {
		assert.Equal(t, "/embed", path)
		return http.StatusOK, EmbedResult{Embedding: []float32{1, 0, 0}, FacesDetected: 1}
	})
	v, err := c.Embed(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, v)

	_, err = c.Embed(context.Background(), model.Frame{})
	assert.ErrorIs(t, err, model.ErrEmptyFrame)
}

func TestHealth(t *testing.T) {
	c := faceService(t, func(path string, _ map[string]any) (int, any) {
		if path == "/health" {
			return http.StatusOK, map[string]string{"status": "ok"}
		}
		return http.StatusNotFound, nil
	})
	assert.NoError(t, c.Health(context.Background()))
}
