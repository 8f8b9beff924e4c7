package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/model"
)

// FaceQuality contains face quality metrics.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	PoseYaw   float64 `json:"pose_yaw"`
	PosePitch float64 `json:"pose_pitch"`
	PoseRoll  float64 `json:"pose_roll"`
	FaceSize  int     `json:"face_size"`
	IsFrontal bool    `json:"is_frontal"`
}

// SearchMatch represents a face match from gallery search.
type SearchMatch struct {
	UserID     string  `json:"user_id"`
	Similarity float64 `json:"similarity"`
	Name       string  `json:"name,omitempty"`
}

// SearchResult contains 1:N search results.
type SearchResult struct {
	Matches       []SearchMatch `json:"matches"`
	FacesDetected int           `json:"faces_detected"`
	Quality       *FaceQuality  `json:"quality"`
}

// EmbedResult contains the face embedding and detection confidence.
type EmbedResult struct {
	Embedding     []float32    `json:"embedding"`
	Score         float64      `json:"score"`
	FacesDetected int          `json:"faces_detected"`
	Quality       *FaceQuality `json:"quality"`
}

// ErrNoFace is returned when the service finds no face in the frame.
var ErrNoFace = errors.New("no face detected in image")

// Client calls the face recognition microservice. Frames are sent as data
// URLs in the image_url field.
type Client struct {
	BaseURL   string
	Threshold float64
	HTTP      *http.Client
}

// New creates a client.
func New(baseURL string, threshold float64) *Client {
	return &Client{
		BaseURL:   baseURL,
		Threshold: threshold,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Match identifies the student in frame. It returns attendance.ErrNoMatch
// when no enrolled face clears the threshold.
func (c *Client) Match(ctx context.Context, frame model.Frame) (string, error) {
	res, err := c.Search(ctx, frame.Data, 1, c.Threshold)
	if err != nil {
		if errors.Is(err, ErrNoFace) {
			return "", fmt.Errorf("%w: %v", attendance.ErrNoMatch, err)
		}
		return "", err
	}
	if len(res.Matches) == 0 || res.Matches[0].UserID == "" {
		return "", attendance.ErrNoMatch
	}
	return res.Matches[0].UserID, nil
}

// Enroll adds a newly registered student's face to the service gallery.
func (c *Client) Enroll(ctx context.Context, student model.Student, frame model.Frame) error {
	payload := map[string]any{
		"user_id":   student.ID,
		"image_url": frame.Data,
		"name":      student.Name,
		"metadata": map[string]any{
			"admission_number": student.AdmissionNumber,
			"school":           student.School,
		},
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/enroll", payload, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("face enrollment rejected: %s", out.Message)
	}
	return nil
}

// Search performs 1:N face identification against the enrolled gallery.
func (c *Client) Search(ctx context.Context, image string, topK int, threshold float64) (*SearchResult, error) {
	if image == "" {
		return nil, model.ErrEmptyFrame
	}
	payload := map[string]any{
		"image_url": image,
		"top_k":     topK,
	}
	if threshold > 0 {
		payload["threshold"] = threshold
	}
	var out SearchResult
	if err := c.post(ctx, "/search", payload, &out); err != nil {
		return nil, err
	}
	if out.FacesDetected == 0 && len(out.Matches) == 0 {
		return nil, ErrNoFace
	}
	return &out, nil
}

// Embed requests an embedding for a frame.
func (c *Client) Embed(ctx context.Context, frame model.Frame) ([]float32, error) {
	if frame.Empty() {
		return nil, model.ErrEmptyFrame
	}
	var out EmbedResult
	if err := c.post(ctx, "/embed", map[string]string{"image_url": frame.Data}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, ErrNoFace
	}
	return out.Embedding, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return ErrNoFace
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
