// Package gallery matches faces locally against an in-memory HNSW index of
// enrolled students' embeddings. Embeddings are produced by an Embedder,
// usually the face service.
package gallery

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/model"
)

// HNSW graph parameters.
const (
	maxNeighbors = 16
	efSearch     = 20
)

// Embedder turns a frame into a face embedding.
type Embedder interface {
	Embed(ctx context.Context, frame model.Frame) ([]float32, error)
}

// StudentLister lists registered students with their reference images.
type StudentLister interface {
	ListStudents(ctx context.Context) ([]model.Student, error)
}

// Index is a Matcher and Enroller backed by an HNSW graph keyed by student
// id. It is safe for concurrent use.
type Index struct {
	embedder Embedder
	// similarity below which a nearest neighbour is not a match
	minSimilarity float64
	log           *zap.Logger

	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	dims  int
}

// New creates an empty index.
func New(embedder Embedder, minSimilarity float64, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{
		embedder:      embedder,
		minSimilarity: minSimilarity,
		log:           log.Named("gallery"),
		graph:         newGraph(),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.EfSearch = efSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Len returns the number of enrolled faces.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Len()
}

// Match returns the closest enrolled student, or attendance.ErrNoMatch when
// the gallery is empty or the closest face is not similar enough.
func (x *Index) Match(ctx context.Context, frame model.Frame) (string, error) {
	q, err := x.embedder.Embed(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("embed frame: %w", err)
	}
	id, similarity, ok := x.nearest(q)
	if !ok || similarity < x.minSimilarity {
		return "", attendance.ErrNoMatch
	}
	x.log.Debug("gallery match", zap.String("student_id", id), zap.Float64("similarity", similarity))
	return id, nil
}

// Enroll embeds the frame and stores it under the student's id, replacing
// any previous embedding.
func (x *Index) Enroll(ctx context.Context, student model.Student, frame model.Frame) error {
	v, err := x.embedder.Embed(ctx, frame)
	if err != nil {
		return fmt.Errorf("embed frame: %w", err)
	}
	return x.Add(student.ID, v)
}

// Add stores an embedding, replacing the student's previous one.
func (x *Index) Add(studentID string, v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("empty embedding for %s", studentID)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dims != 0 && len(v) != x.dims {
		return fmt.Errorf("embedding for %s has %d dims, index has %d", studentID, len(v), x.dims)
	}
	x.dims = len(v)
	// the graph panics when a key is added twice
	if _, ok := x.graph.Lookup(studentID); ok {
		x.graph.Delete(studentID)
	}
	x.graph.Add(hnsw.MakeNode(studentID, v))
	return nil
}

// Load rebuilds the index from every student's reference image. Students
// whose image cannot be embedded are skipped and counted.
func (x *Index) Load(ctx context.Context, students StudentLister) (loaded, skipped int, err error) {
	list, err := students.ListStudents(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list students: %w", err)
	}

	x.mu.Lock()
	x.graph = newGraph()
	x.dims = 0
	x.mu.Unlock()

	for _, s := range list {
		if err := ctx.Err(); err != nil {
			return loaded, skipped, err
		}
		if s.ReferenceImage == "" {
			skipped++
			continue
		}
		if err := x.Enroll(ctx, s, model.Frame{Data: s.ReferenceImage}); err != nil {
			x.log.Warn("skip student", zap.String("student_id", s.ID), zap.Error(err))
			skipped++
			continue
		}
		loaded++
	}
	x.log.Info("gallery loaded", zap.Int("loaded", loaded), zap.Int("skipped", skipped))
	return loaded, skipped, nil
}

func (x *Index) nearest(q []float32) (string, float64, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph.Len() == 0 || len(q) != x.dims {
		return "", 0, false
	}
	neighbors := x.graph.Search(q, 1)
	if len(neighbors) == 0 {
		return "", 0, false
	}
	n := neighbors[0]
	return n.Key, 1 - float64(hnsw.CosineDistance(q, n.Value)), true
}
