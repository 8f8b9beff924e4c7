package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/device"
	"faceattend/internal/metrics"
	"faceattend/internal/model"
	"faceattend/internal/scan"
)

type fixture struct {
	t       *testing.T
	router  *gin.Engine
	store   *attendance.MemoryStore
	course  model.Course
	student model.Student
	issuer  *auth.Issuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := attendance.NewMemoryStore()
	course, err := store.CreateCourse(ctx, "Data Structures", "CS201")
	require.NoError(t, err)
	student, err := store.CreateStudent(ctx, model.NewStudent{
		Name: "Jane Doe", AdmissionNumber: "ADM-1", School: model.SchoolComputing, ReferenceImage: "ref",
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateEnrollment(ctx, student.ID, course.ID))

	matcher := attendance.MatcherFunc(func(context.Context, model.Frame) (string, error) {
		return student.ID, nil
	})
	pipeline := attendance.NewPipeline(store, matcher, attendance.WithLocation(time.UTC))
	sessions := scan.NewManager(device.NewSynthetic(0), pipeline, scan.Config{
		Constraints: device.Constraints{IdealWidth: 32, IdealHeight: 18},
		Step:        25,
		Interval:    time.Millisecond,
	}, nil)
	t.Cleanup(func() { sessions.Shutdown(context.Background()) })

	issuer := auth.NewIssuer("faceattend", "test-key", time.Hour, 24*time.Hour)
	srv := New(Deps{
		Courses:  pipeline,
		Sessions: sessions,
		Issuer:   issuer,
		Metrics:  metrics.New(),
		Health:   map[string]HealthCheck{"db": func(context.Context) bool { return true }},
	})
	return &fixture{t: t, router: srv.Router(), store: store, course: course, student: student, issuer: issuer}
}

func (f *fixture) token(kiosk string) string {
	pair, err := f.issuer.Issue(kiosk, auth.RoleKiosk)
	require.NoError(f.t, err)
	return pair.AccessToken
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (f *fixture) waitState(token, id string, want scan.State) sessionView {
	var v sessionView
	require.Eventually(f.t, func() bool {
		w := f.do(http.MethodGet, "/v1/sessions/"+id, token, nil)
		if w.Code != http.StatusOK {
			return false
		}
		v = decode[sessionView](f.t, w)
		return v.State == want
	}, 2*time.Second, 2*time.Millisecond)
	return v
}

func TestRegisterKioskAndListCourses(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/kiosks/register", "", map[string]string{"kiosk_id": "kiosk-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	tokens := decode[map[string]any](t, w)
	access, _ := tokens["access_token"].(string)
	require.NotEmpty(t, access)

	w = f.do(http.MethodGet, "/v1/courses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/v1/courses", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Courses []model.Course `json:"courses"`
	}](t, w)
	require.Len(t, body.Courses, 1)
	assert.Equal(t, "CS201", body.Courses[0].Code)

	refresh, _ := tokens["refresh_token"].(string)
	w = f.do(http.MethodPost, "/v1/kiosks/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodPost, "/v1/kiosks/refresh", "", map[string]string{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceSessionFlow(t *testing.T) {
	f := newFixture(t)
	tok := f.token("kiosk-1")

	w := f.do(http.MethodPost, "/v1/sessions", tok, map[string]string{"mode": "attendance", "course_id": f.course.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[sessionView](t, w).ID

	w = f.do(http.MethodPost, "/v1/sessions", tok, map[string]string{"mode": "attendance", "course_id": f.course.ID})
	assert.Equal(t, http.StatusConflict, w.Code, "one session per device")

	f.waitState(tok, id, scan.StateReady)
	w = f.do(http.MethodPost, "/v1/sessions/"+id+"/scan", tok, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	v := f.waitState(tok, id, scan.StateSucceeded)
	require.NotNil(t, v.Outcome)
	assert.Equal(t, attendance.KindSuccess, v.Outcome.Kind)
	assert.Equal(t, "attendance marked", v.Outcome.Message)
	require.NotNil(t, v.Outcome.Student)
	assert.Equal(t, "Jane Doe", v.Outcome.Student.Name)
	assert.Len(t, f.store.Records(), 1)

	w = f.do(http.MethodPost, "/v1/sessions/"+id+"/scan", tok, nil)
	assert.Equal(t, http.StatusGone, w.Code)

	// second scan the same day is rejected and the session stays open
	require.Eventually(t, func() bool {
		w = f.do(http.MethodPost, "/v1/sessions", tok, map[string]string{"mode": "attendance", "course_id": f.course.ID})
		return w.Code == http.StatusCreated
	}, 2*time.Second, 2*time.Millisecond, "device released after success")
	id = decode[sessionView](t, w).ID
	f.waitState(tok, id, scan.StateReady)
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/"+id+"/scan", tok, nil).Code)
	v = f.waitState(tok, id, scan.StateRejected)
	assert.Equal(t, attendance.KindAlreadyMarked, v.Outcome.Kind)

	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/"+id+"/reset", tok, nil).Code)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/v1/sessions/"+id, tok, nil).Code)
	assert.Len(t, f.store.Records(), 1)
}

func TestSessionValidation(t *testing.T) {
	f := newFixture(t)
	tok := f.token("kiosk-1")

	cases := []struct {
		name string
		body any
		code int
	}{
		{"unknown mode", map[string]string{"mode": "selfie"}, http.StatusBadRequest},
		{"attendance without course", map[string]string{"mode": "attendance"}, http.StatusBadRequest},
		{"unknown course", map[string]string{"mode": "attendance", "course_id": "nope"}, http.StatusNotFound},
		{"registration without payload", map[string]string{"mode": "registration"}, http.StatusBadRequest},
		{"registration with bad school", map[string]any{
			"mode": "registration",
			"registration": map[string]any{
				"name": "John", "admission_number": "A2", "school": "Medicine", "courses": []string{"CS101 - Intro"},
			},
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/v1/sessions", tok, tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestSessionsArePrivateToKiosk(t *testing.T) {
	f := newFixture(t)
	owner := f.token("kiosk-1")

	w := f.do(http.MethodPost, "/v1/sessions", owner, map[string]string{"mode": "attendance", "course_id": f.course.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[sessionView](t, w).ID

	other := f.token("kiosk-2")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/sessions/"+id, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/v1/sessions/"+id, other, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/sessions/missing", owner, nil).Code)
}

func TestRegistrationSession(t *testing.T) {
	f := newFixture(t)
	tok := f.token("kiosk-1")

	w := f.do(http.MethodPost, "/v1/sessions", tok, map[string]any{
		"mode": "registration",
		"registration": map[string]any{
			"name":             "John Roe",
			"admission_number": "ADM-2",
			"school":           model.SchoolBusiness,
			"courses":          []string{"BUS101 - Accounting", "CS201 - Data Structures"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[sessionView](t, w).ID

	f.waitState(tok, id, scan.StateReady)
	require.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/"+id+"/scan", tok, nil).Code)
	v := f.waitState(tok, id, scan.StateSucceeded)
	assert.Equal(t, "registration complete", v.Outcome.Message)

	courses, err := f.store.ListCourses(context.Background())
	require.NoError(t, err)
	assert.Len(t, courses, 2)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"db":true`)

	w = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
