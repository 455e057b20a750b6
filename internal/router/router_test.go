package router_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paralello/backend/internal/db"
	"paralello/backend/internal/handler"
	"paralello/backend/internal/notify"
	"paralello/backend/internal/repository"
	"paralello/backend/internal/router"
	"paralello/backend/internal/service"
	"paralello/backend/internal/timer"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type stateBody struct {
	Phase            string  `json:"phase"`
	RemainingSeconds int     `json:"remainingSeconds"`
	Clock            string  `json:"clock"`
	Running          bool    `json:"running"`
	WidgetVisible    bool    `json:"widgetVisible"`
	ActiveTaskID     *string `json:"activeTaskId"`
	Tasks            []struct {
		ID          string `json:"id"`
		Text        string `json:"text"`
		IsCompleted bool   `json:"isCompleted"`
	} `json:"tasks"`
	Version int `json:"version"`
}

type stateEnvelope struct {
	State stateBody `json:"state"`
	Task  *struct {
		ID string `json:"id"`
	} `json:"task"`
}

type historyEnvelope struct {
	History []struct {
		Phase   string `json:"phase"`
		Outcome string `json:"outcome"`
	} `json:"history"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			State stateBody `json:"state"`
		} `json:"details"`
	} `json:"error"`
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testApp struct {
	engine *gin.Engine
	clock  *testClock
	timer  *service.TimerService
}

func TestPomodoroSyncAndConflict(t *testing.T) {
	app := setupTestApp(t)

	user1 := registerUser(t, app.engine, "user1@example.com", "123456")
	user2 := registerUser(t, app.engine, "user2@example.com", "123456")

	state1 := getState(t, app.engine, user1.Token)
	assert.Equal(t, 0, state1.State.Version)
	assert.Equal(t, "25:00", state1.State.Clock)

	status, raw := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/start", user1.Token, map[string]int{
		"baseVersion": state1.State.Version,
	})
	require.Equal(t, http.StatusOK, status, string(raw))

	// A device holding another version is refused and handed the latest state.
	status, rawConflict := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/pause", user1.Token, map[string]int{
		"baseVersion": 9,
	})
	require.Equal(t, http.StatusConflict, status)

	var conflictResp apiErrorEnvelope
	require.NoError(t, json.Unmarshal(rawConflict, &conflictResp))
	assert.Equal(t, "state_conflict", conflictResp.Error.Code)
	assert.True(t, conflictResp.Error.Details.State.Running)

	latestVersion := conflictResp.Error.Details.State.Version
	status, _ = requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/skip", user1.Token, map[string]int{
		"baseVersion": latestVersion,
	})
	require.Equal(t, http.StatusOK, status)

	status, user2HistoryRaw := requestJSON(t, app.engine, http.MethodGet, "/api/pomodoro/history?limit=10", user2.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var user2History historyEnvelope
	require.NoError(t, json.Unmarshal(user2HistoryRaw, &user2History))
	assert.Empty(t, user2History.History)

	status, user1HistoryRaw := requestJSON(t, app.engine, http.MethodGet, "/api/pomodoro/history?limit=10", user1.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var user1History historyEnvelope
	require.NoError(t, json.Unmarshal(user1HistoryRaw, &user1History))
	require.Len(t, user1History.History, 1)
	assert.Equal(t, "focus", user1History.History[0].Phase)
	assert.Equal(t, "skipped", user1History.History[0].Outcome)

	assert.Equal(t, 0, getState(t, app.engine, user2.Token).State.Version)
}

func TestPomodoroEmptyBodyActions(t *testing.T) {
	app := setupTestApp(t)
	user := registerUser(t, app.engine, "ana@example.com", "123456")

	status, raw := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/start", user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	app.clock.Advance(61 * time.Second)
	state := getState(t, app.engine, user.Token)
	assert.True(t, state.State.Running)
	assert.Equal(t, "23:59", state.State.Clock)

	status, raw = requestJSON(t, app.engine, http.MethodPut, "/api/pomodoro/widget", user.Token, map[string]bool{"visible": false})
	require.Equal(t, http.StatusOK, status, string(raw))
	var envelope stateEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.False(t, envelope.State.WidgetVisible)

	status, _ = requestJSON(t, app.engine, http.MethodPut, "/api/pomodoro/widget", user.Token, map[string]int{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPomodoroReconcilesCompletedPhase(t *testing.T) {
	app := setupTestApp(t)
	user := registerUser(t, app.engine, "ana@example.com", "123456")

	status, _ := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/start", user.Token, nil)
	require.Equal(t, http.StatusOK, status)

	app.clock.Advance(1501 * time.Second)
	state := getState(t, app.engine, user.Token)
	assert.Equal(t, "short_break", state.State.Phase)
	assert.Equal(t, 300, state.State.RemainingSeconds)
	assert.False(t, state.State.Running)
	assert.Equal(t, 2, state.State.Version)
}

func TestPomodoroTasks(t *testing.T) {
	app := setupTestApp(t)
	user := registerUser(t, app.engine, "ana@example.com", "123456")

	status, _ := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/tasks", user.Token, map[string]interface{}{
		"text":        "Redação",
		"totalCycles": 0,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/tasks", user.Token, map[string]interface{}{
		"text":        "Redação",
		"totalCycles": 1,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created stateEnvelope
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotNil(t, created.Task)
	taskID := created.Task.ID

	status, raw = requestJSON(t, app.engine, http.MethodPut, "/api/pomodoro/active-task", user.Token, map[string]string{
		"taskId": taskID,
	})
	require.Equal(t, http.StatusOK, status, string(raw))

	status, raw = requestJSON(t, app.engine, http.MethodPatch, "/api/pomodoro/tasks/"+taskID, user.Token, map[string]string{
		"text": "Redação: dissertação",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	var renamed stateEnvelope
	require.NoError(t, json.Unmarshal(raw, &renamed))
	assert.Equal(t, "Redação: dissertação", renamed.State.Tasks[0].Text)
	require.NotNil(t, renamed.State.ActiveTaskID)

	// One skipped focus phase finishes the only task, which resets the timer.
	status, raw = requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/skip", user.Token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var done stateEnvelope
	require.NoError(t, json.Unmarshal(raw, &done))
	assert.Equal(t, "focus", done.State.Phase)
	assert.True(t, done.State.Tasks[0].IsCompleted)
	assert.Nil(t, done.State.ActiveTaskID)
	assert.True(t, done.State.WidgetVisible)

	status, _ = requestJSON(t, app.engine, http.MethodDelete, "/api/pomodoro/tasks/"+taskID, user.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, raw = requestJSON(t, app.engine, http.MethodDelete, "/api/pomodoro/tasks/"+taskID, user.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(raw), "task_not_found")
}

func TestPomodoroNotificationPermission(t *testing.T) {
	app := setupTestApp(t)
	user := registerUser(t, app.engine, "ana@example.com", "123456")

	status, _ := requestJSON(t, app.engine, http.MethodPut, "/api/pomodoro/notifications", user.Token, map[string]string{
		"permission": "sometimes",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw := requestJSON(t, app.engine, http.MethodPut, "/api/pomodoro/notifications", user.Token, map[string]string{
		"permission": "granted",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `"notificationPermission":"granted"`)
}

func TestPomodoroEventStream(t *testing.T) {
	app := setupTestApp(t)
	server := httptest.NewServer(app.engine)
	defer server.Close()

	user := registerUser(t, app.engine, "ana@example.com", "123456")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/pomodoro/events?access_token="+user.Token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") {
				events <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}()

	assert.Equal(t, "state", nextEvent(t, events))

	status, _ := requestJSON(t, app.engine, http.MethodPost, "/api/pomodoro/start", user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, notify.KindPermissionRequest, nextEvent(t, events))
	assert.Equal(t, notify.KindStateChanged, nextEvent(t, events))

	app.clock.Advance(1500 * time.Second)
	app.timer.TickAll(context.Background())
	assert.Equal(t, string(timer.EventPhaseCompleted), nextEvent(t, events))
}

func TestSchedules(t *testing.T) {
	app := setupTestApp(t)
	ana := registerUser(t, app.engine, "ana@example.com", "123456")
	bruno := registerUser(t, app.engine, "bruno@example.com", "123456")

	status, raw := requestJSON(t, app.engine, http.MethodGet, "/api/schedules/catalog", ana.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "Matemática")

	status, _ = requestJSON(t, app.engine, http.MethodPost, "/api/schedules", ana.Token, map[string]interface{}{
		"title": "Rotina",
		"slots": []map[string]interface{}{{"day": 9, "startTime": "08:00", "subjectId": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = requestJSON(t, app.engine, http.MethodPost, "/api/schedules", ana.Token, map[string]interface{}{
		"title": "Rotina",
		"slots": []map[string]interface{}{
			{"day": 1, "startTime": "08:00", "subjectId": 5},
			{"day": 3, "startTime": "14:00", "subjectId": 9},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var created struct {
		Schedule struct {
			ID    string `json:"id"`
			Slots []struct {
				EndTime string `json:"endTime"`
				Subject string `json:"subject"`
			} `json:"slots"`
		} `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))
	require.Len(t, created.Schedule.Slots, 2)
	assert.Equal(t, "09:00", created.Schedule.Slots[0].EndTime)
	assert.Equal(t, "História", created.Schedule.Slots[1].Subject)

	path := "/api/schedules/" + created.Schedule.ID
	status, _ = requestJSON(t, app.engine, http.MethodGet, path, bruno.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = requestJSON(t, app.engine, http.MethodGet, "/api/schedules", ana.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), created.Schedule.ID)

	status, _ = requestJSON(t, app.engine, http.MethodDelete, path, ana.Token, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = requestJSON(t, app.engine, http.MethodGet, path, ana.Token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := setupTestApp(t)

	status, raw := requestJSON(t, app.engine, http.MethodGet, "/api/pomodoro/state", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(raw), "unauthorized")

	status, _ = requestJSON(t, app.engine, http.MethodGet, "/api/schedules", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCORSPreflight(t *testing.T) {
	app := setupTestApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/pomodoro/tasks/abc", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	recorder := httptest.NewRecorder()

	app.engine.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "http://localhost:5173", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	_, err = db.RunMigrations(database, afero.NewOsFs(), migrationsDir)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}

	userRepo := repository.NewUserRepository(database)
	authService := service.NewAuthService(userRepo, "test-secret", 24*time.Hour)
	store := timer.NewStore(repository.NewSlotRepository(database), clock.Now, logger)
	hub := notify.NewHub(16, logger)
	timerService := service.NewTimerService(store, repository.NewHistoryRepository(database), hub, service.TimerOptions{
		Now:    clock.Now,
		Logger: logger,
	})
	scheduleService := service.NewScheduleService(repository.NewScheduleRepository(database))

	engine := router.New(authService, router.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Timer:    handler.NewTimerHandler(timerService),
		Schedule: handler.NewScheduleHandler(scheduleService),
	}, []string{"http://localhost:5173"})

	return &testApp{engine: engine, clock: clock, timer: timerService}
}

func nextEvent(t *testing.T, events <-chan string) string {
	t.Helper()
	select {
	case name, ok := <-events:
		require.True(t, ok, "event stream closed")
		return name
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return ""
	}
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, status, "register %s: %s", email, string(body))

	var resp authResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Token)
	return resp
}

func getState(t *testing.T, server http.Handler, token string) stateEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/pomodoro/state", token, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var stateResp stateEnvelope
	require.NoError(t, json.Unmarshal(body, &stateResp))
	return stateResp
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
