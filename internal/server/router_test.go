package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skillconnect/internal/ai"
	"skillconnect/internal/config"
	"skillconnect/internal/db/dbtest"
	"skillconnect/internal/service"
	"skillconnect/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizJSON = `{"questions": [
	{"question": "What is Go?", "options": ["A. Language", "B. Game", "C. Car", "D. Food"], "correct_answer": "A"},
	{"question": "What is a goroutine?", "options": ["A. Thread", "B. Lightweight thread", "C. Process", "D. Fiber"], "correct_answer": "B"}
]}`

func fakeModel(skills string) ai.Completer {
	return ai.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Extract") {
			return skills, nil
		}
		return quizJSON, nil
	})
}

func newTestEngine(t *testing.T, model ai.Completer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Env: "dev", JWTSecret: "secret", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7}
	gdb := dbtest.Open(t)

	gw := ws.NewGateway(ws.Options{
		Store:      service.NewMessageService(gdb),
		Suppressor: ws.NewMemorySuppressor(5 * time.Second),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = gw.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return SetupRouter(cfg, gdb, gw, ai.NewService(model, 2), nil)
}

func do(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type session struct {
	id    uint
	token string
}

func signup(t *testing.T, engine *gin.Engine, name string) session {
	t.Helper()
	email := strings.ToLower(name) + "@example.com"
	w := do(t, engine, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": name, "email": email, "password": "pw-" + name, "mobile": "555", "title": "Engineer", "address": "Earth",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": "pw-" + name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		User    struct {
			UserID  uint `json:"userId"`
			Credits int  `json:"credits"`
		} `json:"user"`
	}
	decode(t, w, &res)
	require.True(t, res.Success)
	require.Equal(t, 10, res.User.Credits)
	return session{id: res.User.UserID, token: res.Token}
}

func TestHealthz(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	w := do(t, engine, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthFlow(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	alice := signup(t, engine, "Alice")

	w := do(t, engine, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Again", "email": "alice@example.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Email already registered")

	w = do(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials")

	w = do(t, engine, http.MethodGet, fmt.Sprintf("/api/users/%d", alice.id), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, engine, http.MethodGet, fmt.Sprintf("/api/users/%d", alice.id), alice.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), `"name":"Alice"`)

	w = do(t, engine, http.MethodGet, "/api/users/9999", alice.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, engine, http.MethodGet, "/api/users/abc", alice.token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshRotation(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	signup(t, engine, "Rita")
	w := do(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{"email": "rita@example.com", "password": "pw-Rita"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, w, &login)

	w = do(t, engine, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, engine, http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserRoutes(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	alice := signup(t, engine, "Alice")
	bob := signup(t, engine, "Bob")

	w := do(t, engine, http.MethodPost, "/api/users/update-skills", bob.token, gin.H{"userId": alice.id, "skills": []string{"Go"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, engine, http.MethodPost, "/api/users/update-skills", alice.token, gin.H{
		"userId": fmt.Sprint(alice.id), "skills": []string{"Go", "SQL"}, "interests": []string{"Chess"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var u struct {
		Skills    []string `json:"skills"`
		Interests []string `json:"interests"`
	}
	decode(t, w, &u)
	assert.Equal(t, []string{"Go", "SQL"}, u.Skills)
	assert.Equal(t, []string{"Chess"}, u.Interests)

	w = do(t, engine, http.MethodPost, "/api/users/find-users", bob.token, gin.H{"skillsRequired": []string{"SQL"}})
	require.Equal(t, http.StatusOK, w.Code)
	var found []map[string]any
	decode(t, w, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "Alice", found[0]["name"])

	w = do(t, engine, http.MethodPut, fmt.Sprintf("/api/users/update-credits/%d", alice.id), alice.token, gin.H{"credits": 55})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success": true, "credits": 55}`, w.Body.String())

	w = do(t, engine, http.MethodPut, fmt.Sprintf("/api/users/update-credits/%d", alice.id), bob.token, gin.H{"credits": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, engine, http.MethodPut, fmt.Sprintf("/api/skills/update-credits/%d", alice.id), alice.token, gin.H{"credits": "five"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success": false, "message": "Invalid payload"}`, w.Body.String())

	w = do(t, engine, http.MethodPut, fmt.Sprintf("/api/skills/update-credits/%d", alice.id), alice.token, gin.H{"credits": 25})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Choose between 1 to 20")

	w = do(t, engine, http.MethodPut, fmt.Sprintf("/api/skills/update-credits/%d", alice.id), alice.token, gin.H{"credits": 5})
	require.Equal(t, http.StatusOK, w.Code)
	var added struct {
		User struct {
			Credits int `json:"credits"`
		} `json:"user"`
	}
	decode(t, w, &added)
	assert.Equal(t, 60, added.User.Credits)
}

func TestSkillRoutes(t *testing.T) {
	engine := newTestEngine(t, fakeModel(`["Go", "Kubernetes"]`))
	alice := signup(t, engine, "Alice")

	w := do(t, engine, http.MethodPost, "/api/skills/generate", alice.token, gin.H{"userId": alice.id})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no skills")

	w = do(t, engine, http.MethodPost, "/api/skills/detect", alice.token, gin.H{"userId": alice.id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, engine, http.MethodPost, "/api/skills/detect", alice.token, gin.H{"userId": alice.id, "paragraph": "I run Go services on Kubernetes"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success": true, "skills": ["Go", "Kubernetes"]}`, w.Body.String())

	w = do(t, engine, http.MethodPost, "/api/skills/match", alice.token, gin.H{"paragraph": "looking for a Go developer"})
	require.Equal(t, http.StatusOK, w.Code)
	var match struct {
		Matches []struct {
			ID uint `json:"_id"`
		} `json:"matches"`
	}
	decode(t, w, &match)
	require.Len(t, match.Matches, 1)
	assert.Equal(t, alice.id, match.Matches[0].ID)

	w = do(t, engine, http.MethodPost, "/api/skills/generate", alice.token, gin.H{"userId": alice.id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quiz struct {
		Questions []struct {
			Question string   `json:"question"`
			Options  []string `json:"options"`
		} `json:"questions"`
	}
	decode(t, w, &quiz)
	require.Len(t, quiz.Questions, 2)

	w = do(t, engine, http.MethodPost, "/api/skills/validate-answers", alice.token, gin.H{
		"userId": alice.id,
		"answers": map[string]string{
			"What is Go?":          "A. Language",
			"What is a goroutine?": "C. Process",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Score           int    `json:"score"`
		UpdatedCredits  int    `json:"updatedCredits"`
		Message         string `json:"message"`
		QuestionResults []struct {
			IsCorrect bool `json:"isCorrect"`
		} `json:"questionResults"`
	}
	decode(t, w, &res)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 20, res.UpdatedCredits)
	assert.Equal(t, "Your score is 1. Credits updated to 20.", res.Message)
	require.Len(t, res.QuestionResults, 2)
	assert.True(t, res.QuestionResults[0].IsCorrect)
}

func TestMatchWithoutSkills(t *testing.T) {
	engine := newTestEngine(t, fakeModel(`no skills here`))
	alice := signup(t, engine, "Alice")

	w := do(t, engine, http.MethodPost, "/api/skills/match", alice.token, gin.H{"paragraph": "hello"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No skills detected.")
}

func TestGenerateQuizModelFailure(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	alice := signup(t, engine, "Alice")
	w := do(t, engine, http.MethodPost, "/api/users/update-skills", alice.token, gin.H{"userId": alice.id, "skills": []string{"Go"}})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodPost, "/api/skills/generate", alice.token, gin.H{"userId": alice.id})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to generate questions")
}

func TestMessageRoutes(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	alice := signup(t, engine, "Alice")
	bob := signup(t, engine, "Bob")
	carol := signup(t, engine, "Carol")

	w := do(t, engine, http.MethodPost, "/api/messages", alice.token, gin.H{"sender": alice.id, "receiver": bob.id})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, engine, http.MethodPost, "/api/messages", bob.token, gin.H{"sender": alice.id, "receiver": bob.id, "message": "spoof"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, engine, http.MethodPost, "/api/messages", alice.token, gin.H{"sender": alice.id, "receiver": bob.id, "message": "hi bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved struct {
		ID      uint   `json:"_id"`
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	decode(t, w, &saved)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "text", saved.Type)

	w = do(t, engine, http.MethodPost, "/api/messages", bob.token, gin.H{"sender": bob.id, "receiver": alice.id, "message": "hi alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, engine, http.MethodGet, fmt.Sprintf("/api/messages/%d/%d", bob.id, alice.id), alice.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []struct {
		Message string `json:"message"`
	}
	decode(t, w, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "hi bob", history[0].Message)
	assert.Equal(t, "hi alice", history[1].Message)

	w = do(t, engine, http.MethodGet, fmt.Sprintf("/api/messages/%d/%d", bob.id, alice.id), carol.token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, engine, http.MethodGet, fmt.Sprintf("/api/messages/conversations/%d", alice.id), alice.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var convs []struct {
		ID           uint   `json:"_id"`
		Name         string `json:"name"`
		LastMessage  string `json:"lastMessage"`
		MessageCount int    `json:"messageCount"`
	}
	decode(t, w, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, bob.id, convs[0].ID)
	assert.Equal(t, "Bob", convs[0].Name)
	assert.Equal(t, 2, convs[0].MessageCount)

	w = do(t, engine, http.MethodGet, fmt.Sprintf("/api/messages/conversations/%d", alice.id), carol.token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	engine := newTestEngine(t, ai.Unconfigured)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
