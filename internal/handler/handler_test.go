package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/rsharma/biopaper/internal/i18n"
	"github.com/rsharma/biopaper/internal/model"
	"github.com/rsharma/biopaper/internal/store"
)

type testEnv struct {
	server *httptest.Server
	client *http.Client
	store  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n init: %v", err)
	}

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h, err := New(s, nil, Config{GenDelay: time.Millisecond, Language: "en"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	r := chi.NewRouter()
	h.Routes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}

	return &testEnv{
		server: server,
		client: &http.Client{Jar: jar},
		store:  s,
	}
}

func (e *testEnv) createUser(t *testing.T, username, password string, role model.UserRole) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	_, err = e.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

func (e *testEnv) login(t *testing.T, username, password string) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func (e *testEnv) csrfToken(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(e.server.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == csrfCookieName {
			return c.Value
		}
	}
	return ""
}

// do issues a request with the session cookies and, for mutating methods,
// the CSRF header the middleware expects.
func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet && method != http.MethodHead {
		if token := e.csrfToken(t); token != "" {
			req.Header.Set(csrfHeaderName, token)
		}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)

	resp := env.do(t, http.MethodPost, "/login", map[string]string{
		"username": "teacher", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password login status = %d, want 401", resp.StatusCode)
	}

	env.login(t, "teacher", "secret")

	resp = env.do(t, http.MethodGet, "/api/profile", nil)
	var profile profileResponse
	decodeBody(t, resp, &profile)
	if profile.Username != "teacher" || profile.Role != model.UserRoleTeacher {
		t.Errorf("profile = %+v", profile)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret99", model.UserRoleTeacher)
	env.login(t, "teacher", "secret99")

	resp := env.do(t, http.MethodPut, "/api/profile/password", map[string]string{
		"current_password": "wrong", "new_password": "newsecret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong current password: status = %d, want 403", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/api/profile/password", map[string]string{
		"current_password": "secret99", "new_password": "short",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short new password: status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/api/profile/password", map[string]string{
		"current_password": "secret99", "new_password": "newsecret",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("change password status = %d, want 204", resp.StatusCode)
	}

	env.login(t, "teacher", "newsecret")
}

func TestUnauthenticatedRejected(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/questions", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCSRFHeaderRequired(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.login(t, "teacher", "secret")

	// Hand-built request with the session cookie but no CSRF header.
	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/settings/undo", nil)
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 without CSRF header", resp.StatusCode)
	}
}

func TestQuestionCRUD(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.login(t, "teacher", "secret")

	resp := env.do(t, http.MethodPost, "/api/questions", model.Question{
		Class: 10, Chapter: "Heredity", Text: "Define gene.", Marks: 2,
		Difficulty: model.DifficultyEasy, Type: model.TypeShort,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created model.Question
	decodeBody(t, resp, &created)
	if created.ID == 0 || created.Text != "Define gene." {
		t.Fatalf("created = %+v", created)
	}

	// Validation failures are rejected before touching the store.
	resp = env.do(t, http.MethodPost, "/api/questions", model.Question{Class: 10, Marks: 2})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid question status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/questions?class=10", nil)
	var listed []model.Question
	decodeBody(t, resp, &listed)
	if len(listed) != 1 {
		t.Errorf("listed %d questions, want 1", len(listed))
	}

	created.Marks = 3
	resp = env.do(t, http.MethodPut, "/api/questions/1", created)
	var updated model.Question
	decodeBody(t, resp, &updated)
	if updated.Marks != 3 {
		t.Errorf("updated marks = %d, want 3", updated.Marks)
	}

	resp = env.do(t, http.MethodDelete, "/api/questions/1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}

func TestStudentCannotManageQuestions(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "student", "secret", model.UserRoleStudent)
	env.login(t, "student", "secret")

	resp := env.do(t, http.MethodPost, "/api/questions", model.Question{
		Class: 10, Chapter: "c", Text: "q", Marks: 1,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestGenerateBankPaperAndFinalize(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.createUser(t, "student", "secret", model.UserRoleStudent)
	env.login(t, "teacher", "secret")

	for i := 0; i < 3; i++ {
		resp := env.do(t, http.MethodPost, "/api/questions", model.Question{
			Class: 10, Chapter: "Life Processes", Text: "question " + string(rune('a'+i)),
			Answer: "answer", Marks: 2, Difficulty: model.DifficultyMedium, Type: model.TypeShort,
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed question status = %d", resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodPost, "/api/papers/generate", model.GeneratorSettings{
		Class:        10,
		Distribution: []model.MarkGroup{{Count: 2, Marks: 2}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate status = %d", resp.StatusCode)
	}
	var gen generateResponse
	decodeBody(t, resp, &gen)
	if gen.Fallback {
		t.Error("bank-only generation must not report fallback")
	}
	if gen.Paper == nil || len(gen.Paper.Questions) != 2 {
		t.Fatalf("paper = %+v", gen.Paper)
	}
	if gen.Paper.Paper.TotalMarks != 4 {
		t.Errorf("total marks = %d, want 4", gen.Paper.Paper.TotalMarks)
	}
	if gen.Paper.Paper.Mode != model.ModeBank {
		t.Errorf("mode = %q, want bank", gen.Paper.Paper.Mode)
	}

	paperID := gen.Paper.Paper.ID

	// A draft paper is invisible to students.
	env.login(t, "student", "secret")
	resp = env.do(t, http.MethodGet, "/api/papers/1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("draft paper for student: status = %d, want 403", resp.StatusCode)
	}

	env.login(t, "teacher", "secret")
	resp = env.do(t, http.MethodPost, "/api/papers/1/finalize", nil)
	var finalized model.PaperView
	decodeBody(t, resp, &finalized)
	if finalized.Paper.Status != model.StatusFinal {
		t.Errorf("status = %q, want final", finalized.Paper.Status)
	}

	// After finalizing, the questions are reuse-marked in the bank.
	view, err := env.store.GetPaperView(paperID)
	if err != nil {
		t.Fatalf("GetPaperView: %v", err)
	}
	for _, q := range view.Questions {
		if !q.Used() {
			t.Errorf("question %d not marked used after finalize", q.ID)
		}
	}

	// Students see the finalized paper, without answers.
	env.login(t, "student", "secret")
	resp = env.do(t, http.MethodGet, "/api/papers/1", nil)
	var studentView model.PaperView
	decodeBody(t, resp, &studentView)
	for _, q := range studentView.Questions {
		if q.Answer != "" {
			t.Error("student view must not include answers")
		}
	}
}

func TestGenerateInfeasibleTotal(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.login(t, "teacher", "secret")

	resp := env.do(t, http.MethodPost, "/api/papers/generate", model.GeneratorSettings{
		Class:        10,
		TotalMarks:   3,
		AllowedMarks: []int{2},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestGenerateInsufficientBank(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.login(t, "teacher", "secret")

	resp := env.do(t, http.MethodPost, "/api/papers/generate", model.GeneratorSettings{
		Class:        10,
		Distribution: []model.MarkGroup{{Count: 5, Marks: 2}},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	var errResp errorResponse
	decodeBody(t, resp, &errResp)
	if errResp.Detail == nil {
		t.Error("shortfall detail missing from insufficient-bank response")
	}
}

func TestGenerateAIWithoutClient(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.login(t, "teacher", "secret")

	resp := env.do(t, http.MethodPost, "/api/papers/generate", model.GeneratorSettings{
		Class: 10, TotalMarks: 10, AllowedMarks: []int{2}, UseAI: true,
		Chapters: []string{"Life Processes"},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when no generation endpoint is configured", resp.StatusCode)
	}
}

func TestAdminImportQuestions(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin", "secret", model.UserRoleAdmin)
	env.login(t, "admin", "secret")

	payload := []model.QuestionImport{
		{Class: 10, Chapter: "Heredity", Text: "Define gene.", Marks: 2,
			Difficulty: model.DifficultyEasy, Type: model.TypeShort},
		{Class: 10, Chapter: "Heredity", Text: "Define allele.", Marks: 2,
			Difficulty: model.DifficultyEasy, Type: model.TypeShort},
	}

	resp := env.do(t, http.MethodPost, "/api/questions/import", payload)
	var result map[string]any
	decodeBody(t, resp, &result)
	if result["imported"] != float64(2) {
		t.Errorf("imported = %v, want 2", result["imported"])
	}

	// Re-posting the identical payload is recognized and skipped.
	resp = env.do(t, http.MethodPost, "/api/questions/import", payload)
	decodeBody(t, resp, &result)
	if result["skipped"] != true {
		t.Errorf("repeat import result = %v, want skipped", result)
	}

	questions, err := env.store.ListQuestions(store.QuestionFilter{Class: 10})
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("bank has %d questions, want 2", len(questions))
	}
}

func TestSettingsUndoRedoEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "teacher", "secret", model.UserRoleTeacher)
	env.login(t, "teacher", "secret")

	resp := env.do(t, http.MethodPost, "/api/settings/undo", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("undo with no history: status = %d, want 409", resp.StatusCode)
	}

	for _, total := range []int{50, 70} {
		resp = env.do(t, http.MethodPut, "/api/settings", model.GeneratorSettings{Class: 10, TotalMarks: total})
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("save settings status = %d", resp.StatusCode)
		}
	}

	resp = env.do(t, http.MethodPost, "/api/settings/undo", nil)
	var st model.GeneratorSettings
	decodeBody(t, resp, &st)
	if st.TotalMarks != 50 {
		t.Errorf("after undo TotalMarks = %d, want 50", st.TotalMarks)
	}

	// The undone snapshot is also what the store now holds.
	resp = env.do(t, http.MethodGet, "/api/settings", nil)
	decodeBody(t, resp, &st)
	if st.TotalMarks != 50 {
		t.Errorf("persisted TotalMarks = %d, want 50", st.TotalMarks)
	}

	resp = env.do(t, http.MethodPost, "/api/settings/redo", nil)
	decodeBody(t, resp, &st)
	if st.TotalMarks != 70 {
		t.Errorf("after redo TotalMarks = %d, want 70", st.TotalMarks)
	}
}
