package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amonks/issues/api"
	"github.com/amonks/issues/auth"
	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/amonks/issues/issue"
)

const signInPath = "/web/signin"

func sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(api.TokenCookie)
	if err != nil || internalstrings.IsBlank(cookie.Value) {
		return "", false
	}
	return cookie.Value, true
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, session auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.TokenCookie,
		Value:    session.Token,
		Path:     "/web",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.TokenCookie,
		Value:    "",
		Path:     "/web",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleSignIn shows the sign-in form and handles both sign-in and sign-up
// submissions from it.
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := sessionToken(r); ok {
			http.Redirect(w, r, "/web/issues", http.StatusSeeOther)
			return
		}
		h.templates.Render(w, pageData{ActiveTab: "signin"})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			h.templates.Render(w, pageData{ActiveTab: "signin", SignIn: signInValues{Error: "invalid form input"}})
			return
		}
		email := trimmedFormValue(r, "email")
		password := r.FormValue("password")
		anonymous := h.clientFor(r, "")

		var session auth.Session
		var err error
		if r.FormValue("action") == "signup" {
			session, err = anonymous.SignUp(r.Context(), email, password)
		} else {
			session, err = anonymous.SignIn(r.Context(), email, password)
		}
		if err != nil {
			h.templates.Render(w, pageData{ActiveTab: "signin", SignIn: signInValues{Email: email, Error: err.Error()}})
			return
		}
		h.logger.Debug("signed in", "email", session.Email)
		setSessionCookie(w, r, session)
		http.Redirect(w, r, "/web/issues", http.StatusSeeOther)
	default:
		writeMethodNotAllowed(w, http.MethodPost)
	}
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if token, ok := sessionToken(r); ok {
		if err := h.clientFor(r, token).SignOut(r.Context()); err != nil && !errors.Is(err, auth.ErrUnauthenticated) {
			h.logger.Warn("sign out", "err", err)
		}
		h.dropDraft(token)
	}
	clearSessionCookie(w, r)
	http.Redirect(w, r, signInPath, http.StatusSeeOther)
}

type similarResponse struct {
	Issues []similarIssue `json:"issues"`
}

type similarIssue struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// handleSimilar backs the duplicate warning shown while a title is typed.
func (h *Handler) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Error(w, auth.ErrUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}
	title := r.URL.Query().Get("title")
	response := similarResponse{Issues: []similarIssue{}}
	if len([]rune(internalstrings.TrimSpace(title))) >= issue.MinSimilarTitleLength {
		matches, err := h.clientFor(r, token).Similar(r.Context(), title)
		if err != nil {
			http.Error(w, err.Error(), api.StatusForError(err))
			return
		}
		for _, match := range matches {
			response.Issues = append(response.Issues, similarIssue{ID: match.ID, Title: match.Title, Status: match.Status.DisplayName()})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
