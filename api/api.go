// Package api holds the JSON request and response shapes shared by the
// issues server, its Go client and the web UI.
package api

import (
	"errors"
	"net/http"

	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/issue"
)

// RPC routes. All of them take POST with a JSON body.
const (
	RouteSignUp    = "/auth/signup"
	RouteSignIn    = "/auth/signin"
	RouteSignOut   = "/auth/signout"
	RouteWhoAmI    = "/auth/whoami"
	RouteList      = "/issues/list"
	RouteCreate    = "/issues/create"
	RouteUpdate    = "/issues/update"
	RouteDelete    = "/issues/delete"
	RouteSimilar   = "/issues/similar"
	RouteSubscribe = "/issues/subscribe"
	RouteImport    = "/issues/import"
	RouteHealth    = "/healthz"
)

// TokenCookie is the cookie the web UI keeps the session token in.
const TokenCookie = "issues_token"

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by sign-up and sign-in.
type SessionResponse = auth.Session

type WhoAmIResponse struct {
	Email string `json:"email"`
}

type ListRequest struct {
	Filter issue.Filter `json:"filter"`
}

// ListResponse carries the filtered issues, newest first, and the sequence
// number of the snapshot they came from.
type ListResponse = issue.Snapshot

type CreateRequest = issue.NewIssue

// CreateResponse carries the created issue and the issues whose titles
// looked similar before it was created.
type CreateResponse struct {
	Issue   issue.Issue   `json:"issue"`
	Similar []issue.Issue `json:"similar"`
}

type UpdateRequest struct {
	ID    string      `json:"id"`
	Patch issue.Patch `json:"patch"`
}

type IssueResponse struct {
	Issue issue.Issue `json:"issue"`
}

type DeleteRequest struct {
	ID string `json:"id"`
}

type SimilarRequest struct {
	Title string `json:"title"`
}

type SimilarResponse struct {
	Issues []issue.Issue `json:"issues"`
}

type ImportRequest struct {
	Issues []issue.Issue `json:"issues"`
}

type ImportResponse struct {
	Count int `json:"count"`
}

type EmptyRequest struct{}

type EmptyResponse struct{}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusForError maps an error to the HTTP status the server reports it
// with.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, issue.ErrIssueNotFound):
		return http.StatusNotFound
	case errors.Is(err, issue.ErrValidation), errors.Is(err, issue.ErrAmbiguousIssueIDPrefix):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
