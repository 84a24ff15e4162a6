package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/amonks/issues/auth"
	"github.com/amonks/issues/board"
	"github.com/amonks/issues/client"
	"github.com/amonks/issues/internal/logging"
	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/amonks/issues/issue"
	"github.com/charmbracelet/log"
)

// Options configures the web handler.
type Options struct {
	// BaseURL is where the API lives. When empty, each request's own host
	// is used.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	// Now is used for relative creation times.
	Now func() time.Time
}

// Handler serves the browser UI. It talks to the API over HTTP with the
// session token kept in a cookie.
type Handler struct {
	baseURL    string
	httpClient *http.Client
	mux        *http.ServeMux
	templates  *templateWrapper
	logger     *log.Logger

	// cache holds the last full collection fetched, shown when a refresh
	// fails.
	cache board.State

	mu     sync.Mutex
	drafts map[string]*formDraft
}

// NewHandler creates a new web handler.
func NewHandler(opts Options) *Handler {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	handler := &Handler{
		baseURL:    internalstrings.TrimTrailingSlash(opts.BaseURL),
		httpClient: httpClient,
		templates:  newTemplateWrapper(now),
		logger:     logger,
		drafts:     make(map[string]*formDraft),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/web/signin", handler.handleSignIn)
	mux.HandleFunc("/web/signout", handler.handleSignOut)
	mux.HandleFunc("/web/issues", handler.handleIssues)
	mux.HandleFunc("/web/issues/create", handler.handleCreate)
	mux.HandleFunc("/web/issues/status", handler.handleStatus)
	mux.HandleFunc("/web/issues/assign", handler.handleAssign)
	mux.HandleFunc("/web/issues/delete", handler.handleDelete)
	mux.HandleFunc("/web/similar", handler.handleSimilar)
	mux.HandleFunc("/web/stream", handler.handleStream)
	handler.mux = mux
	return handler
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type templateWrapper struct {
	tmpl *template.Template
}

func newTemplateWrapper(now func() time.Time) *templateWrapper {
	return &templateWrapper{tmpl: newTemplates(now)}
}

func (tw *templateWrapper) Render(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = tw.tmpl.ExecuteTemplate(w, "page", data)
}

type selectOption struct {
	Value string
	Label string
}

type pageData struct {
	ActiveTab string
	Identity  string
	Seq       uint64

	Issues        []issue.Issue
	Total         int
	SelectedIssue *issue.Issue
	SelectedID    string
	Create        bool

	Filter                filterValues
	StatusFilterOptions   []selectOption
	PriorityFilterOptions []selectOption
	PriorityOptions       []selectOption
	TransitionOptions     []selectOption

	Form    issueFormValues
	Similar []issue.Issue
	Error   string
	Notice  string

	SignIn signInValues
}

type filterValues struct {
	Status   string
	Priority string
}

type issueFormValues struct {
	Title       string
	Description string
	Priority    string
	AssignedTo  string
}

type signInValues struct {
	Email string
	Error string
}

// formDraft carries a result across a post-redirect-get round trip.
type formDraft struct {
	mode      string
	id        string
	err       string
	notice    string
	similar   []issue.Issue
	values    issueFormValues
	hasValues bool
}

func (h *Handler) handleIssues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Redirect(w, r, signInPath, http.StatusSeeOther)
		return
	}
	apiClient := h.clientFor(r, token)
	filterParams := filterFromQuery(r.URL.Query())
	filter, filterErr := filterParams.parse()

	identity, err := apiClient.WhoAmI(r.Context())
	if errors.Is(err, auth.ErrUnauthenticated) {
		clearSessionCookie(w, r)
		http.Redirect(w, r, signInPath, http.StatusSeeOther)
		return
	}

	snapshot, fetchErr := h.refresh(r, apiClient)
	pageError := ""
	switch {
	case err != nil:
		pageError = err.Error()
	case fetchErr != nil:
		pageError = fetchErr.Error()
	case filterErr != nil:
		pageError = filterErr.Error()
	}
	visible := issue.Visible(snapshot.Issues, filter)

	createMode := r.URL.Query().Get("create") == "1"
	selectedID := trimmedQueryValue(r, "id")
	var selected *issue.Issue
	if !createMode {
		selected = selectIssue(visible, selectedID)
		if selected == nil {
			if found, ok := snapshot.Find(selectedID); ok {
				selected = &found
			}
		}
		if selected == nil && len(visible) > 0 {
			selected = &visible[0]
		}
		selectedID = ""
		if selected != nil {
			selectedID = selected.ID
		}
	}

	form := defaultIssueFormValues()
	var similar []issue.Issue
	notice := ""
	if draft := h.consumeDraft(token, createMode, selectedID); draft != nil {
		if draft.err != "" {
			pageError = draft.err
		}
		notice = draft.notice
		similar = draft.similar
		if draft.hasValues {
			form = draft.values
		}
		if draft.mode == "create" && draft.err != "" {
			createMode = true
			selected = nil
			selectedID = ""
		}
	}

	data := pageData{
		ActiveTab:             "issues",
		Identity:              identity,
		Seq:                   snapshot.Seq,
		Issues:                visible,
		Total:                 len(snapshot.Issues),
		SelectedIssue:         selected,
		SelectedID:            selectedID,
		Create:                createMode,
		Filter:                filterParams,
		StatusFilterOptions:   statusFilterOptions(),
		PriorityFilterOptions: priorityFilterOptions(),
		PriorityOptions:       priorityOptions(),
		Form:                  form,
		Similar:               similar,
		Error:                 pageError,
		Notice:                notice,
	}
	if selected != nil {
		data.TransitionOptions = transitionOptions(selected.Status)
	}
	h.templates.Render(w, data)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Redirect(w, r, signInPath, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.setDraft(token, formDraft{mode: "create", err: "invalid form input"})
		http.Redirect(w, r, issuesPath(r, "", true), http.StatusSeeOther)
		return
	}
	values := issueFormValuesFromRequest(r)
	in, err := values.newIssue()
	if err != nil {
		h.setDraft(token, formDraft{mode: "create", err: err.Error(), values: values, hasValues: true})
		http.Redirect(w, r, issuesPath(r, "", true), http.StatusSeeOther)
		return
	}

	created, similar, err := h.clientFor(r, token).CreateWithSimilar(r.Context(), in)
	if err != nil {
		h.setDraft(token, formDraft{mode: "create", err: err.Error(), values: values, hasValues: true})
		http.Redirect(w, r, issuesPath(r, "", true), http.StatusSeeOther)
		return
	}
	h.setDraft(token, formDraft{mode: "update", id: created.ID, notice: "Created " + created.ID, similar: similar})
	http.Redirect(w, r, issuesPath(r, created.ID, false), http.StatusSeeOther)
}

// handleStatus checks the requested transition against the latest state
// before sending anything, so a forbidden change never reaches the store.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.handleIssueAction(w, r, false, func(r *http.Request, apiClient *client.Client, current issue.Issue) (string, error) {
		requested, err := issue.ParseStatus(trimmedFormValue(r, "status"))
		if err != nil {
			return "", err
		}
		if requested == current.Status {
			return "", nil
		}
		if _, err := issue.ValidateTransition(current.Status, requested); err != nil {
			return "", err
		}
		if _, err := apiClient.Update(r.Context(), current.ID, issue.Patch{Status: &requested}); err != nil {
			return "", err
		}
		return "Updated " + current.ID, nil
	})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	h.handleIssueAction(w, r, false, func(r *http.Request, apiClient *client.Client, current issue.Issue) (string, error) {
		assignee := trimmedFormValue(r, "assigned_to")
		if _, err := apiClient.Update(r.Context(), current.ID, issue.Patch{AssignedTo: &assignee}); err != nil {
			return "", err
		}
		return "Updated " + current.ID, nil
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.handleIssueAction(w, r, true, func(r *http.Request, apiClient *client.Client, current issue.Issue) (string, error) {
		if r.FormValue("confirm") != "yes" {
			return "", fmt.Errorf("confirm delete before removing")
		}
		if err := apiClient.Delete(r.Context(), current.ID); err != nil {
			return "", err
		}
		return "Deleted " + current.ID, nil
	})
}

type issueAction func(r *http.Request, apiClient *client.Client, current issue.Issue) (notice string, err error)

// handleIssueAction runs action against the latest copy of the issue named
// by the id query parameter. When removes is set, a successful action
// returns to the list rather than the issue.
func (h *Handler) handleIssueAction(w http.ResponseWriter, r *http.Request, removes bool, action issueAction) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Redirect(w, r, signInPath, http.StatusSeeOther)
		return
	}
	issueID := trimmedQueryValue(r, "id")
	if err := r.ParseForm(); err != nil {
		h.setDraft(token, formDraft{mode: "update", id: issueID, err: "invalid form input"})
		http.Redirect(w, r, issuesPath(r, issueID, false), http.StatusSeeOther)
		return
	}
	if issueID == "" {
		h.setDraft(token, formDraft{mode: "update", err: "issue id is required"})
		http.Redirect(w, r, issuesPath(r, "", false), http.StatusSeeOther)
		return
	}

	apiClient := h.clientFor(r, token)
	snapshot, err := h.refresh(r, apiClient)
	if err != nil {
		h.setDraft(token, formDraft{mode: "update", id: issueID, err: err.Error()})
		http.Redirect(w, r, issuesPath(r, issueID, false), http.StatusSeeOther)
		return
	}
	current, ok := snapshot.Find(issueID)
	if !ok {
		h.setDraft(token, formDraft{mode: "update", err: fmt.Sprintf("%s: %s", issue.ErrIssueNotFound, issueID)})
		http.Redirect(w, r, issuesPath(r, "", false), http.StatusSeeOther)
		return
	}

	notice, err := action(r, apiClient, current)
	if err != nil {
		h.setDraft(token, formDraft{mode: "update", id: issueID, err: err.Error()})
		http.Redirect(w, r, issuesPath(r, issueID, false), http.StatusSeeOther)
		return
	}
	target := issueID
	if removes {
		target = ""
	}
	if notice != "" {
		h.setDraft(token, formDraft{mode: "update", id: target, notice: notice})
	}
	http.Redirect(w, r, issuesPath(r, target, false), http.StatusSeeOther)
}

// refresh fetches the full collection, falling back to the last one seen.
func (h *Handler) refresh(r *http.Request, apiClient *client.Client) (issue.Snapshot, error) {
	snapshot, err := apiClient.List(r.Context(), issue.Filter{})
	if err != nil {
		return h.cache.Current(), err
	}
	h.cache.Advance(snapshot)
	return snapshot, nil
}

func (h *Handler) requestBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *Handler) clientFor(r *http.Request, token string) *client.Client {
	return client.NewWithHTTPClient(h.requestBaseURL(r), token, h.httpClient)
}

func (h *Handler) consumeDraft(token string, createMode bool, selectedID string) *formDraft {
	h.mu.Lock()
	defer h.mu.Unlock()
	draft := h.drafts[token]
	if draft == nil {
		return nil
	}
	match := false
	if draft.mode == "create" && createMode {
		match = true
	}
	if draft.mode == "update" {
		if draft.id == "" && !createMode {
			match = true
		}
		if draft.id != "" && draft.id == selectedID {
			match = true
		}
	}
	if !match {
		return nil
	}
	delete(h.drafts, token)
	return draft
}

func (h *Handler) setDraft(token string, draft formDraft) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drafts[token] = &draft
}

func (h *Handler) dropDraft(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.drafts, token)
}

func defaultIssueFormValues() issueFormValues {
	return issueFormValues{Priority: string(issue.DefaultPriority)}
}

func issueFormValuesFromRequest(r *http.Request) issueFormValues {
	return issueFormValues{
		Title:       trimmedFormValue(r, "title"),
		Description: r.FormValue("description"),
		Priority:    trimmedFormValue(r, "priority"),
		AssignedTo:  trimmedFormValue(r, "assigned_to"),
	}
}

func (values issueFormValues) newIssue() (issue.NewIssue, error) {
	in := issue.NewIssue{
		Title:       values.Title,
		Description: values.Description,
		Priority:    issue.Priority(values.Priority),
		AssignedTo:  values.AssignedTo,
	}
	return in.Normalize()
}

func filterFromQuery(query url.Values) filterValues {
	return filterValues{
		Status:   internalstrings.TrimSpace(query.Get("status")),
		Priority: internalstrings.TrimSpace(query.Get("priority")),
	}
}

func (values filterValues) parse() (issue.Filter, error) {
	status, err := issue.ParseStatusFilter(values.Status)
	if err != nil {
		return issue.Filter{}, err
	}
	priority, err := issue.ParsePriorityFilter(values.Priority)
	if err != nil {
		return issue.Filter{}, err
	}
	return issue.Filter{Status: status, Priority: priority}, nil
}

func (values filterValues) query() url.Values {
	query := url.Values{}
	if values.Status != "" && values.Status != issue.FilterAll {
		query.Set("status", values.Status)
	}
	if values.Priority != "" && values.Priority != issue.FilterAll {
		query.Set("priority", values.Priority)
	}
	return query
}

// issuesPath builds the list URL, keeping the filter the action form was
// submitted from.
func issuesPath(r *http.Request, id string, create bool) string {
	filter := filterValues{
		Status:   trimmedFormValue(r, "filter_status"),
		Priority: trimmedFormValue(r, "filter_priority"),
	}
	query := filter.query()
	if id != "" {
		query.Set("id", id)
	}
	if create {
		query.Set("create", "1")
	}
	if len(query) == 0 {
		return "/web/issues"
	}
	return "/web/issues?" + query.Encode()
}

func trimmedQueryValue(r *http.Request, key string) string {
	return internalstrings.TrimSpace(r.URL.Query().Get(key))
}

func trimmedFormValue(r *http.Request, key string) string {
	return internalstrings.TrimSpace(r.FormValue(key))
}

func selectIssue(issues []issue.Issue, id string) *issue.Issue {
	if id == "" {
		return nil
	}
	for i := range issues {
		if issues[i].ID == id {
			return &issues[i]
		}
	}
	return nil
}

func statusFilterOptions() []selectOption {
	options := []selectOption{{Value: issue.FilterAll, Label: "All statuses"}}
	for _, status := range issue.ValidStatuses() {
		options = append(options, selectOption{Value: string(status), Label: status.DisplayName()})
	}
	return options
}

func priorityFilterOptions() []selectOption {
	options := []selectOption{{Value: issue.FilterAll, Label: "All priorities"}}
	return append(options, priorityOptions()...)
}

func priorityOptions() []selectOption {
	options := make([]selectOption, 0, len(issue.ValidPriorities()))
	for _, priority := range issue.ValidPriorities() {
		options = append(options, selectOption{Value: string(priority), Label: priority.DisplayName()})
	}
	return options
}

func transitionOptions(current issue.Status) []selectOption {
	allowed := issue.AllowedTransitions(current)
	options := make([]selectOption, 0, len(allowed))
	for _, status := range allowed {
		options = append(options, selectOption{Value: string(status), Label: status.DisplayName()})
	}
	return options
}

func writeMethodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
