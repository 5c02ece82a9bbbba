package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/engine/auth"
	"reqline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_eligible"`
	Message string         `json:"message" example:"executor cannot take this design type"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"type\":\"video\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Reqline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Reqline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerRequests(group, cfg.Engine)
	registerQueue(group, cfg.Engine)
	registerExecutors(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerDepartments(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already assigned"):
		return newAPIError(http.StatusConflict, "already_assigned", msg, nil)
	case strings.Contains(lowered, "not eligible"),
		strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// currentUser resolves the authenticated principal to its user record.
// JWT role claims are only a fallback for principals minted before the
// user row exists.
func currentUser(ctx context.Context, e engine.Engine) (domain.User, huma.StatusError) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return domain.User{}, authErr
	}
	u, err := e.Repo.GetUser(ctx, principal.ActorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) && principal.Role != "" {
			return domain.User{ID: principal.ActorID, Role: principal.Role}, nil
		}
		return domain.User{}, handleError(err)
	}
	return u, nil
}

func requireAdmin(ctx context.Context, e engine.Engine, action string) (domain.User, huma.StatusError) {
	u, authErr := currentUser(ctx, e)
	if authErr != nil {
		return u, authErr
	}
	if !auth.IsAdmin(u.Role) {
		return u, handleError(auth.ForbiddenError{Action: action})
	}
	return u, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Create design request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateRequestPayload `json:"body"`
	}) (*struct {
		Body CreateRequestResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.RequestCreateOptions{
			RequesterID:   actor.ID,
			Area:          input.Body.Area,
			Type:          input.Body.Type,
			PreferredRole: stringOrEmpty(input.Body.PreferredRole),
			Title:         input.Body.Title,
			Description:   stringOrEmpty(input.Body.Description),
			Urgency:       stringOrEmpty(input.Body.Urgency),
			DeliveryDate:  stringOrEmpty(input.Body.DeliveryDate),
			ActorID:       actor.ID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		req, executor, err := e.CreateRequest(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		resp := CreateRequestResponse{Request: requestResponse(req), Queued: executor == nil}
		if executor != nil {
			r := userResponse(*executor)
			resp.AssignedTo = &r
		}
		return &struct {
			Body CreateRequestResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"pending,in-process,review,completed,rejected,"`
		Area       string `query:"area"`
		Urgency    string `query:"urgency" enum:"normal,urgent,express,"`
		AssignedTo string `query:"assigned_to"`
		Requester  string `query:"requester"`
		Page       int    `query:"page"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body paginatedRequests `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		filters := repo.RequestFilters{
			Status:      input.Status,
			Area:        input.Area,
			Urgency:     input.Urgency,
			AssignedTo:  input.AssignedTo,
			RequesterID: input.Requester,
		}
		// Non-admins only see their own tickets.
		if !auth.IsAdmin(actor.Role) {
			if input.AssignedTo == "" && input.Requester == "" {
				filters.RequesterID = actor.ID
			} else if (input.AssignedTo != "" && input.AssignedTo != actor.ID) ||
				(input.Requester != "" && input.Requester != actor.ID) {
				return nil, handleError(auth.ForbiddenError{Action: "request.list"})
			}
		}
		page := input.Page
		if page < 1 {
			page = 1
		}
		limit := normalizeLimit(input.Limit)
		filters.Limit = limit
		filters.Offset = (page - 1) * limit
		items, err := e.Repo.ListRequests(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.Repo.CountRequests(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		pages := (total + limit - 1) / limit
		if pages < 1 {
			pages = 1
		}
		return &struct {
			Body paginatedRequests `json:"body"`
		}{Body: paginatedRequests{Items: mapRequests(items), Total: total, Page: page, Pages: pages}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}",
		Summary:     "Get request",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.CanViewTicket(actor.ID, actor.Role, req) {
			return nil, handleError(auth.ForbiddenError{Action: "request.read"})
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-request-status",
		Method:      http.MethodPatch,
		Path:        "/requests/{request_id}/status",
		Summary:     "Change request status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string           `path:"request_id"`
		Body      SetStatusPayload `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.CanTransition(actor.ID, actor.Role, req, input.Body.Status) {
			return nil, handleError(auth.ForbiddenError{Action: "request.status"})
		}
		req, err = e.SetRequestStatus(ctx, input.RequestID, input.Body.Status, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-request",
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/claim",
		Summary:     "Claim a pending request",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string       `path:"request_id"`
		Body      ClaimPayload `json:"body,omitempty"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		executorID := actor.ID
		if input.Body.ExecutorID != nil && *input.Body.ExecutorID != "" {
			// only admins can claim on another executor's behalf
			if *input.Body.ExecutorID != actor.ID && !auth.IsAdmin(actor.Role) {
				return nil, handleError(auth.ForbiddenError{Action: "request.claim"})
			}
			executorID = *input.Body.ExecutorID
		}
		req, err := e.ClaimRequest(ctx, input.RequestID, executorID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/requests/{request_id}/comments",
		Summary:       "Comment on a request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		RequestID string         `path:"request_id"`
		Body      CommentPayload `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.CanViewTicket(actor.ID, actor.Role, req) {
			return nil, handleError(auth.ForbiddenError{Action: "request.comment"})
		}
		c, err := e.AddComment(ctx, input.RequestID, actor.ID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: commentResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}/comments",
		Summary:     "List request comments",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body []CommentResponse `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.CanViewTicket(actor.ID, actor.Role, req) {
			return nil, handleError(auth.ForbiddenError{Action: "request.read"})
		}
		items, err := e.Repo.ListComments(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CommentResponse `json:"body"`
		}{Body: mapComments(items)}, nil
	})
}

func registerQueue(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "queue-position",
		Method:      http.MethodGet,
		Path:        "/queue/ticket/{request_id}",
		Summary:     "Queue position of one request",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body struct {
			InQueue bool                `json:"in_queue"`
			Entry   *QueueEntryResponse `json:"entry,omitempty"`
		} `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.CanViewTicket(actor.ID, actor.Role, req) {
			return nil, handleError(auth.ForbiddenError{Action: "queue.read"})
		}
		entry, err := e.QueuePosition(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				InQueue bool                `json:"in_queue"`
				Entry   *QueueEntryResponse `json:"entry,omitempty"`
			} `json:"body"`
		}{}
		if entry != nil {
			resp := entryResponse(*entry)
			out.Body.InQueue = true
			out.Body.Entry = &resp
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-queue",
		Method:      http.MethodGet,
		Path:        "/queue/my",
		Summary:     "Caller's active tickets with queue entries",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserQueueResponse `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.UserQueue(ctx, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserQueueResponse `json:"body"`
		}{Body: UserQueueResponse{
			AsRequester: mapTickets(view.AsRequester),
			AsExecutor:  mapTickets(view.AsExecutor),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scoped-queue",
		Method:      http.MethodGet,
		Path:        "/queue/scope",
		Summary:     "Full ranked queue (admin)",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Department   string `query:"department"`
		ExecutorType string `query:"executor_type"`
		Stage        string `query:"stage" enum:"pending,assigned,"`
		Page         int    `query:"page"`
		Limit        int    `query:"limit"`
	}) (*struct {
		Body ScopedQueueResponse `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx, e, "queue.scope"); authErr != nil {
			return nil, authErr
		}
		view, err := e.ScopedQueue(ctx, engine.ScopedQueueFilters{
			Department:   input.Department,
			ExecutorType: input.ExecutorType,
			Stage:        input.Stage,
			Page:         input.Page,
			Limit:        input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScopedQueueResponse `json:"body"`
		}{Body: ScopedQueueResponse{
			Department:   view.Department,
			ExecutorType: view.ExecutorType,
			Stage:        view.Stage,
			Page:         view.Page,
			Limit:        view.Limit,
			Total:        view.Total,
			Pages:        view.Pages,
			Items:        mapTickets(view.Items),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-pending",
		Method:      http.MethodPost,
		Path:        "/queue/assign",
		Summary:     "Run an assignment pass over pending requests (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Assigned []RequestResponse `json:"assigned"`
		} `json:"body"`
	}, error) {
		actor, authErr := requireAdmin(ctx, e, "queue.assign")
		if authErr != nil {
			return nil, authErr
		}
		assigned, err := e.AssignPending(ctx, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Assigned []RequestResponse `json:"assigned"`
			} `json:"body"`
		}{}
		out.Body.Assigned = mapRequests(assigned)
		return out, nil
	})
}

func registerExecutors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-executors",
		Method:      http.MethodGet,
		Path:        "/executors",
		Summary:     "List executors with live load",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListExecutors(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		loads, err := e.Repo.ActiveCountByAssignee(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]UserResponse, 0, len(items))
		for _, u := range items {
			resp := userResponse(u)
			if resp.Executor != nil {
				resp.Executor.Stats.CurrentLoad = loads[u.ID]
			}
			res = append(res, resp)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-executor-availability",
		Method:      http.MethodPatch,
		Path:        "/executors/{executor_id}/availability",
		Summary:     "Set executor availability",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ExecutorID string              `path:"executor_id"`
		Body       AvailabilityPayload `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if actor.ID != input.ExecutorID && !auth.IsAdmin(actor.Role) {
			return nil, handleError(auth.ForbiddenError{Action: "executor.availability"})
		}
		u, err := e.SetExecutorAvailability(ctx, input.ExecutorID, input.Body.Available, stringOrEmpty(input.Body.Reason), input.Body.Until, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-executor-stats",
		Method:      http.MethodPost,
		Path:        "/executors/{executor_id}/stats/refresh",
		Summary:     "Recompute executor statistics",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ExecutorID string `path:"executor_id"`
	}) (*struct {
		Body ExecutorStatsResponse `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if actor.ID != input.ExecutorID && !auth.IsAdmin(actor.Role) {
			return nil, handleError(auth.ForbiddenError{Action: "executor.stats"})
		}
		stats, err := e.RefreshExecutorStats(ctx, input.ExecutorID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExecutorStatsResponse `json:"body"`
		}{Body: ExecutorStatsResponse(stats)}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user (admin)",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserPayload `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor, authErr := requireAdmin(ctx, e, "user.create")
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UserCreateOptions{
			Email:        input.Body.Email,
			FirstName:    input.Body.FirstName,
			LastName:     stringOrEmpty(input.Body.LastName),
			Role:         stringOrEmpty(input.Body.Role),
			Department:   stringOrEmpty(input.Body.Department),
			AllowedTypes: input.Body.AllowedTypes,
			Specialties:  input.Body.Specialties,
			ActorID:      actor.ID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Capacity != nil {
			opts.Capacity = *input.Body.Capacity
		}
		if input.Body.Priority != nil {
			opts.Priority = *input.Body.Priority
		}
		u, err := e.CreateUser(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Role       string `query:"role"`
		Department string `query:"department"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx, e, "user.list"); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListUsers(ctx, repo.UserFilters{Role: input.Role, Department: input.Department})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get user",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		actor, authErr := currentUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if actor.ID != input.UserID && !auth.IsAdmin(actor.Role) {
			return nil, handleError(auth.ForbiddenError{Action: "user.read"})
		}
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerDepartments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-departments",
		Method:      http.MethodGet,
		Path:        "/departments",
		Summary:     "List departments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []DepartmentResponse `json:"body"`
	}, error) {
		if _, authErr := currentUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListDepartments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]DepartmentResponse, 0, len(items))
		for _, d := range items {
			res = append(res, DepartmentResponse(d))
		}
		return &struct {
			Body []DepartmentResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event log (admin)",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := requireAdmin(ctx, e, "events.read"); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.LatestEventsFrom(ctx, limit, input.Cursor, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		body := paginatedEvents{Items: mapEvents(items)}
		if len(items) == limit {
			body.NextCursor = items[len(items)-1].ID
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: body}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		resp := WhoAmIResponse{ActorID: principal.ActorID, Role: principal.Role, Source: principal.Source}
		if u, err := e.Repo.GetUser(ctx, principal.ActorID); err == nil {
			resp.Role = u.Role
			resp.Department = u.Department
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := signDevToken(authCfg.JWTSecret, actor, input.Body.Role, time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath || route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Reqline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
