package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assessvault/internal/archive"
	"assessvault/internal/engine"
	"assessvault/internal/logger"
	"assessvault/internal/metrics"
	"assessvault/internal/report"
	"assessvault/internal/repo"
	"assessvault/internal/storage"
)

const (
	zipContentType = "application/zip"
	maxBodyBytes   = 8 << 20
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   logger.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"folder green-acres: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
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

// fileOutput streams a generated file as an attachment.
type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func attachment(contentType, filename string, data []byte) *fileOutput {
	return &fileOutput{
		ContentType:        contentType,
		ContentDisposition: contentDisposition(filename),
		Body:               data,
	}
}

// contentDisposition quotes plain ASCII names as filename="x"; anything else
// falls back to RFC 2231 encoding.
func contentDisposition(filename string) string {
	for i := 0; i < len(filename); i++ {
		if c := filename[i]; c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
		}
	}
	return `attachment; filename="` + filename + `"`
}

type handlers struct {
	e    engine.Engine
	log  logger.Logger
	auth AuthConfig
}

// New returns an HTTP handler exposing the assessvault API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestID(log))
	router.Use(instrument)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	api := humachi.New(router, apiConfig(basePath))
	group := huma.NewGroup(api, basePath)

	h := handlers{e: cfg.Engine, log: log, auth: cfg.Auth}
	router.Handle("/metrics", promhttp.Handler())
	registerHealth(group)
	h.registerFolders(group)
	h.registerSignedURL(group)
	h.registerDocuments(group)
	h.registerActivity(group)
	registerMe(group)
	if cfg.Auth.DevLogin {
		h.registerDevAuth(group)
	}

	return router, nil
}

// apiConfig serves the OpenAPI document under basePath and the docs page
// at /docs. Every operation needs a bearer token or an API key unless it
// overrides Security.
func apiConfig(basePath string) huma.Config {
	hcfg := huma.DefaultConfig("assessvault API", "0.3.0")
	hcfg.OpenAPIPath = path.Join(basePath, "openapi")
	hcfg.DocsPath = "/docs"
	hcfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		"apiKeyAuth": {Type: "apiKey", In: "header", Name: "X-Api-Key"},
	}
	hcfg.Security = []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	return hcfg
}

// public clears the default security requirement on open operations.
var public = []map[string][]string{}

func requestID(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", id)
			log.Debug("request", map[string]any{"request_id": id, "method": r.Method, "path": r.URL.Path})
			next.ServeHTTP(w, r)
		})
	}
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
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

// handleError maps domain errors onto the error envelope. Anything
// unrecognised is logged and reported as a bare internal error.
func handleError(log logger.Logger, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrUnauthorized):
		return newAPIError(http.StatusUnauthorized, "unauthorized", "storage access denied", nil)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, report.ErrInvalidPayload):
		return newAPIError(http.StatusBadRequest, "invalid_payload", err.Error(), nil)
	case errors.Is(err, archive.ErrFolderRequired), errors.Is(err, engine.ErrPathRequired):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		log.WithError(err).Error("request failed", nil)
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Security:    public,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// folderParam decodes a folder path segment; nested folders arrive with
// escaped slashes.
func folderParam(raw string) (string, huma.StatusError) {
	folder, err := url.PathUnescape(raw)
	if err != nil {
		return "", newAPIError(http.StatusBadRequest, "bad_request", "invalid folder name", map[string]any{"folder": raw})
	}
	folder = storage.Clean(folder)
	if folder == "" {
		return "", newAPIError(http.StatusBadRequest, "bad_request", archive.ErrFolderRequired.Error(), nil)
	}
	return folder, nil
}

func (h handlers) registerFolders(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-folders",
		Method:      http.MethodGet,
		Path:        "/folders",
		Summary:     "List the children of a folder",
		Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Prefix string `query:"prefix" doc:"Folder to list; empty lists the bucket root"`
	}) (*struct {
		Body FolderListResponse `json:"body"`
	}, error) {
		entries, err := h.e.ListFolders(ctx, input.Prefix)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		resp := FolderListResponse{Prefix: storage.Clean(input.Prefix), Items: []EntryResponse{}}
		for _, e := range entries {
			resp.Items = append(resp.Items, entryResponse(e))
		}
		return &struct {
			Body FolderListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-folder",
		Method:      http.MethodGet,
		Path:        "/download/{folder}",
		Summary:     "Download a folder and everything below it as a zip",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Folder string `path:"folder"`
	}) (*fileOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		folder, perr := folderParam(input.Folder)
		if perr != nil {
			return nil, perr
		}
		res, err := h.e.DownloadFolder(ctx, folder, actorID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "Folder not found or empty", map[string]any{"folder": folder})
			}
			return nil, handleError(h.log, err)
		}
		return attachment(zipContentType, res.Filename, res.Data), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-folder",
		Method:      http.MethodDelete,
		Path:        "/folder/{folder}",
		Summary:     "Delete a folder recursively",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Folder string `path:"folder"`
	}) (*struct {
		Body DeleteFolderResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		folder, perr := folderParam(input.Folder)
		if perr != nil {
			return nil, perr
		}
		res, err := h.e.DeleteFolder(ctx, folder, actorID)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		return &struct {
			Body DeleteFolderResponse `json:"body"`
		}{Body: deletionResponse(res)}, nil
	})
}

func (h handlers) registerSignedURL(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "signed-url",
		Method:      http.MethodGet,
		Path:        "/signed-url",
		Summary:     "Issue a time limited download URL for one object",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Path string `query:"path" required:"true"`
		TTL  int    `query:"ttl" minimum:"0" doc:"Lifetime in seconds; 0 uses the configured default"`
	}) (*struct {
		Body SignedURLResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := h.e.SignedURL(ctx, input.Path, time.Duration(input.TTL)*time.Second, actorID)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		return &struct {
			Body SignedURLResponse `json:"body"`
		}{Body: SignedURLResponse{URL: u.URL, ExpiresIn: int(u.ExpiresIn / time.Second)}}, nil
	})
}

func (h handlers) registerDocuments(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "convert-document",
		Method:      http.MethodGet,
		Path:        "/documents",
		Summary:     "Render a stored JSON assessment as .docx",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Path string `query:"path" required:"true"`
	}) (*fileOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		doc, err := h.e.ConvertObject(ctx, input.Path, actorID)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		return attachment(report.DocxContentType, doc.Filename, doc.Data), nil
	})

	generators := []struct {
		id, path, summary string
		run               func(context.Context, []byte, string) (engine.Document, error)
	}{
		{"horse-table", "/documents/horse-table", "Render a horse list as a BCS table", h.e.GenerateHorseTable},
		{"compliance-report", "/documents/report", "Render a compliance report", h.e.GenerateReport},
	}
	for _, g := range generators {
		huma.Register(api, huma.Operation{
			OperationID: g.id,
			Method:      http.MethodPost,
			Path:        g.path,
			Summary:     g.summary,
			Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
		}, func(ctx context.Context, input *struct {
			RawBody []byte
		}) (*fileOutput, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			data := input.RawBody
			if len(data) == 0 {
				data = bodyBytes(ctx)
			}
			if len(bytes.TrimSpace(data)) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
			}
			doc, err := g.run(ctx, data, actorID)
			if err != nil {
				return nil, handleError(h.log, err)
			}
			return attachment(report.DocxContentType, doc.Filename, doc.Data), nil
		})
	}
}

func (h handlers) registerActivity(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "List recent activity",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		Folder string `query:"folder"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		filter := repo.EventFilter{Type: input.Type, Folder: storage.Clean(input.Folder)}
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			filter.Before = parsed
		}
		items, err := h.e.Activity(ctx, limit+1, filter)
		if err != nil {
			return nil, handleError(h.log, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
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
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Source:      principal.Source,
			Roles:       nonNilSlice(principal.Roles),
			Permissions: nonNilSlice(principal.Permissions),
		}}, nil
	})
}

func (h handlers) registerDevAuth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Security:    public,
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
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
		token, exp, err := IssueToken(h.auth.JWTSecret, actor, input.Body.Roles, h.auth.TokenTTL, time.Now())
		if err != nil {
			return nil, handleError(h.log, err)
		}
		h.log.Warn("dev login token issued", map[string]any{"actor_id": actor})
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339)}}, nil
	})
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
