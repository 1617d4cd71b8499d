package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"controlline/internal/chain"
	"controlline/internal/config"
	"controlline/internal/engine"
	"controlline/internal/reglament"
	"controlline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Executor chain.Executor
	Registry *chain.Registry
	AppCfg   *config.Config
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"run abc not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope used by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Controlline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
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
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id"},
		MaxAge:         300,
	}))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Controlline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerChains(group, cfg.Registry, cfg.Executor)
	registerRuns(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerInstances(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerProfiles(group, cfg.AppCfg)
	registerAudit(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

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
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var upe reglament.UnknownProfileError
	if errors.As(err, &upe) {
		return newAPIError(http.StatusUnprocessableEntity, "unknown_profile", err.Error(), map[string]any{"profile": upe.Profile})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unknown chain"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "only new events"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "out of range"):
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
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Controlline API Docs</title>
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
  </body>
</html>`, specURL)
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

func registerChains(api huma.API, reg *chain.Registry, x chain.Executor) {
	huma.Register(api, huma.Operation{
		OperationID: "chains-list",
		Method:      http.MethodGet,
		Path:        "/chains",
		Summary:     "List registered chains",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ChainListBody `json:"body"`
	}, error) {
		return &struct {
			Body ChainListBody `json:"body"`
		}{Body: ChainListBody{Chains: reg.List()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "chains-run",
		Method:      http.MethodPost,
		Path:        "/chains/{chain_id}/run",
		Summary:     "Execute a chain for a client and period",
	}, func(ctx context.Context, input *struct {
		ChainID string          `path:"chain_id"`
		Body    RunChainRequest `json:"body"`
	}) (*struct {
		Body RunBody `json:"body"`
	}, error) {
		run, err := x.Execute(ctx, chain.ExecuteOptions{
			ChainID:  input.ChainID,
			ClientID: input.Body.ClientID,
			Period:   input.Body.Period,
			Mode:     input.Body.Mode,
			Trigger:  "api",
			ActorID:  actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunBody `json:"body"`
		}{Body: RunBody{Run: run}}, nil
	})
}

func registerRuns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "runs-list",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List chain run history",
	}, func(ctx context.Context, input *struct {
		ChainID  string `query:"chain_id"`
		ClientID string `query:"client_id"`
		Period   string `query:"period"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body RunListBody `json:"body"`
	}, error) {
		runs, err := e.Repo.ListRuns(ctx, input.ChainID, input.ClientID, input.Period, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunListBody `json:"body"`
		}{Body: RunListBody{Runs: runs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "runs-get",
		Method:      http.MethodGet,
		Path:        "/runs/{run_id}",
		Summary:     "Fetch one run record",
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body RunBody `json:"body"`
	}, error) {
		run, err := e.Repo.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunBody `json:"body"`
		}{Body: RunBody{Run: run}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "events-generate",
		Method:      http.MethodPost,
		Path:        "/events/generate",
		Summary:     "Generate calendar events into the ledger",
	}, func(ctx context.Context, input *struct {
		Body GenerateEventsRequest `json:"body"`
	}) (*struct {
		Body GenerateEventsBody `json:"body"`
	}, error) {
		res, err := e.GenerateEvents(ctx, engine.GenerateOptions{
			ClientID: input.Body.ClientID,
			Period:   input.Body.Period,
			DryRun:   input.Body.DryRun,
			ActorID:  actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenerateEventsBody `json:"body"`
		}{Body: GenerateEventsBody{Events: res.Events, Appended: len(res.Appended)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "events-list",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List ledger events",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Period   string `query:"period"`
		Status   string `query:"status"`
	}) (*struct {
		Body EventListBody `json:"body"`
	}, error) {
		events, err := e.Repo.ListEvents(ctx, input.ClientID, input.Period, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventListBody `json:"body"`
		}{Body: EventListBody{Events: events}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "events-get",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}",
		Summary:     "Fetch one ledger event",
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body EventBody `json:"body"`
	}, error) {
		ev, err := e.Repo.GetEvent(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventBody `json:"body"`
		}{Body: EventBody{Event: ev}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "events-dispatch",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/dispatch",
		Summary:     "Route a new event into its process instance",
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body InstanceBody `json:"body"`
	}, error) {
		inst, err := e.DispatchEvent(ctx, input.EventID, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InstanceBody `json:"body"`
		}{Body: InstanceBody{Instance: inst}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "events-set-status",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/status",
		Summary:     "Update an event's lifecycle status",
	}, func(ctx context.Context, input *struct {
		EventID string                `path:"event_id"`
		Body    SetEventStatusRequest `json:"body"`
	}) (*struct {
		Body EventBody `json:"body"`
	}, error) {
		ev, err := e.SetEventStatus(ctx, input.EventID, input.Body.Status, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventBody `json:"body"`
		}{Body: EventBody{Event: ev}}, nil
	})
}

func registerInstances(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "instances-list",
		Method:      http.MethodGet,
		Path:        "/instances",
		Summary:     "List process instances",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Period   string `query:"period"`
	}) (*struct {
		Body InstanceListBody `json:"body"`
	}, error) {
		insts, err := e.Instances(ctx, input.ClientID, input.Period)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InstanceListBody `json:"body"`
		}{Body: InstanceListBody{Instances: insts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "instances-get",
		Method:      http.MethodGet,
		Path:        "/instances/{instance_id}",
		Summary:     "Fetch one process instance",
	}, func(ctx context.Context, input *struct {
		InstanceID string `path:"instance_id"`
	}) (*struct {
		Body InstanceBody `json:"body"`
	}, error) {
		inst, err := e.Instance(ctx, input.InstanceID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InstanceBody `json:"body"`
		}{Body: InstanceBody{Instance: inst}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "instances-add-step",
		Method:      http.MethodPost,
		Path:        "/instances/{instance_id}/steps",
		Summary:     "Append a checklist step",
	}, func(ctx context.Context, input *struct {
		InstanceID string         `path:"instance_id"`
		Body       AddStepRequest `json:"body"`
	}) (*struct {
		Body StepBody `json:"body"`
	}, error) {
		st, err := e.AddStep(ctx, input.InstanceID, input.Body.Title, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StepBody `json:"body"`
		}{Body: StepBody{Step: st}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "instances-complete-step",
		Method:      http.MethodPost,
		Path:        "/instances/{instance_id}/steps/{step_id}/complete",
		Summary:     "Complete a checklist step",
	}, func(ctx context.Context, input *struct {
		InstanceID string `path:"instance_id"`
		StepID     string `path:"step_id"`
	}) (*struct {
		Body InstanceBody `json:"body"`
	}, error) {
		inst, err := e.CompleteStep(ctx, input.InstanceID, input.StepID, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InstanceBody `json:"body"`
		}{Body: InstanceBody{Instance: inst}}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "tasks-list",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List derived tasks",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Status   string `query:"status"`
	}) (*struct {
		Body TaskListBody `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, input.ClientID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListBody `json:"body"`
		}{Body: TaskListBody{Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tasks-derive",
		Method:      http.MethodPost,
		Path:        "/tasks/derive",
		Summary:     "Derive tasks from ledger events",
	}, func(ctx context.Context, input *struct {
		Body DeriveTasksRequest `json:"body"`
	}) (*struct {
		Body TaskListBody `json:"body"`
	}, error) {
		tasks, created, err := e.DeriveTasks(ctx, engine.DeriveOptions{
			ClientID: input.Body.ClientID,
			Period:   input.Body.Period,
			Persist:  input.Body.Persist,
			ActorID:  actorIDFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListBody `json:"body"`
		}{Body: TaskListBody{Tasks: tasks, Created: created}}, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "templates-list",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "Event templates inferred from the ledger",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
	}) (*struct {
		Body TemplateListBody `json:"body"`
	}, error) {
		templates, err := e.Templates(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateListBody `json:"body"`
		}{Body: TemplateListBody{Templates: templates}}, nil
	})
}

func registerProfiles(api huma.API, cfg *config.Config) {
	huma.Register(api, huma.Operation{
		OperationID: "profiles-list",
		Method:      http.MethodGet,
		Path:        "/profiles",
		Summary:     "Configured client profiles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProfileListBody `json:"body"`
	}, error) {
		var profiles []ProfileInfo
		for id, p := range cfg.Clients.Catalog {
			profiles = append(profiles, ProfileInfo{ClientID: id, Profile: p.Profile, Description: p.Description})
		}
		sort.Slice(profiles, func(i, j int) bool { return profiles[i].ClientID < profiles[j].ClientID })
		return &struct {
			Body ProfileListBody `json:"body"`
		}{Body: ProfileListBody{Profiles: profiles}}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "log-tail",
		Method:      http.MethodGet,
		Path:        "/log",
		Summary:     "Tail the audit log",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body AuditListBody `json:"body"`
	}, error) {
		events, err := e.Repo.ListAuditEvents(ctx, input.ClientID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuditListBody `json:"body"`
		}{Body: AuditListBody{Events: events}}, nil
	})
}
