package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"cofounder/internal/domain"
	"cofounder/internal/engine"
	"cofounder/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid action status transition: rejected -> approved"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the CoFounder API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
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
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("CoFounder API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBusinesses(group, cfg.Engine)
	registerDecisions(group, cfg.Engine)
	registerPreferences(group, cfg.Engine)
	registerLearning(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerInvoices(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
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
	if errors.Is(err, engine.ErrInvalidTransition) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	}
	if errors.Is(err, domain.ErrDetailsMismatch) {
		return newAPIError(http.StatusUnprocessableEntity, "details_mismatch", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "out of range"):
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
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
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
    <title>CoFounder API Docs</title>
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

func registerBusinesses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-business",
		Method:        http.MethodPost,
		Path:          "/businesses",
		Summary:       "Register business",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateBusinessRequest `json:"body"`
	}) (*struct {
		Body BusinessResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.InitBusiness(ctx, input.Body.ID, input.Body.Name, input.Body.Industry, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BusinessResponse `json:"body"`
		}{Body: businessResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-businesses",
		Method:      http.MethodGet,
		Path:        "/businesses",
		Summary:     "List businesses",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []BusinessResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListBusinesses(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]BusinessResponse, 0, len(items))
		for _, b := range items {
			res = append(res, businessResponse(b))
		}
		return &struct {
			Body []BusinessResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-business",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}",
		Summary:     "Get business",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct {
		Body BusinessResponse `json:"body"`
	}, error) {
		b, err := e.Repo.GetBusiness(ctx, input.BusinessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BusinessResponse `json:"body"`
		}{Body: businessResponse(b)}, nil
	})
}

func registerDecisions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-decision",
		Method:        http.MethodPost,
		Path:          "/businesses/{business_id}/decisions",
		Summary:       "Log a decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		BusinessID string             `path:"business_id"`
		Body       LogDecisionRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.DecisionLogOptions{
			BusinessID: input.BusinessID,
			Type:       domain.DecisionType(input.Body.Type),
			Decision:   input.Body.Decision,
			Reasoning:  input.Body.Reasoning,
			ActorID:    actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Context != nil {
			raw, err := json.Marshal(input.Body.Context)
			if err != nil {
				return nil, handleError(err)
			}
			opts.ContextJSON = string(raw)
		}
		d, err := e.LogDecision(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decision-history",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/decisions",
		Summary:     "Decision history",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
		Type       string `query:"type"`
		Feedback   string `query:"feedback" enum:"approved,rejected,modified,pending"`
		From       string `query:"from"`
		To         string `query:"to"`
		Limit      int    `query:"limit"`
		Offset     int    `query:"offset"`
	}) (*struct {
		Body []DecisionResponse `json:"body"`
	}, error) {
		items, err := e.History(ctx, repo.DecisionFilters{
			BusinessID: input.BusinessID,
			Type:       domain.DecisionType(input.Type),
			Feedback:   input.Feedback,
			From:       input.From,
			To:         input.To,
			Limit:      input.Limit,
			Offset:     input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DecisionResponse `json:"body"`
		}{Body: mapDecisions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision",
		Method:      http.MethodGet,
		Path:        "/decisions/{decision_id}",
		Summary:     "Get decision",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DecisionID string `path:"decision_id"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		d, err := e.GetDecision(ctx, input.DecisionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-outcome",
		Method:      http.MethodPost,
		Path:        "/decisions/{decision_id}/outcome",
		Summary:     "Record decision outcome",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		DecisionID string               `path:"decision_id"`
		Body       RecordOutcomeRequest `json:"body"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Outcome == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "outcome is required", nil)
		}
		d, err := e.RecordOutcome(ctx, input.DecisionID, input.Body.Outcome, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: decisionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-feedback",
		Method:      http.MethodPost,
		Path:        "/businesses/{business_id}/decisions/{decision_id}/feedback",
		Summary:     "Record feedback and learn",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BusinessID string                `path:"business_id"`
		DecisionID string                `path:"decision_id"`
		Body       RecordFeedbackRequest `json:"body"`
	}) (*struct {
		Body FeedbackAnalysisResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		analysis, err := e.RecordFeedback(ctx, input.BusinessID, input.DecisionID, domain.Feedback(input.Body.Feedback), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FeedbackAnalysisResponse `json:"body"`
		}{Body: feedbackAnalysisResponse(analysis)}, nil
	})
}

func registerPreferences(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-preferences",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/preferences",
		Summary:     "List learned preferences",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
		Category   string `query:"category"`
	}) (*struct {
		Body []PreferenceResponse `json:"body"`
	}, error) {
		var items []domain.LearnedPreference
		var err error
		if input.Category != "" {
			items, err = e.Repo.ListPreferencesByCategory(ctx, input.BusinessID, domain.PreferenceCategory(input.Category))
		} else {
			items, err = e.Repo.ListPreferences(ctx, input.BusinessID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PreferenceResponse `json:"body"`
		}{Body: mapPreferences(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-preference",
		Method:      http.MethodPut,
		Path:        "/businesses/{business_id}/preferences",
		Summary:     "Create or overwrite a preference",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string                  `path:"business_id"`
		Body       UpdatePreferenceRequest `json:"body"`
	}) (*struct {
		Body PreferenceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdatePreference(ctx, engine.PreferenceOptions{
			BusinessID: input.BusinessID,
			Category:   domain.PreferenceCategory(input.Body.Category),
			Preference: input.Body.Preference,
			Confidence: input.Body.Confidence,
			Example:    input.Body.Example,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PreferenceResponse `json:"body"`
		}{Body: preferenceResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decrease-preference",
		Method:      http.MethodPost,
		Path:        "/preferences/{preference_id}/decrease",
		Summary:     "Decrease preference confidence",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PreferenceID string                    `path:"preference_id"`
		Body         DecreasePreferenceRequest `json:"body"`
	}) (*struct {
		Body struct {
			Preference PreferenceResponse `json:"preference"`
			Deleted    bool               `json:"deleted"`
		} `json:"body"`
	}, error) {
		p, deleted, err := e.DecreasePreference(ctx, input.PreferenceID, input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Preference PreferenceResponse `json:"preference"`
				Deleted    bool               `json:"deleted"`
			} `json:"body"`
		}{}
		out.Body.Preference = preferenceResponse(p)
		out.Body.Deleted = deleted
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "forget-preference",
		Method:      http.MethodDelete,
		Path:        "/preferences/{preference_id}",
		Summary:     "Forget a preference",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PreferenceID string `path:"preference_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ForgetPreference(ctx, input.PreferenceID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-preference-category",
		Method:      http.MethodDelete,
		Path:        "/businesses/{business_id}/preferences/{category}",
		Summary:     "Reset a preference category",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
		Category   string `path:"category"`
	}) (*struct {
		Body map[string]int64 `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.ResetPreferenceCategory(ctx, input.BusinessID, domain.PreferenceCategory(input.Category), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int64 `json:"body"`
		}{Body: map[string]int64{"deleted": n}}, nil
	})
}

func registerLearning(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-insights",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/insights",
		Summary:     "Generate insights",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct {
		Body []InsightResponse `json:"body"`
	}, error) {
		items, err := e.GenerateInsights(ctx, input.BusinessID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]InsightResponse, 0, len(items))
		for _, in := range items {
			res = append(res, InsightResponse{
				Category:   string(in.Category),
				Text:       in.Text,
				Confidence: in.Confidence,
			})
		}
		return &struct {
			Body []InsightResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preference-summary",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/preference-summary",
		Summary:     "Preference summary for prompts",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		summary, err := e.PreferenceSummary(ctx, input.BusinessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"summary": summary}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-alignment",
		Method:      http.MethodPost,
		Path:        "/businesses/{business_id}/alignment-check",
		Summary:     "Score a proposal against preferences",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string                `path:"business_id"`
		Body       AlignmentCheckRequest `json:"body"`
	}) (*struct {
		Body AlignmentResponse `json:"body"`
	}, error) {
		if input.Body.Text == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		report, err := e.CheckAlignment(ctx, input.BusinessID, input.Body.Text, domain.DecisionType(input.Body.Type))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AlignmentResponse `json:"body"`
		}{Body: AlignmentResponse{
			AlignmentScore: report.AlignmentScore,
			Conflicts:      report.Conflicts,
			Suggestions:    report.Suggestions,
		}}, nil
	})
}

func registerActions(api huma.API, e engine.Engine) {
	type actionOut struct {
		Body ActionResponse `json:"body"`
	}
	wrap := func(a domain.CoFounderAction, err error) (*actionOut, error) {
		if err != nil {
			return nil, handleError(err)
		}
		return &actionOut{Body: actionResponse(a)}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID:   "generate-payment-reminder",
		Method:        http.MethodPost,
		Path:          "/businesses/{business_id}/actions/payment-reminder",
		Summary:       "Propose a payment reminder",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BusinessID string                 `path:"business_id"`
		Body       PaymentReminderRequest `json:"body"`
	}) (*actionOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.InvoiceID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invoice_id is required", nil)
		}
		return wrap(e.GeneratePaymentReminder(ctx, input.BusinessID, input.Body.InvoiceID, actorID))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-lead-response",
		Method:        http.MethodPost,
		Path:          "/businesses/{business_id}/actions/lead-response",
		Summary:       "Propose a lead response",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string              `path:"business_id"`
		Body       LeadResponseRequest `json:"body"`
	}) (*actionOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return wrap(e.GenerateLeadResponse(ctx, engine.LeadOptions{
			BusinessID: input.BusinessID,
			LeadID:     input.Body.LeadID,
			Contact:    input.Body.Contact,
			Inquiry:    input.Body.Inquiry,
			ActorID:    actorID,
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-review-reply",
		Method:        http.MethodPost,
		Path:          "/businesses/{business_id}/actions/review-reply",
		Summary:       "Propose a review reply",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string             `path:"business_id"`
		Body       ReviewReplyRequest `json:"body"`
	}) (*actionOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return wrap(e.GenerateReviewReply(ctx, engine.ReviewOptions{
			BusinessID: input.BusinessID,
			ReviewID:   input.Body.ReviewID,
			Rating:     input.Body.Rating,
			ReviewText: input.Body.ReviewText,
			ActorID:    actorID,
		}))
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-alert",
		Method:        http.MethodPost,
		Path:          "/businesses/{business_id}/actions/alert",
		Summary:       "Propose an alert",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string       `path:"business_id"`
		Body       AlertRequest `json:"body"`
	}) (*actionOut, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return wrap(e.GenerateAlert(ctx, input.BusinessID, input.Body.Kind, input.Body.Message, actorID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "scan-payment-reminders",
		Method:      http.MethodPost,
		Path:        "/businesses/{business_id}/actions/scan",
		Summary:     "Scan overdue invoices for reminders",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct {
		Body []ActionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ScanForPendingPaymentReminders(ctx, input.BusinessID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActionResponse `json:"body"`
		}{Body: mapActions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actions",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/actions",
		Summary:     "List actions (defaults to pending)",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
		Type       string `query:"type"`
		Status     string `query:"status" enum:"pending,approved,executed,rejected"`
		Priority   string `query:"priority" enum:"low,medium,high,urgent"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []ActionResponse `json:"body"`
	}, error) {
		items, err := e.ListPending(ctx, repo.ActionFilters{
			BusinessID: input.BusinessID,
			Type:       domain.ActionType(input.Type),
			Status:     domain.ActionStatus(input.Status),
			Priority:   domain.Priority(input.Priority),
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActionResponse `json:"body"`
		}{Body: mapActions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-action",
		Method:      http.MethodGet,
		Path:        "/actions/{action_id}",
		Summary:     "Get action",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
	}) (*actionOut, error) {
		return wrap(e.GetAction(ctx, input.ActionID))
	})

	transitionRoute := func(opID, pathSuffix, summary string, fn func(ctx context.Context, id, actorID string) (domain.CoFounderAction, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/actions/{action_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			ActionID string `path:"action_id"`
		}) (*actionOut, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			return wrap(fn(ctx, input.ActionID, actorID))
		})
	}
	transitionRoute("approve-action", "approve", "Approve action", e.Approve)
	transitionRoute("reject-action", "reject", "Reject action", e.Reject)
	transitionRoute("revert-action", "revert", "Revert action to pending", e.Revert)
	transitionRoute("execute-action", "execute", "Execute approved action", e.Execute)

	bulkRoute := func(opID, pathSuffix, summary string, fn func(ctx context.Context, ids []string, actorID string) (int64, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/businesses/{business_id}/actions/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusBadRequest},
		}, func(ctx context.Context, input *struct {
			BusinessID string            `path:"business_id"`
			Body       BulkActionRequest `json:"body"`
		}) (*struct {
			Body map[string]int64 `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			if len(input.Body.IDs) == 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids are required", nil)
			}
			n, err := fn(ctx, input.Body.IDs, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body map[string]int64 `json:"body"`
			}{Body: map[string]int64{"updated": n}}, nil
		})
	}
	bulkRoute("bulk-approve-actions", "bulk-approve", "Bulk approve actions", e.BulkApprove)
	bulkRoute("bulk-reject-actions", "bulk-reject", "Bulk reject actions", e.BulkReject)

	huma.Register(api, huma.Operation{
		OperationID: "execute-many-actions",
		Method:      http.MethodPost,
		Path:        "/businesses/{business_id}/actions/execute-many",
		Summary:     "Execute a list of approved actions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string            `path:"business_id"`
		Body       BulkActionRequest `json:"body"`
	}) (*struct {
		Body []engine.ExecutionOutcome `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.IDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids are required", nil)
		}
		return &struct {
			Body []engine.ExecutionOutcome `json:"body"`
		}{Body: mapOutcomes(e.ExecuteMany(ctx, input.Body.IDs, actorID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-all-approved",
		Method:      http.MethodPost,
		Path:        "/businesses/{business_id}/actions/execute-all",
		Summary:     "Execute all approved actions",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct {
		Body []engine.ExecutionOutcome `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		outcomes, err := e.ExecuteAllApproved(ctx, input.BusinessID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.ExecutionOutcome `json:"body"`
		}{Body: mapOutcomes(outcomes)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "action-stats",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/actions/stats",
		Summary:     "Action counts by status and type",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
	}) (*struct {
		Body repo.ActionStats `json:"body"`
	}, error) {
		stats, err := e.ActionStats(ctx, input.BusinessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body repo.ActionStats `json:"body"`
		}{Body: stats}, nil
	})
}

func registerInvoices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-invoice",
		Method:        http.MethodPost,
		Path:          "/businesses/{business_id}/invoices",
		Summary:       "Record an invoice snapshot",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BusinessID string               `path:"business_id"`
		Body       CreateInvoiceRequest `json:"body"`
	}) (*struct {
		Body InvoiceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.InvoiceOptions{
			BusinessID:  input.BusinessID,
			Contact:     input.Body.Contact,
			ContactName: input.Body.ContactName,
			AmountCents: input.Body.AmountCents,
			Status:      input.Body.Status,
			SentAt:      input.Body.SentAt,
			ActorID:     actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		inv, err := e.AddInvoice(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvoiceResponse `json:"body"`
		}{Body: invoiceResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/businesses/{business_id}/invoices",
		Summary:     "List invoices",
	}, func(ctx context.Context, input *struct {
		BusinessID string `path:"business_id"`
		Status     string `query:"status" enum:"draft,sent,paid,void"`
	}) (*struct {
		Body []InvoiceResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListInvoices(ctx, input.BusinessID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []InvoiceResponse `json:"body"`
		}{Body: mapInvoices(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		BusinessID string `query:"business_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.BusinessID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
