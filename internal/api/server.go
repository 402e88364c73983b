package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/bucketspy/internal/buckets"
	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/control"
	"github.com/dgnsrekt/bucketspy/internal/relay"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service runs control messages. *control.Dispatcher satisfies it.
type Service interface {
	Handle(ctx context.Context, msg control.Message) (control.Response, error)
	Dispatch(ctx context.Context, msg control.Message) control.Response
}

// StatsSource reports engine counters. *capture.Engine satisfies it.
type StatsSource interface {
	Stats() capture.Stats
}

type tabInput struct {
	TabID string `query:"tab_id" doc:"Restrict to one tab id. Omit for every tab."`
}

func (in *tabInput) tab() (*int, error) {
	if in.TabID == "" {
		return nil, nil
	}
	id, err := strconv.Atoi(in.TabID)
	if err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("tab_id %q is not an integer", in.TabID))
	}
	return &id, nil
}

type bucketView struct {
	buckets.Summary
	FirstSeenAgo string `json:"firstSeenAgo"`
}

type settingsView struct {
	IsEnabled bool `json:"isEnabled"`
	ShowBadge bool `json:"showBadge"`
}

type settingsOutput struct {
	Body settingsView
}

func NewServer(svc Service, stats StatsSource, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("BucketSpy API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/feeds", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(feedDocsHTML)); err != nil {
			slog.Debug("feed docs response write failed", "error", err)
		}
	})

	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
		router.Get("/api/v1/ws", relay.WSHandler(broker))
	}

	registerHealthHandlers(api, stats)
	registerMessageHandlers(api, svc)
	registerRequestHandlers(api, svc)
	registerSettingsHandlers(api, svc)

	return router
}

func registerHealthHandlers(api huma.API, stats StatsSource) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statsOutput struct {
		Body capture.Stats
	}
	huma.Register(api, huma.Operation{OperationID: "get-stats", Method: http.MethodGet, Path: "/api/v1/stats", Summary: "Capture engine counters", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statsOutput, error) {
			if stats == nil {
				return nil, huma.Error503ServiceUnavailable("stats unavailable")
			}
			return &statsOutput{Body: stats.Stats()}, nil
		})
}

func registerMessageHandlers(api huma.API, svc Service) {
	type messageInput struct {
		Body control.Message
	}
	// Failures keep the message reply shape, {error, code}, with a matching status.
	type messageOutput struct {
		Status int
		Body   control.Response
	}
	huma.Register(api, huma.Operation{OperationID: "send-message", Method: http.MethodPost, Path: "/api/v1/messages", Summary: "Send a control message", Tags: []string{"Control"}},
		func(ctx context.Context, input *messageInput) (*messageOutput, error) {
			resp := svc.Dispatch(ctx, input.Body)
			return &messageOutput{Status: statusForCode(resp.Code), Body: resp}, nil
		})
}

func registerRequestHandlers(api huma.API, svc Service) {
	type requestsOutput struct {
		Body struct {
			Requests []capture.CapturedRequest `json:"requests"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-requests", Method: http.MethodGet, Path: "/api/v1/requests", Summary: "List captured S3 requests", Tags: []string{"Requests"}},
		func(ctx context.Context, input *tabInput) (*requestsOutput, error) {
			tab, err := input.tab()
			if err != nil {
				return nil, err
			}
			resp, err := svc.Handle(ctx, control.Message{Action: control.ActionGetRequests, TabID: tab})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &requestsOutput{}
			out.Body.Requests = resp.Requests
			return out, nil
		})

	type clearOutput struct {
		Body struct {
			Success bool `json:"success"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-requests", Method: http.MethodDelete, Path: "/api/v1/requests", Summary: "Clear captured requests", Tags: []string{"Requests"}},
		func(ctx context.Context, input *tabInput) (*clearOutput, error) {
			tab, err := input.tab()
			if err != nil {
				return nil, err
			}
			resp, err := svc.Handle(ctx, control.Message{Action: control.ActionClearRequests, TabID: tab})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.Success = resp.Success
			return out, nil
		})

	type bucketsOutput struct {
		Body struct {
			Buckets []bucketView `json:"buckets"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-buckets", Method: http.MethodGet, Path: "/api/v1/buckets", Summary: "Captured requests grouped by bucket", Tags: []string{"Requests"}},
		func(ctx context.Context, input *tabInput) (*bucketsOutput, error) {
			tab, err := input.tab()
			if err != nil {
				return nil, err
			}
			resp, err := svc.Handle(ctx, control.Message{Action: control.ActionGetBuckets, TabID: tab})
			if err != nil {
				return nil, mapErr(err)
			}
			out := &bucketsOutput{}
			out.Body.Buckets = bucketViews(resp.Buckets, time.Now())
			return out, nil
		})
}

func bucketViews(sums []buckets.Summary, now time.Time) []bucketView {
	views := make([]bucketView, 0, len(sums))
	for _, s := range sums {
		views = append(views, bucketView{Summary: s, FirstSeenAgo: humanize.RelTime(s.FirstSeen, now, "ago", "from now")})
	}
	return views
}

func registerSettingsHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get capture settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			return loadSettings(ctx, svc)
		})

	type setSettingInput struct {
		Key  string `path:"key" enum:"isEnabled,showBadge"`
		Body struct {
			Value bool `json:"value"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-setting", Method: http.MethodPut, Path: "/api/v1/settings/{key}", Summary: "Persist one setting", Tags: []string{"Settings"}},
		func(ctx context.Context, input *setSettingInput) (*settingsOutput, error) {
			_, err := svc.Handle(ctx, control.Message{Action: control.ActionSetSetting, Key: input.Key, Value: input.Body.Value})
			if err != nil {
				return nil, mapErr(err)
			}
			return loadSettings(ctx, svc)
		})
}

func loadSettings(ctx context.Context, svc Service) (*settingsOutput, error) {
	resp, err := svc.Handle(ctx, control.Message{Action: control.ActionGetSettings})
	if err != nil {
		return nil, mapErr(err)
	}
	out := &settingsOutput{}
	if resp.IsEnabled != nil {
		out.Body.IsEnabled = *resp.IsEnabled
	}
	if resp.ShowBadge != nil {
		out.Body.ShowBadge = *resp.ShowBadge
	}
	return out, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *control.CodedError
	if errors.As(err, &coded) {
		status := statusForCode(coded.Code)
		if status == http.StatusInternalServerError {
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
		return huma.NewError(status, coded.Message, causes(coded)...)
	}
	return huma.Error500InternalServerError(err.Error())
}

func statusForCode(code string) int {
	switch code {
	case "":
		return http.StatusOK
	case control.CodeUnknownAction, control.CodeValidation:
		return http.StatusBadRequest
	case control.CodeSettingsUnavailable:
		return http.StatusBadGateway
	case control.CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func causes(coded *control.CodedError) []error {
	if coded.Cause == nil {
		return nil
	}
	return []error{coded.Cause}
}
