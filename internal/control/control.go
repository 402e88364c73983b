// Package control implements the message-based command surface used by
// popups, option pages and the HTTP API.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dgnsrekt/bucketspy/internal/buckets"
	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/settings"
)

const (
	ActionGetRequests    = "getRequests"
	ActionClearRequests  = "clearRequests"
	ActionGetSettings    = "getSettings"
	ActionSettingChanged = "settingChanged"
	ActionSetSetting     = "setSetting"
	ActionGetBuckets     = "getBuckets"
)

// UnknownAction is the error text returned for unrecognised actions.
const UnknownAction = "Unknown action"

// Message is a single command. TabID is optional; nil means every tab.
type Message struct {
	Action string `json:"action" doc:"Command name, e.g. getRequests"`
	TabID  *int   `json:"tabId,omitempty" doc:"Restrict the command to one tab"`
	Key    string `json:"key,omitempty" doc:"Setting key for settingChanged and setSetting"`
	Value  any    `json:"value,omitempty" doc:"Setting value for settingChanged and setSetting"`
}

// Response is the reply to a Message. Only the fields relevant to the
// action are set.
type Response struct {
	Requests  []capture.CapturedRequest `json:"requests,omitempty"`
	Buckets   []buckets.Summary         `json:"buckets,omitempty"`
	Success   bool                      `json:"success,omitempty"`
	IsEnabled *bool                     `json:"isEnabled,omitempty"`
	ShowBadge *bool                     `json:"showBadge,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Code      string                    `json:"code,omitempty"`
}

// MarshalJSON keeps an empty requests or buckets list as [] so callers can
// tell "nothing captured" from "not asked".
func (r Response) MarshalJSON() ([]byte, error) {
	type wire Response
	out := struct {
		wire
		Requests *[]capture.CapturedRequest `json:"requests,omitempty"`
		Buckets  *[]buckets.Summary         `json:"buckets,omitempty"`
	}{wire: wire(r)}
	if r.Requests != nil {
		out.Requests = &r.Requests
	}
	if r.Buckets != nil {
		out.Buckets = &r.Buckets
	}
	return json.Marshal(out)
}

// Engine is the part of *capture.Engine the dispatcher drives.
type Engine interface {
	GetAll(tabID *int) []capture.CapturedRequest
	ClearForTab(ctx context.Context, tabID int) error
	ClearAll(ctx context.Context) error
	Submit(ctx context.Context, ev capture.Event) error
}

// SettingsStore is the part of settings.Store the dispatcher needs.
type SettingsStore interface {
	Load(ctx context.Context) (settings.Settings, error)
	Set(ctx context.Context, key string, value any) error
}

type handler func(ctx context.Context, msg Message) (Response, error)

// Dispatcher routes messages to their handlers.
type Dispatcher struct {
	engine   Engine
	store    SettingsStore
	handlers map[string]handler
}

func NewDispatcher(engine Engine, store SettingsStore) *Dispatcher {
	d := &Dispatcher{engine: engine, store: store}
	d.handlers = map[string]handler{
		ActionGetRequests:    d.getRequests,
		ActionClearRequests:  d.clearRequests,
		ActionGetSettings:    d.getSettings,
		ActionSettingChanged: d.settingChanged,
		ActionSetSetting:     d.setSetting,
		ActionGetBuckets:     d.getBuckets,
	}
	return d
}

// Dispatch runs msg and folds any failure into Response.Error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Response {
	resp, err := d.Handle(ctx, msg)
	if err == nil {
		return resp
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		out := Response{Error: coded.Message, Code: coded.Code}
		if coded.Cause != nil && coded.Code != CodeUnknownAction {
			out.Error = coded.Message + ": " + coded.Cause.Error()
		}
		return out
	}
	return Response{Error: err.Error()}
}

// Handle runs msg and returns failures as *CodedError.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) (Response, error) {
	h, ok := d.handlers[msg.Action]
	if !ok {
		slog.Debug("unknown control action", "action", msg.Action)
		return Response{}, newError(CodeUnknownAction, UnknownAction, nil)
	}
	return h(ctx, msg)
}

func (d *Dispatcher) getRequests(_ context.Context, msg Message) (Response, error) {
	reqs := d.engine.GetAll(msg.TabID)
	if reqs == nil {
		reqs = []capture.CapturedRequest{}
	}
	return Response{Requests: reqs}, nil
}

func (d *Dispatcher) getBuckets(_ context.Context, msg Message) (Response, error) {
	sums := buckets.Aggregate(d.engine.GetAll(msg.TabID))
	if sums == nil {
		sums = []buckets.Summary{}
	}
	return Response{Buckets: sums}, nil
}

func (d *Dispatcher) clearRequests(ctx context.Context, msg Message) (Response, error) {
	var err error
	if msg.TabID != nil {
		err = d.engine.ClearForTab(ctx, *msg.TabID)
	} else {
		err = d.engine.ClearAll(ctx)
	}
	if err != nil {
		return Response{}, newError(CodeEngineUnavailable, "failed to clear requests", err)
	}
	return Response{Success: true}, nil
}

func (d *Dispatcher) getSettings(ctx context.Context, _ Message) (Response, error) {
	s, err := d.store.Load(ctx)
	if err != nil {
		return Response{}, newError(CodeSettingsUnavailable, "failed to read settings", err)
	}
	return Response{IsEnabled: &s.IsEnabled, ShowBadge: &s.ShowBadge}, nil
}

// settingChanged tells the engine about a value already written elsewhere.
func (d *Dispatcher) settingChanged(ctx context.Context, msg Message) (Response, error) {
	if err := settings.Validate(msg.Key, msg.Value); err != nil {
		return Response{}, newError(CodeValidation, "invalid setting", err)
	}
	if err := d.engine.Submit(ctx, capture.SettingChanged{Key: msg.Key, Value: msg.Value}); err != nil {
		return Response{}, newError(CodeEngineUnavailable, "failed to apply setting", err)
	}
	return Response{Success: true}, nil
}

// setSetting persists the value. The store's change notification carries it
// to the engine.
func (d *Dispatcher) setSetting(ctx context.Context, msg Message) (Response, error) {
	if err := settings.Validate(msg.Key, msg.Value); err != nil {
		return Response{}, newError(CodeValidation, "invalid setting", err)
	}
	if err := d.store.Set(ctx, msg.Key, msg.Value); err != nil {
		return Response{}, newError(CodeSettingsUnavailable, "failed to write setting", err)
	}
	return Response{Success: true}, nil
}
