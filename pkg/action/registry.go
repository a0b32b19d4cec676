// Package action implements the {action, ...fields} request protocol as a
// typed registry: one request type and one handler per action name.
package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/amirasaad/microgive/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// ErrUnknownAction is returned for an action name nobody registered.
var ErrUnknownAction = errors.New("unknown action")

// Handler serves one decoded and validated request.
type Handler[T any] func(ctx context.Context, req *T) (any, error)

type entry func(ctx context.Context, raw json.RawMessage) (any, error)

// Envelope is the wire response: success plus the handler's fields, or
// success false with error and code.
type Envelope map[string]any

// Registry maps action names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]entry
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Registry{
		handlers: make(map[string]entry),
		validate: v,
		logger:   logger.With("component", "action"),
	}
}

// Register binds name to h. Registering a name twice replaces the handler.
func Register[T any](r *Registry, name string, h Handler[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req T
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrValidation, decodeMessage(err))
		}
		if err := r.validate.Struct(&req); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrValidation, validationMessage(err))
		}
		return h(ctx, &req)
	}
}

// Names lists registered actions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes raw to the handler named by its "action" field and
// returns the HTTP status with the response envelope.
func (r *Registry) Dispatch(ctx context.Context, raw []byte) (int, Envelope) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return r.failure("", fmt.Errorf("%w: request body must be a JSON object", domain.ErrValidation))
	}
	r.mu.RLock()
	h, ok := r.handlers[head.Action]
	r.mu.RUnlock()
	if !ok {
		return r.failure(head.Action, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action))
	}

	res, err := h(ctx, raw)
	if err != nil {
		return r.failure(head.Action, err)
	}
	env, err := toEnvelope(res)
	if err != nil {
		return r.failure(head.Action, err)
	}
	env["success"] = true
	return 200, env
}

func (r *Registry) failure(name string, err error) (int, Envelope) {
	c := Classify(err)
	if c.Status >= 500 {
		r.logger.Error("action failed", "action", name, "error", err)
	} else {
		r.logger.Debug("action rejected", "action", name, "code", c.Code, "error", err)
	}
	env := Envelope{}
	var f *Failure
	if errors.As(err, &f) {
		for k, v := range f.Fields {
			env[k] = v
		}
	}
	env["success"] = false
	env["error"] = c.Message
	env["code"] = c.Code
	return c.Status, env
}

// toEnvelope flattens a handler result into top-level fields.
func toEnvelope(res any) (Envelope, error) {
	env := Envelope{}
	if res == nil {
		return env, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("action result must be an object: %w", err)
	}
	return env, nil
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	}
	return err.Error()
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required", "required_without":
			msgs = append(msgs, field+" is required")
		case "excluded_with":
			msgs = append(msgs, field+" cannot be combined with "+fe.Param())
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s %s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}
