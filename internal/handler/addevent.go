// Package handler implements the request handlers registered with the
// dispatcher.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/session"
	"github.com/user/skyd/internal/status"
	"github.com/user/skyd/internal/types"
)

const tracerName = "github.com/user/skyd/internal/handler"

// AddEvent handles EADD requests: it records one event in the requested
// table, opening and closing a table session for the request.
type AddEvent struct {
	root   string
	engine types.Engine
	logger *slog.Logger
	tracer trace.Tracer
}

type Option func(*AddEvent)

func WithLogger(l *slog.Logger) Option {
	return func(h *AddEvent) { h.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(h *AddEvent) { h.tracer = t }
}

// NewAddEvent returns a handler storing events under root through engine.
func NewAddEvent(root string, engine types.Engine, opts ...Option) *AddEvent {
	h := &AddEvent{
		root:   root,
		engine: engine,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AddEvent) Type() protocol.MessageType {
	return protocol.TypeEADD
}

// Handle decodes and validates the request before any table is opened. Every
// returned error carries a status code.
func (h *AddEvent) Handle(ctx context.Context, hdr protocol.Header, body io.Reader) (err error) {
	ctx, span := h.tracer.Start(ctx, "EADD")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status.CodeOf(err).String())
		}
		span.End()
	}()

	raw, err := protocol.ReadBody(body, hdr)
	if err != nil {
		return status.Wrap(status.InvalidRequest, "truncated request body", err)
	}

	req := protocol.AcquireAddEventRequest()
	defer req.Release()

	if err := protocol.DecodeAddEvent(raw, req); err != nil {
		return status.Wrap(status.InvalidRequest, "malformed request body", err)
	}
	if h.root == "" {
		return status.New(status.InvalidRequest, "server root path is not configured")
	}
	if err := req.Validate(); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.String("skyd.database", req.Database),
		attribute.String("skyd.table", req.Table),
		attribute.Int64("skyd.object_id", req.ObjectID),
	)

	err = session.With(ctx, h.engine, h.root, req.Database, req.Table, func(s *session.Session) error {
		return h.add(ctx, s.Table, req)
	})
	if err != nil {
		var serr *status.Error
		if !errors.As(err, &serr) {
			return status.Wrap(status.StorageFailure, "table session failed", err)
		}
		return err
	}

	h.logger.DebugContext(ctx, "event added",
		"database", req.Database,
		"table", req.Table,
		"object_id", req.ObjectID,
		"timestamp", req.Timestamp,
	)
	return nil
}

// eventTable is the part of a table the pipeline needs.
type eventTable interface {
	types.ActionResolver
	types.PropertyResolver
	types.EventAppender
}

func (h *AddEvent) add(ctx context.Context, t eventTable, req *protocol.AddEventRequest) error {
	var actionID int64
	if req.Action != nil {
		action, err := t.ActionByName(ctx, *req.Action)
		if errors.Is(err, types.ErrNotFound) {
			return status.Errorf(status.NotFound, "action %q does not exist", *req.Action)
		}
		if err != nil {
			return status.Wrap(status.StorageFailure, "resolve action", err)
		}
		actionID = action.ID
	}

	event := types.NewEvent(req.Timestamp, req.ObjectID, actionID)

	for _, pair := range req.Data {
		value, dataType, err := types.NormalizeValue(pair.Value)
		if err != nil {
			return status.Wrap(status.InvalidRequest, fmt.Sprintf("data %q", pair.Key), err)
		}
		prop, err := t.FindOrCreateProperty(ctx, pair.Key, dataType)
		if err != nil {
			return status.Wrap(status.StorageFailure, fmt.Sprintf("resolve property %q", pair.Key), err)
		}
		value, err = types.Coerce(value, dataType, prop.DataType)
		if err != nil {
			return status.Wrap(status.InvalidRequest, fmt.Sprintf("data %q", pair.Key), err)
		}
		event.Set(prop.ID, value)
	}

	if err := t.AppendEvent(ctx, event); err != nil {
		return status.Wrap(status.StorageFailure, "commit event", err)
	}
	return nil
}
