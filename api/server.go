// Package api exposes the dispatch state and the player commands over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kilianp07/regiondispatch/core/calllog"
	"github.com/kilianp07/regiondispatch/core/dispatch"
	"github.com/kilianp07/regiondispatch/core/model"
)

// Dispatcher is the engine surface used by the handlers.
type Dispatcher interface {
	GetCallList(p model.Priority) []model.CallInfo
	GetCallCount() int
	QueueDepth() map[model.Priority]int
	CallInfo(id int64) (model.CallInfo, bool)
	Units() []model.UnitInfo
	RequestCallInfo(scenario string, pos model.Position) (model.CallInfo, error)
	InvokeCalloutForPlayer() (model.CallInfo, error)
	InvokeNextCalloutForPlayer() error
	AcceptCall() (model.CallInfo, error)
	DeclineCall() (model.CallInfo, error)
	Call(id int64) *dispatch.Call
	EscalateCall(c *dispatch.Call, p model.Priority) error
	Unit(id string) *dispatch.Unit
	SetUnitStatus(u *dispatch.Unit, s model.UnitStatus) error
}

// Server serves the status API.
type Server struct {
	dispatcher Dispatcher
	history    calllog.Store
	log        zerolog.Logger
	validate   *validator.Validate
	startedAt  time.Time
}

// New returns a server for d. history may be nil when no call log is kept.
func New(d Dispatcher, history calllog.Store, log zerolog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("dispatcher cannot be nil")
	}
	return &Server{
		dispatcher: d,
		history:    history,
		log:        log,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		startedAt:  time.Now().UTC(),
	}, nil
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("api shutdown")
		}
	}()
	s.log.Info().Str("addr", addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
