package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/stream"
	"github.com/xkilldash9x/scalpel-dispatch/internal/supervisor"
	"github.com/xkilldash9x/scalpel-dispatch/internal/validation"
)

// Version is reported by /version.
const Version = "v0.1"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondWithStatus(w, http.StatusOK, schemas.NewStatusOK(s.now()))
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.respondWithStatus(w, http.StatusOK, schemas.VersionResponse{Version: Version})
}

// handleInit bootstraps a session against the posted cdp_url and closes it
// again. It only checks connectivity; no command is run.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := s.requestLogger(r)

	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	cdpURL, err := validation.ParseInitRequest(body)
	if err != nil {
		return err
	}

	session, release, err := s.openSession(ctx, schemas.SessionOptions{
		ModelName: s.cfg.LLM.DefaultModel,
		CDPURL:    cdpURL,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	s.closeSession(ctx, session, release)

	log.Info("Session initialized.", zap.String("cdp_url", cdpURL))
	s.respondWithStatus(w, http.StatusOK, schemas.NewStatusOK(s.now()))
	return nil
}

// handleTest runs the full lifecycle and streams it. Only failures that occur
// before the stream exists are returned; everything else ends the stream.
func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := s.requestLogger(r)

	em, err := stream.New(w, log)
	if err != nil {
		return &schemas.InternalError{Err: err}
	}
	supervisor.OnAbort(ctx, func(err error) { _ = em.Fail(err) })

	body, err := s.readBody(w, r)
	if err != nil {
		_ = em.Fail(err)
		return nil
	}
	req, err := validation.ParseRequestWithDefault(body, s.cfg.LLM.DefaultModel)
	if err != nil {
		log.Info("Rejected invalid request.", zap.Error(err))
		_ = em.Fail(err)
		return nil
	}

	session, release, err := s.openSession(ctx, schemas.SessionOptions{
		ModelName: req.ModelName,
		CDPURL:    req.CDPURL,
		Logger:    log,
	})
	if err != nil {
		_ = em.Fail(err)
		return nil
	}
	defer s.closeSession(ctx, session, release)

	result, err := s.dispatcher.Execute(ctx, session, req, em)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Client went away before the command finished.", zap.String("session_id", session.ID()))
		}
		_ = em.Fail(err)
		return nil
	}
	_ = em.Answer(result)
	return nil
}

// openSession reserves capacity and bootstraps a session. The returned release
// must be handed to closeSession.
func (s *Server) openSession(ctx context.Context, opts schemas.SessionOptions) (schemas.AutomationSession, func(), error) {
	release, err := s.acquireSession(ctx)
	if err != nil {
		return nil, nil, &schemas.InitError{CDPURL: opts.CDPURL, Err: fmt.Errorf("waiting for a session slot: %w", err)}
	}

	session, err := s.bootstrapper.Init(ctx, opts)
	if s.metrics != nil {
		s.metrics.RecordSessionInit(err)
	}
	if err != nil {
		release()
		var initErr *schemas.InitError
		if !errors.As(err, &initErr) {
			err = &schemas.InitError{CDPURL: opts.CDPURL, Err: err}
		}
		return nil, nil, err
	}
	return session, release, nil
}

// closeSession tears the session down even when the request was cancelled.
func (s *Server) closeSession(ctx context.Context, session schemas.AutomationSession, release func()) {
	defer release()
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
	defer cancel()

	if err := session.Close(closeCtx); err != nil {
		s.logger.Warn("Failed to close session.", zap.String("session_id", session.ID()), zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
}

// readBody reads at most server.max_body_bytes of the request body.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &schemas.ValidationError{Fields: []schemas.FieldError{
				{Field: "body", Message: fmt.Sprintf("must not exceed %d bytes", tooLarge.Limit)},
			}}
		}
		return nil, &schemas.ValidationError{Fields: []schemas.FieldError{
			{Field: "body", Message: "could not be read"},
		}}
	}
	return body, nil
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))
}

// respondWithStatus sends a JSON response.
func (s *Server) respondWithStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	supervisor.WriteJSON(w, statusCode, data, s.logger)
}
