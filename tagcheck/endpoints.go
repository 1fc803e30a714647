package tagcheck

import (
	"context"
	"errors"
	"net/http"

	"github.com/hazyhaar/tagqa/kit"
	"github.com/hazyhaar/tagqa/tagcheck/internal/airtable"
	"github.com/hazyhaar/tagqa/tagcheck/internal/browser"
	"github.com/hazyhaar/tagqa/tagcheck/internal/history"
	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
)

type urlReq struct {
	URL string `json:"url"`
}

type runIDReq struct {
	RunID string `json:"run_id"`
}

// Transport-neutral endpoints shared by the HTTP routes and the MCP tools.

func (s *Service) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name))(ep)
}

func (s *Service) examineEndpoint() kit.Endpoint {
	return s.endpoint("examine", func(ctx context.Context, req any) (any, error) {
		return s.RunExamination(ctx, *req.(*ExaminationRequest))
	})
}

func (s *Service) monitorEndpoint() kit.Endpoint {
	return s.endpoint("monitor", func(ctx context.Context, req any) (any, error) {
		return s.RunMonitor(ctx, *req.(*MonitorRequest))
	})
}

func (s *Service) containersEndpoint() kit.Endpoint {
	return s.endpoint("containers", func(ctx context.Context, req any) (any, error) {
		ids, err := s.Containers(ctx, req.(*urlReq).URL)
		if err != nil {
			return nil, err
		}
		return map[string]any{"containers": ids}, nil
	})
}

func (s *Service) monitorRunEndpoint() kit.Endpoint {
	return s.endpoint("monitor_run", func(ctx context.Context, req any) (any, error) {
		return s.MonitorRun(ctx, req.(*runIDReq).RunID)
	})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var storeErr *airtable.StoreError
	var stepErr *recording.UnknownStepError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound), errors.Is(err, recording.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &stepErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, browser.ErrCollection), errors.As(err, &storeErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
