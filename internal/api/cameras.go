package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camerad/internal/api/models"
	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/manager"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "List open cameras with their state, negotiated spec and counters",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		infos := s.manager.List()
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: infos, Count: len(infos)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}",
		Summary:     "Get Camera",
		Description: "Get the state, negotiated spec and counters of one camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		session, err := s.manager.Get(input.ID)
		if err != nil {
			return nil, mapCameraError(err)
		}
		return &models.CameraResponse{Body: session.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/start",
		Summary:     "Start Camera",
		Description: "Start capture on an open camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409, 410, 502},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		return s.cameraAction(input.ID, s.manager.Start)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/stop",
		Summary:     "Stop Camera",
		Description: "Stop capture and release every queued frame",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409, 502},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		return s.cameraAction(input.ID, s.manager.Stop)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "reopen-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/reopen",
		Summary:     "Reopen Camera",
		Description: "Close the camera if open and open it again from its configured definition. Disconnected cameras recover this way.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409, 422, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIDInput) (*models.CameraResponse, error) {
		cfg, ok := s.manager.Desired()[input.ID]
		if !ok {
			return nil, huma.Error404NotFound("camera is not configured: " + input.ID)
		}
		if err := s.manager.Close(input.ID); err != nil && !errors.Is(err, manager.ErrCameraNotFound) {
			s.logger.Warn("Close before reopen failed", "camera", input.ID, "error", err)
		}
		session, err := s.manager.Open(ctx, input.ID, cfg)
		if err != nil {
			return nil, mapCameraError(err)
		}
		if cfg.Autostart {
			if err := session.Device.Start(); err != nil {
				return nil, mapCameraError(err)
			}
		}
		return &models.CameraResponse{Body: session.Info()}, nil
	})
}

func (s *Server) cameraAction(id string, action func(string) error) (*models.CameraResponse, error) {
	if err := action(id); err != nil {
		return nil, mapCameraError(err)
	}
	session, err := s.manager.Get(id)
	if err != nil {
		return nil, mapCameraError(err)
	}
	return &models.CameraResponse{Body: session.Info()}, nil
}

// mapCameraError converts manager and device errors to HTTP errors.
func mapCameraError(err error) error {
	switch {
	case errors.Is(err, manager.ErrCameraNotFound), errors.Is(err, manager.ErrUnknownDriver):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, manager.ErrCameraExists):
		return huma.Error409Conflict(err.Error(), err)
	}

	switch camera.CodeOf(err) {
	case camera.ErrCodeInvalidState, camera.ErrCodeInvalidMode, camera.ErrCodeInvalidFrame:
		return huma.Error409Conflict(err.Error(), err)
	case camera.ErrCodeDisconnected:
		return huma.Error410Gone(err.Error(), err)
	case camera.ErrCodeUnsupportedFormat:
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case camera.ErrCodeDeviceUnavailable:
		return huma.Error503ServiceUnavailable(err.Error(), err)
	case camera.ErrCodeBackendFailure:
		return huma.Error502BadGateway(err.Error(), err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
