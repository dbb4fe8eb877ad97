package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camerad/internal/api/models"
)

func (s *Server) registerDriverRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-drivers",
		Method:      http.MethodGet,
		Path:        "/api/drivers",
		Summary:     "List Drivers",
		Description: "List registered camera drivers",
		Tags:        []string{"drivers"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.DriverListResponse, error) {
		return &models.DriverListResponse{
			Body: models.DriverListData{Drivers: s.manager.Drivers()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-driver-devices",
		Method:      http.MethodGet,
		Path:        "/api/drivers/{driver}/devices",
		Summary:     "List Devices",
		Description: "Enumerate the devices a driver can currently open",
		Tags:        []string{"drivers"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.DriverInput) (*models.DeviceListResponse, error) {
		driver, err := s.manager.Driver(input.Driver)
		if err != nil {
			return nil, mapCameraError(err)
		}
		devices, err := driver.Devices()
		if err != nil {
			s.logger.Warn("Device enumeration failed", "driver", input.Driver, "error", err)
			return nil, huma.Error500InternalServerError("device enumeration failed", err)
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{
				Driver:  input.Driver,
				Devices: devices,
				Count:   len(devices),
			},
		}, nil
	})
}
