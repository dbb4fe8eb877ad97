// Package models holds the request and response shapes of the HTTP API.
package models

import (
	"github.com/smazurov/camerad/internal/camera"
	"github.com/smazurov/camerad/internal/logging"
	"github.com/smazurov/camerad/internal/manager"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int    `json:"cameras" example:"2" doc:"Number of open cameras"`
	Playing bool   `json:"playing" example:"true" doc:"Whether any camera is capturing"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Camera models
type CameraIDInput struct {
	ID string `path:"id" example:"front" doc:"Configured camera identifier"`
}

type CameraListData struct {
	Cameras []manager.SessionInfo `json:"cameras" doc:"Open cameras"`
	Count   int                   `json:"count" example:"2" doc:"Number of open cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

type CameraResponse struct {
	Body manager.SessionInfo
}

// Driver models
type DriverInput struct {
	Driver string `path:"driver" example:"v4l2" doc:"Driver name"`
}

type DriverListData struct {
	Drivers []string `json:"drivers" example:"[\"synthetic\",\"v4l2\"]" doc:"Registered driver names"`
}

type DriverListResponse struct {
	Body DriverListData
}

type DeviceListData struct {
	Driver  string              `json:"driver" example:"v4l2" doc:"Driver name"`
	Devices []camera.DeviceInfo `json:"devices" doc:"Devices currently present"`
	Count   int                 `json:"count" example:"1" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

// Log models
type LogQueryInput struct {
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100" doc:"Maximum number of entries"`
	Module string `query:"module" example:"capture" doc:"Only entries from this module"`
}

type LogListData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Recent log entries, oldest first"`
	Count   int                `json:"count" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}

type LogLevelInput struct {
	Body struct {
		Module string `json:"module,omitempty" example:"capture" doc:"Module to change; empty changes the global level"`
		Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}
