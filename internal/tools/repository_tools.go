package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sensebridge/sensebridge/internal/repository"
)

// AppSummary is the trimmed app record the tools return.
type AppSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Stream      string `json:"stream,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Published   bool   `json:"published"`
	LastReload  string `json:"last_reload,omitempty"`
	Description string `json:"description,omitempty"`
}

func summarize(a repository.App) AppSummary {
	out := AppSummary{
		ID:          a.ID,
		Name:        a.Name,
		Published:   a.Published,
		Description: a.Description,
	}
	if a.Stream != nil {
		out.Stream = a.Stream.Name
	}
	if a.Owner.Name != "" {
		out.Owner = a.Owner.Name
	} else if a.Owner.UserID != "" {
		out.Owner = a.Owner.UserDirectory + "\\" + a.Owner.UserID
	}
	if !a.LastReload.IsZero() {
		out.LastReload = a.LastReload.Format("2006-01-02 15:04:05")
	}
	return out
}

type getAppsIn struct {
	Filter string `json:"filter,omitempty" jsonschema:"optional repository filter expression, e.g. name eq 'Sales'"`
}

type getAppsOut struct {
	Apps  []AppSummary `json:"apps"`
	Total int          `json:"total"`
}

func (s *Service) getApps(ctx context.Context, _ *mcp.CallToolRequest, in getAppsIn) (*mcp.CallToolResult, getAppsOut, error) {
	cacheKey := "apps:" + in.Filter
	apps, ok := s.appsCache.Get(cacheKey)
	if !ok {
		var err error
		apps, err = s.repo.Apps(ctx, in.Filter)
		if err != nil {
			return nil, getAppsOut{}, err
		}
		s.appsCache.Set(cacheKey, apps)
	}
	out := getAppsOut{Total: len(apps)}
	for _, a := range apps {
		out.Apps = append(out.Apps, summarize(a))
	}
	return nil, out, nil
}

type appIDIn struct {
	AppID string `json:"app_id" jsonschema:"application id"`
}

type getAppDetailsOut struct {
	App      AppSummary `json:"app"`
	FileSize int64      `json:"file_size"`
	Created  string     `json:"created,omitempty"`
	Modified string     `json:"modified,omitempty"`
}

func (s *Service) getAppDetails(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getAppDetailsOut, error) {
	app, ok := s.appCache.Get(in.AppID)
	if !ok {
		var err error
		app, err = s.repo.AppByID(ctx, in.AppID)
		if err != nil {
			return nil, getAppDetailsOut{}, err
		}
		s.appCache.Set(in.AppID, app)
	}
	out := getAppDetailsOut{App: summarize(*app), FileSize: app.FileSize}
	if !app.Created.IsZero() {
		out.Created = app.Created.Format("2006-01-02 15:04:05")
	}
	if !app.Modified.IsZero() {
		out.Modified = app.Modified.Format("2006-01-02 15:04:05")
	}
	return nil, out, nil
}

type getAppMetadataOut struct {
	AppID    string          `json:"app_id"`
	Metadata json.RawMessage `json:"metadata"`
}

func (s *Service) getAppMetadata(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getAppMetadataOut, error) {
	meta, ok := s.metaCache.Get(in.AppID)
	if !ok {
		var err error
		meta, err = s.repo.AppMetadata(ctx, in.AppID)
		if err != nil {
			return nil, getAppMetadataOut{}, err
		}
		s.metaCache.Set(in.AppID, meta)
	}
	return nil, getAppMetadataOut{AppID: in.AppID, Metadata: meta}, nil
}

type getUsersIn struct {
	Filter string `json:"filter,omitempty" jsonschema:"optional repository filter expression"`
}

type getUsersOut struct {
	Users []repository.User `json:"users"`
	Total int               `json:"total"`
}

func (s *Service) getUsers(ctx context.Context, _ *mcp.CallToolRequest, in getUsersIn) (*mcp.CallToolResult, getUsersOut, error) {
	users, err := s.repo.Users(ctx, in.Filter)
	if err != nil {
		return nil, getUsersOut{}, err
	}
	return nil, getUsersOut{Users: users, Total: len(users)}, nil
}

type emptyIn struct{}

type getStreamsOut struct {
	Streams []repository.Stream `json:"streams"`
}

func (s *Service) getStreams(ctx context.Context, _ *mcp.CallToolRequest, _ emptyIn) (*mcp.CallToolResult, getStreamsOut, error) {
	streams, ok := s.streamsCache.Get("streams")
	if !ok {
		var err error
		streams, err = s.repo.Streams(ctx)
		if err != nil {
			return nil, getStreamsOut{}, err
		}
		s.streamsCache.Set("streams", streams)
	}
	return nil, getStreamsOut{Streams: streams}, nil
}

// TaskSummary is the trimmed reload-task record.
type TaskSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	AppID         string `json:"app_id,omitempty"`
	AppName       string `json:"app_name,omitempty"`
	NextExecution string `json:"next_execution,omitempty"`
}

type getTasksOut struct {
	Tasks []TaskSummary `json:"tasks"`
	Total int           `json:"total"`
}

func (s *Service) getTasks(ctx context.Context, _ *mcp.CallToolRequest, _ emptyIn) (*mcp.CallToolResult, getTasksOut, error) {
	tasks, err := s.repo.Tasks(ctx)
	if err != nil {
		return nil, getTasksOut{}, err
	}
	out := getTasksOut{Total: len(tasks)}
	for _, t := range tasks {
		ts := TaskSummary{ID: t.ID, Name: t.Name, Enabled: t.Enabled}
		if t.App != nil {
			ts.AppID = t.App.ID
			ts.AppName = t.App.Name
		}
		if !t.Status.NextExecution.IsZero() {
			ts.NextExecution = t.Status.NextExecution.Format("2006-01-02 15:04:05")
		}
		out.Tasks = append(out.Tasks, ts)
	}
	return nil, out, nil
}

type startTaskIn struct {
	TaskID string `json:"task_id" jsonschema:"reload task id"`
}

type startTaskOut struct {
	Started bool   `json:"started"`
	TaskID  string `json:"task_id"`
}

func (s *Service) startTask(ctx context.Context, _ *mcp.CallToolRequest, in startTaskIn) (*mcp.CallToolResult, startTaskOut, error) {
	if err := s.repo.StartTask(ctx, in.TaskID); err != nil {
		return nil, startTaskOut{}, err
	}
	return nil, startTaskOut{Started: true, TaskID: in.TaskID}, nil
}

type getConnectionsOut struct {
	Connections []repository.DataConnection `json:"connections"`
	Total       int                         `json:"total"`
}

func (s *Service) getDataConnections(ctx context.Context, _ *mcp.CallToolRequest, _ emptyIn) (*mcp.CallToolResult, getConnectionsOut, error) {
	conns, err := s.repo.DataConnections(ctx)
	if err != nil {
		return nil, getConnectionsOut{}, err
	}
	return nil, getConnectionsOut{Connections: conns, Total: len(conns)}, nil
}
