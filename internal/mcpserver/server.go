// Package mcpserver exposes task management as MCP tools so assistants can
// create and inspect reminders.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"cuckoo/internal/reminder"
	"cuckoo/internal/services/tasks"
	logx "cuckoo/pkg/logx"
)

const serverName = "cuckoo"

type Server struct {
	mcp   *server.MCPServer
	tasks *tasks.Service
	log   logx.Logger
}

func New(svc *tasks.Service, version string, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		tasks: svc,
		log:   log.With(logx.String("comp", "mcp")),
		mcp:   server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server for transports.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error { return server.ServeStdio(s.mcp) }

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("add_task",
			mcp.WithDescription("Create a task with an optional reminder"),
			mcp.WithString("brief", mcp.Required(), mcp.Description("Short title shown in the notification")),
			mcp.WithString("detail", mcp.Description("Longer description")),
			mcp.WithString("device", mcp.Description("Device the task belongs to")),
			mcp.WithString("at", mcp.Description("First reminder time: RFC3339, 'YYYY-MM-DD HH:MM' in the server timezone, or unix seconds")),
			mcp.WithString("repeat_type", mcp.Description("Repeat pattern: daily, hourly, weekly, monthly, yearly, end_of_month, every_N_minutes|hours|days")),
			mcp.WithString("context", mcp.Description("Only remind while in this context")),
		),
		s.handleAddTask,
	)
	s.mcp.AddTool(
		mcp.NewTool("list_following",
			mcp.WithDescription("List upcoming reminders in firing order"),
			mcp.WithString("context", mcp.Description("Only reminders deliverable in this context")),
		),
		s.handleFollowing,
	)
	s.mcp.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Show a task with its reminder"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Task ID")),
		),
		s.handleGetTask,
	)
	s.mcp.AddTool(
		mcp.NewTool("delete_task",
			mcp.WithDescription("Delete a task and stop its reminder"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Task ID")),
		),
		s.handleDeleteTask,
	)
	s.mcp.AddTool(
		mcp.NewTool("set_task_state",
			mcp.WithDescription("Pause, resume or finish a task"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Task ID")),
			mcp.WithString("state", mcp.Required(), mcp.Enum(reminder.TaskActive, reminder.TaskPaused, reminder.TaskDone)),
		),
		s.handleSetState,
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError turns service errors into tool errors the model can read.
// Unexpected failures are also logged.
func (s *Server) toolError(op string, err error) *mcp.CallToolResult {
	if !tasks.IsInvalidInput(err) && !errors.Is(err, reminder.ErrNotFound) {
		s.log.Error("tool failed", logx.String("tool", op), logx.Err(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", op, err))
}

func taskID(req mcp.CallToolRequest) (int64, error) {
	id := req.GetFloat("id", 0)
	if id <= 0 || id != float64(int64(id)) {
		return 0, errors.New("id must be a positive integer")
	}
	return int64(id), nil
}

func (s *Server) handleAddTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	brief, err := req.RequireString("brief")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := tasks.NewTask{
		Brief:  brief,
		Detail: req.GetString("detail", ""),
		Device: req.GetString("device", ""),
	}
	if at := req.GetString("at", ""); at != "" {
		ts, err := tasks.ParseTime(at, s.tasks.Location())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		in.Remind = &tasks.RemindSpec{
			At:      ts,
			Repeat:  req.GetString("repeat_type", ""),
			Context: req.GetString("context", ""),
		}
	}
	v, err := s.tasks.Create(ctx, in)
	if err != nil {
		return s.toolError("add_task", err), nil
	}
	return jsonResult(v)
}

func (s *Server) handleFollowing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.tasks.Following(ctx, req.GetString("context", ""))
	if err != nil {
		return s.toolError("list_following", err), nil
	}
	if list == nil {
		list = []reminder.Upcoming{}
	}
	return jsonResult(list)
}

func (s *Server) handleGetTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := taskID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.tasks.Get(ctx, id)
	if err != nil {
		return s.toolError("get_task", err), nil
	}
	return jsonResult(v)
}

func (s *Server) handleDeleteTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := taskID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return s.toolError("delete_task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("task %d deleted", id)), nil
}

func (s *Server) handleSetState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := taskID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := req.RequireString("state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.tasks.SetState(ctx, id, state)
	if err != nil {
		return s.toolError("set_task_state", err), nil
	}
	return jsonResult(v)
}
