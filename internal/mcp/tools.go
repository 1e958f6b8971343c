package mcp

import (
	"context"
	"time"

	"github.com/claude/ironvow/internal/devotion"
	"github.com/claude/ironvow/internal/models"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 30 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -30)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List workout sessions in a time range with status, devotion score and grade."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get one session with all exercises, sets, seal and pillar breakdown."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolPreviewDevotion = mcp.NewTool("preview_devotion",
	mcp.WithDescription("Recompute the devotion score for a session against its plan as it stands now, without persisting anything. Works on active sessions too."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolAnalyzeRest = mcp.NewTool("analyze_rest",
	mcp.WithDescription("Describe the rest gap and plan continuity between a session and the previous finished one."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

// --- Tool handlers ---

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	sessions, err := h.db.ListSessions(ctx, uid, start, end)
	if err != nil {
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	sess, err := h.loadSession(ctx, req, uid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sess)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) previewDevotion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	sess, err := h.loadSession(ctx, req, uid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var plan *models.PlanSnapshot
	if sess.WorkoutID != nil {
		plan, err = h.db.PlanSnapshot(ctx, *sess.WorkoutID)
		if err != nil {
			return mcp.NewToolResultError("plan lookup failed: " + err.Error()), nil
		}
	}

	result, err := mcp.NewToolResultJSON(devotion.Score(sess, plan))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) analyzeRest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid := UserIDFromContext(ctx)

	sess, err := h.loadSession(ctx, req, uid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	prior, err := h.db.PreviousFinished(ctx, uid, sess.StartedAt, sess.ID)
	if err != nil {
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(h.analyzer.Analyze(prior, sess))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) loadSession(ctx context.Context, req mcp.CallToolRequest, uid int) (*models.Session, error) {
	idStr, err := req.RequireString("session_id")
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return h.db.GetSession(ctx, id, uid)
}
