package mcp

import "github.com/mark3labs/mcp-go/mcp"

var currentToolDef = mcp.NewTool("status_current",
	mcp.WithDescription("Return the current seat availability snapshot, the previous reading, and the change they imply."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyToolDef = mcp.NewTool("status_history",
	mcp.WithDescription("List recent valid readings, newest first. Error snapshots are never part of history."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum entries to return (default 10, max 50)"),
		mcp.Min(1),
		mcp.Max(50),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var changeToolDef = mcp.NewTool("status_change",
	mcp.WithDescription("Report whether the latest reading is a notifiable change (seats opened up or increased) and render the issue it would raise."),
	mcp.WithReadOnlyHintAnnotation(true),
)
