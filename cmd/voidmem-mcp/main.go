// voidmem-mcp exposes a Void Dynamics memory manager as MCP tools:
// register_chunks, reinforce, degrade, top, stats, register_engram, and
// save_snapshot. It follows the tool-registration idiom of the teacher's
// cmd/efficient-notion-mcp/main.go, but wraps an in-process
// internal/voidmem.Manager instead of an external API client.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/voidmem/internal/voidconfig"
	"github.com/vthunder/voidmem/internal/voidmem"
)

var (
	managerMu sync.Mutex
	manager   *voidmem.Manager
	snapPath  = os.Getenv("VOIDMEM_SNAPSHOT_PATH")
)

func loadManager() (*voidmem.Manager, error) {
	cfg := voidconfig.Defaults()
	if snapPath != "" {
		if m := voidmem.LoadJSON(snapPath, cfg); m != nil {
			return m, nil
		}
	}
	cfg.ThreadSafe = true
	return voidmem.New(cfg)
}

func main() {
	envPaths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		envPaths = append([]string{
			filepath.Join(filepath.Dir(exeDir), ".env"),
			filepath.Join(exeDir, ".env"),
		}, envPaths...)
	}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}

	m, err := loadManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-mcp: failed to initialise manager: %v\n", err)
		os.Exit(1)
	}
	manager = m

	s := server.NewMCPServer(
		"voidmem-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.AddTool(registerChunksTool(), handleRegisterChunks)
	s.AddTool(reinforceTool(), handleReinforce)
	s.AddTool(degradeTool(), handleDegrade)
	s.AddTool(topTool(), handleTop)
	s.AddTool(statsTool(), handleStats)
	s.AddTool(registerEngramTool(), handleRegisterEngram)
	s.AddTool(saveSnapshotTool(), handleSaveSnapshot)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-mcp: server error: %v\n", err)
		os.Exit(1)
	}
}

func registerChunksTool() mcp.Tool {
	return mcp.NewTool("register_chunks",
		mcp.WithDescription("Register new memory chunks. If ids is omitted, ids are generated. texts is required and must be non-empty."),
		mcp.WithArray("ids", mcp.Description("Optional explicit ids, one per text")),
		mcp.WithArray("texts", mcp.Required(), mcp.Description("Raw text for each chunk")),
	)
}

func handleRegisterChunks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	texts := stringSlice(args["texts"])
	if len(texts) == 0 {
		return mcp.NewToolResultError("texts is required and must be non-empty"), nil
	}
	ids := stringSlice(args["ids"])
	if len(ids) == 0 {
		ids = make([]string, len(texts))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
	}
	if len(ids) != len(texts) {
		return mcp.NewToolResultError("ids and texts must have the same length"), nil
	}

	managerMu.Lock()
	err := manager.RegisterChunks(ids, texts, nil, nil)
	managerMu.Unlock()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("register_chunks failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("registered %d chunk(s): %v", len(ids), ids)), nil
}

func reinforceTool() mcp.Tool {
	return mcp.NewTool("reinforce",
		mcp.WithDescription("Reinforce memories with row-aligned ids and cosine distances. ids and distances must have matching row/column shapes."),
		mcp.WithArray("ids", mcp.Required(), mcp.Description("Array of arrays of ids")),
		mcp.WithArray("distances", mcp.Required(), mcp.Description("Array of arrays of distances, same shape as ids")),
		mcp.WithNumber("heat_gain", mcp.Description("Heat added per reinforced trace (default 1.0)")),
		mcp.WithNumber("ttl_boost", mcp.Description("TTL floor applied to reinforced traces (default 100)")),
	)
}

func handleReinforce(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ids, err := stringMatrix(args["ids"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ids: %v", err)), nil
	}
	distances, err := floatMatrix(args["distances"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("distances: %v", err)), nil
	}

	heatGain := 1.0
	if v, ok := args["heat_gain"].(float64); ok {
		heatGain = v
	}
	ttlBoost := 100
	if v, ok := args["ttl_boost"].(float64); ok {
		ttlBoost = int(v)
	}

	managerMu.Lock()
	err = manager.Reinforce(ids, distances, heatGain, ttlBoost)
	managerMu.Unlock()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reinforce failed: %v", err)), nil
	}
	return mcp.NewToolResultText("reinforcement applied"), nil
}

func degradeTool() mcp.Tool {
	return mcp.NewTool("degrade",
		mcp.WithDescription("Degrade memories by clamping their TTL and nudging boredom upward."),
		mcp.WithArray("ids", mcp.Required(), mcp.Description("Ids to degrade")),
		mcp.WithNumber("ttl_floor", mcp.Required(), mcp.Description("Maximum TTL to clamp affected memories to")),
	)
}

func handleDegrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	ids := stringSlice(args["ids"])
	ttlFloor, _ := args["ttl_floor"].(float64)

	managerMu.Lock()
	err := manager.Degrade(ids, int(ttlFloor))
	managerMu.Unlock()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("degrade failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("degraded %d id(s)", len(ids))), nil
}

func topTool() mcp.Tool {
	return mcp.NewTool("top",
		mcp.WithDescription("Return the top-k memories by composite score."),
		mcp.WithNumber("k", mcp.Description("Number of results, clamped to [1,100] (default 10)")),
	)
}

func handleTop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	k := 10
	if v, ok := args["k"].(float64); ok {
		k = int(v)
	}

	managerMu.Lock()
	scored := manager.Top(k)
	managerMu.Unlock()

	out := ""
	for _, s := range scored {
		out += fmt.Sprintf("%s\t%.6f\n", s.ID, s.Score)
	}
	if out == "" {
		out = "(no memories)"
	}
	return mcp.NewToolResultText(out), nil
}

func statsTool() mcp.Tool {
	return mcp.NewTool("stats", mcp.WithDescription("Return aggregate store statistics."))
}

func handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	managerMu.Lock()
	stats := manager.Stats()
	managerMu.Unlock()

	return mcp.NewToolResultText(fmt.Sprintf(
		"count=%d avg_confidence=%.4f avg_novelty=%.4f avg_boredom=%.4f avg_mass=%.4f",
		stats.Count, stats.AvgConfidence, stats.AvgNovelty, stats.AvgBoredom, stats.AvgMass,
	)), nil
}

func registerEngramTool() mcp.Tool {
	return mcp.NewTool("register_engram",
		mcp.WithDescription("Register a condensed summary engram covering surviving member ids."),
		mcp.WithString("summary_id", mcp.Required(), mcp.Description("Id for the new engram")),
		mcp.WithArray("member_ids", mcp.Required(), mcp.Description("Ids the engram summarises")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Summary text")),
	)
}

func handleRegisterEngram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	summaryID, _ := args["summary_id"].(string)
	text, _ := args["text"].(string)
	memberIDs := stringSlice(args["member_ids"])

	managerMu.Lock()
	ok := manager.RegisterEngram(summaryID, memberIDs, text)
	managerMu.Unlock()
	if !ok {
		return mcp.NewToolResultError("register_engram: fewer than two members survive in the live store"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("registered engram %s over %d member(s)", summaryID, len(memberIDs))), nil
}

func saveSnapshotTool() mcp.Tool {
	return mcp.NewTool("save_snapshot",
		mcp.WithDescription("Persist the manager's current state to VOIDMEM_SNAPSHOT_PATH (or the given path)."),
		mcp.WithString("path", mcp.Description("Override snapshot path for this save")),
	)
}

func handleSaveSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]any)
	path, _ := args["path"].(string)
	if path == "" {
		path = snapPath
	}
	if path == "" {
		return mcp.NewToolResultError("no snapshot path configured (set VOIDMEM_SNAPSHOT_PATH or pass path)"), nil
	}

	managerMu.Lock()
	ok := manager.SaveJSON(path)
	managerMu.Unlock()
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save snapshot to %s", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("snapshot saved to %s", path)), nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMatrix(v any) ([][]string, error) {
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of arrays")
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = stringSlice(row)
	}
	return out, nil
}

func floatMatrix(v any) ([][]float64, error) {
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of arrays")
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		items, ok := row.([]any)
		if !ok {
			continue
		}
		vals := make([]float64, 0, len(items))
		for _, item := range items {
			if f, ok := item.(float64); ok {
				vals = append(vals, f)
			}
		}
		out[i] = vals
	}
	return out, nil
}
