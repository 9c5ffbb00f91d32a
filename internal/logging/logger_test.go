package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readCategoryLog returns the contents of the log file for a category, or ""
// if none was written.
func readCategoryLog(t *testing.T, workspace string, category Category) string {
	t.Helper()
	dir := filepath.Join(workspace, ".canvas", "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_"+string(category)+".log") {
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			return string(data)
		}
	}
	return ""
}

func TestInitializeRequiresWorkspace(t *testing.T) {
	assert.Error(t, Initialize("", Config{}))
}

func TestProductionModeIsNoOp(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Config{DebugMode: false}))
	t.Cleanup(CloseAll)

	Pipeline("should go nowhere: %d", 42)
	Get(CategoryServer).Error("also nowhere")

	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategoryPipeline))
	_, err := os.Stat(filepath.Join(ws, ".canvas", "logs"))
	assert.True(t, os.IsNotExist(err))
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Config{DebugMode: true, Level: "debug"}))
	t.Cleanup(CloseAll)

	Pipeline("processed %d blocks", 3)
	BrowserWarn("slow navigation")

	assert.Contains(t, readCategoryLog(t, ws, CategoryPipeline), "processed 3 blocks")
	assert.Contains(t, readCategoryLog(t, ws, CategoryBrowser), "[WARN] slow navigation")
	assert.Contains(t, readCategoryLog(t, ws, CategoryBoot), "logging initialized")
}

func TestCategoryFiltering(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Config{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"store": false},
	}))
	t.Cleanup(CloseAll)

	assert.False(t, IsCategoryEnabled(CategoryStore))
	assert.True(t, IsCategoryEnabled(CategoryPipeline))

	Store("hidden")
	assert.Equal(t, "", readCategoryLog(t, ws, CategoryStore))
}

func TestLevelFiltering(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Config{DebugMode: true, Level: "error"}))
	t.Cleanup(CloseAll)

	l := Get(CategoryServer)
	l.Info("informational noise")
	l.Error("something broke")

	content := readCategoryLog(t, ws, CategoryServer)
	assert.NotContains(t, content, "informational noise")
	assert.Contains(t, content, "[ERROR] something broke")
}

func TestJSONFormat(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Config{DebugMode: true, Level: "debug", JSONFormat: true}))
	t.Cleanup(CloseAll)

	Pipeline("block %s ok", "graph")

	content := readCategoryLog(t, ws, CategoryPipeline)
	line := ""
	for _, l := range strings.Split(strings.TrimSpace(content), "\n") {
		if strings.Contains(l, "block graph ok") {
			line = l
			break
		}
	}
	require.NotEmpty(t, line)

	var rec entry
	idx := strings.Index(line, "{")
	require.GreaterOrEqual(t, idx, 0)
	require.NoError(t, json.Unmarshal([]byte(line[idx:]), &rec))
	assert.Equal(t, "pipeline", rec.Category)
	assert.Equal(t, "INFO", rec.Level)
	assert.Equal(t, "block graph ok", rec.Message)
}

func TestTimer(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Initialize(ws, Config{DebugMode: true, Level: "debug"}))
	t.Cleanup(CloseAll)

	timer := StartTimer(CategoryPipeline, "render block")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()
	assert.Greater(t, elapsed, time.Duration(0))

	slow := StartTimer(CategoryPipeline, "slow op")
	time.Sleep(2 * time.Millisecond)
	slow.StopWithThreshold(time.Nanosecond)

	content := readCategoryLog(t, ws, CategoryPipeline)
	assert.Contains(t, content, "render block completed in")
	assert.Contains(t, content, "[WARN] slow op took")
}
