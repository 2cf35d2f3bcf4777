// file: cmd/mcpserve/commands_test.go
package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dkoosis/mcpserve/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mcpserve "+Version)
}

func TestToolsCommand(t *testing.T) {
	out, err := execute(t, "tools", "--root", t.TempDir())
	require.NoError(t, err)

	var listing struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
		Resources []struct {
			URITemplate string `json:"uriTemplate"`
		} `json:"resources"`
		Prompts []struct {
			Name string `json:"name"`
		} `json:"prompts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))

	var names []string
	for _, tool := range listing.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"echo", "read_file", "list_directory"}, names)
	require.Len(t, listing.Resources, 1)
	assert.Equal(t, "file:///{path}", listing.Resources[0].URITemplate)
	require.Len(t, listing.Prompts, 1)
	assert.Equal(t, "summarize_file", listing.Prompts[0].Name)
}

func TestConfigFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcpserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  page_size: 0\n"), 0o600))

	_, err := execute(t, "tools", "--config", path)
	assert.ErrorContains(t, err, "page_size")

	_, err = execute(t, "tools", "--log-level", "loud")
	assert.ErrorContains(t, err, "logging.level")

	_, err = execute(t, "tools", "--root", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestMetricsMux(t *testing.T) {
	collector := metrics.NewMetricsCollector(4)
	collector.RecordRequest("ping", metrics.OutcomeOK, 0)
	srv := httptest.NewServer(newMetricsMux(collector))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "mcpserve_requests_total")

	resp, err = http.Get(srv.URL + "/debug/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	var summary metrics.ServerMetrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.TotalRequests)
}
