package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/fhir"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct{}

func (stubFetcher) GetPatient(_ context.Context, id string) (*fhir.Patient, error) {
	if id == "missing" {
		return nil, &fhir.RequestError{StatusCode: http.StatusNotFound, Message: "FHIR API error: 404"}
	}
	return &fhir.Patient{ResourceType: fhir.ResourceTypePatient, ID: id}, nil
}

func (stubFetcher) GetLabResults(context.Context, string) (*fhir.Bundle[fhir.Observation], error) {
	return &fhir.Bundle[fhir.Observation]{}, nil
}

func (stubFetcher) GetVitalSigns(context.Context, string) (*fhir.Bundle[fhir.Observation], error) {
	return &fhir.Bundle[fhir.Observation]{}, nil
}

func (stubFetcher) GetMedications(context.Context, string) (*fhir.Bundle[fhir.MedicationRequest], error) {
	return &fhir.Bundle[fhir.MedicationRequest]{}, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "Failed to create listener")
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func testConfig(mode config.ServerMode, port int) *config.Config {
	return &config.Config{
		FHIR: config.FHIRConfig{PatientID: "p1"},
		Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    port,
			Mode:    mode,
			Name:    "fhir-chart",
			Version: "test",
		},
	}
}

// startServer runs srv until the test ends and waits for its port to accept.
func startServer(t *testing.T, srv *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", srv.addr())
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, stubFetcher{})
	assert.Error(t, err)

	_, err = NewServer(testConfig(config.ServerModeSTDIO, 0), nil)
	assert.Error(t, err)
}

func TestServer_SSE(t *testing.T) {
	srv, err := NewServer(testConfig(config.ServerModeSSE, freePort(t)), stubFetcher{})
	require.NoError(t, err)
	startServer(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sseClient, err := client.NewSSEMCPClient("http://" + srv.addr() + "/sse")
	require.NoError(t, err, "Failed to create SSE client")
	defer sseClient.Close()
	require.NoError(t, sseClient.Start(ctx), "Failed to start client")

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test-client", Version: "1.0.0"}
	initResult, err := sseClient.Initialize(ctx, initReq)
	require.NoError(t, err, "Failed to initialize client")
	assert.Equal(t, "fhir-chart", initResult.ServerInfo.Name)

	t.Run("list tools", func(t *testing.T) {
		tools, err := sseClient.ListTools(ctx, mcp.ListToolsRequest{})
		require.NoError(t, err)

		var names []string
		for _, tool := range tools.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"get_patient", "get_lab_results", "get_vital_signs", "get_medications"}, names)
	})

	t.Run("call tool", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Name = "get_patient"
		res, err := sseClient.CallTool(ctx, req)
		require.NoError(t, err)
		require.False(t, res.IsError)
		require.Len(t, res.Content, 1)
		text, ok := res.Content[0].(mcp.TextContent)
		require.True(t, ok)
		assert.JSONEq(t, `{"resourceType":"Patient","id":"p1"}`, text.Text)
	})

	t.Run("tool error", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Name = "get_patient"
		req.Params.Arguments = map[string]interface{}{"patient_id": "missing"}
		res, err := sseClient.CallTool(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})
}

func TestServer_HTTPRequiresToken(t *testing.T) {
	cfg := testConfig(config.ServerModeHTTP, freePort(t))
	cfg.Server.AuthToken = "s3cret"
	srv, err := NewServer(cfg, stubFetcher{})
	require.NoError(t, err)
	startServer(t, srv)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`
	post := func(token string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, "http://"+srv.addr()+"/mcp", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, post("").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post("wrong").StatusCode)
	assert.Equal(t, http.StatusOK, post("s3cret").StatusCode)
}

func TestServer_STDIO(t *testing.T) {
	srv, err := NewServer(testConfig(config.ServerModeSTDIO, 0), stubFetcher{})
	require.NoError(t, err)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	srv.stdin = inR
	srv.stdout = outW

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	requests := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_patient","arguments":{"patient_id":"p7"}}}`,
	}
	go func() {
		for _, r := range requests {
			_, _ = fmt.Fprintln(inW, r)
		}
	}()

	type rpcResponse struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	responses := map[int]rpcResponse{}
	scanner := bufio.NewScanner(outR)
	for len(responses) < len(requests) && scanner.Scan() {
		var resp rpcResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses[resp.ID] = resp
	}

	require.Contains(t, responses, 2)
	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(responses[2].Result, &result))
	assert.False(t, result.IsError)

	cancel()
	_ = inW.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
	_ = outR.Close()
}

func TestServer_ContextCancellation(t *testing.T) {
	srv, err := NewServer(testConfig(config.ServerModeHTTP, freePort(t)), stubFetcher{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err, "Server should shut down gracefully")
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
}

func TestServer_UnsupportedMode(t *testing.T) {
	srv, err := NewServer(testConfig("carrier-pigeon", 0), stubFetcher{})
	require.NoError(t, err)
	assert.ErrorContains(t, srv.Start(context.Background()), "unsupported server mode")
}
