// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

package server_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simbridge/simbridge/internal/config"
	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/internal/plugin"
	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/internal/server"
	"github.com/simbridge/simbridge/internal/transport"
	"github.com/simbridge/simbridge/pkg/errutil"
)

type fakeBuilder struct {
	dir string
	err error

	mu    sync.Mutex
	roles []host.Role
}

func (b *fakeBuilder) Build(_ context.Context, role host.Role, _ *plugin.List) (plugin.List, error) {
	b.mu.Lock()
	b.roles = append(b.roles, role)
	b.mu.Unlock()
	if b.err != nil {
		return plugin.List{}, b.err
	}
	return plugin.List{}, os.WriteFile(b.ArtifactPath(role), []byte("// built "+role.String()), 0o600)
}

func (b *fakeBuilder) ArtifactPath(role host.Role) string {
	return filepath.Join(b.dir, role.String()+".js")
}

type staticPlugins struct{ list plugin.List }

func (s staticPlugins) Plugins() plugin.List { return s.list }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

type fixture struct {
	builder *fakeBuilder
	relay   *relay.Relay
	routes  server.Routes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	www := filepath.Join(root, "www")
	sim := filepath.Join(root, "sim-host")
	cam := filepath.Join(root, "plugins", "camera")
	writeFile(t, filepath.Join(www, "index.html"), "<html>app</html>")
	writeFile(t, filepath.Join(sim, "index.html"), "<html>sim</html>")
	writeFile(t, filepath.Join(cam, "sim-host-panels.html"), "<section>camera</section>")

	b := &fakeBuilder{dir: t.TempDir()}
	rl := relay.New()
	return &fixture{
		builder: b,
		relay:   rl,
		routes: server.Routes{
			Builder:      b,
			Plugins:      staticPlugins{list: plugin.NewList(plugin.Record{ID: "camera", Dir: cam})},
			Relay:        rl,
			PlatformRoot: www,
			SimHostRoot:  sim,
		},
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test server URL
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHandler_ArtifactRoutesBuildOnRequest(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(server.NewHandler(f.routes))
	defer ts.Close()

	code, body := get(t, ts.URL+"/simulator/app-host.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "// built app-host", body)

	code, body = get(t, ts.URL+"/simulator/sim-host.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "// built sim-host", body)

	assert.Equal(t, []host.Role{host.AppHost, host.SimHost}, f.builder.roles)
}

func TestHandler_ArtifactBuildFailure(t *testing.T) {
	f := newFixture(t)
	f.builder.err = errors.New("bundler exploded")
	ts := httptest.NewServer(server.NewHandler(f.routes))
	defer ts.Close()

	code, body := get(t, ts.URL+"/simulator/app-host.js")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body, "bundler exploded")
}

func TestHandler_StaticRoutes(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(server.NewHandler(f.routes))
	defer ts.Close()

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/index.html", http.StatusOK, "<html>app</html>"},
		{"/simulator/index.html", http.StatusOK, "<html>sim</html>"},
		{"/simulator/plugin/camera/sim-host-panels.html", http.StatusOK, "<section>camera</section>"},
		{"/simulator/plugin/battery/sim-host-panels.html", http.StatusNotFound, ""},
		{"/simulator/plugin/camera/missing.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := get(t, ts.URL+tt.path)
			assert.Equal(t, tt.code, code)
			if tt.body != "" {
				assert.Equal(t, tt.body, body)
			}
		})
	}
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/socket", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return ws
}

func TestServer_SocketRegistersAndStopClosesHosts(t *testing.T) {
	f := newFixture(t)
	srv := server.New("127.0.0.1:0", server.NewHandler(f.routes), nil)
	errCh, err := srv.Start()
	require.NoError(t, err)

	_, err = srv.Start()
	require.Error(t, err)

	ws := dial(t, srv.Addr())
	defer func() { _ = ws.Close() }()
	require.NoError(t, ws.WriteJSON(transport.Frame{Event: relay.EventRegisterAppHost}))

	require.Eventually(t, func() bool { return f.relay.Connected(host.AppHost) }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	require.Error(t, err)
	assert.False(t, isTimeout(err), "expected the server to close the connection, got %v", err)

	for serveErr := range errCh {
		t.Fatalf("unexpected serve error: %v", serveErr)
	}
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func TestParseStartPage(t *testing.T) {
	t.Run("content src", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "config.xml"),
			`<widget id="io.example"><CONTENT SRC = "main/start.html" /></widget>`)
		page, err := server.ParseStartPage(root)
		require.NoError(t, err)
		assert.Equal(t, "main/start.html", page)
	})

	t.Run("default", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "config.xml"), `<widget id="io.example"></widget>`)
		page, err := server.ParseStartPage(root)
		require.NoError(t, err)
		assert.Equal(t, server.DefaultStartPage, page)
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := server.ParseStartPage(t.TempDir())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, config.CodeInvalid)
		assert.True(t, strings.Contains(err.Error(), "cannot find project config file"))
	})
}

func TestHostURLs(t *testing.T) {
	urls := server.HostURLs("http://localhost:8000/", "index.html")
	assert.Equal(t, "http://localhost:8000/index.html", urls.App)
	assert.Equal(t, "http://localhost:8000/simulator/index.html", urls.SimHost)
}
