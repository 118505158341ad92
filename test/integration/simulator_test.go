// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/simbridge/simbridge/internal/apphost"
	"github.com/simbridge/simbridge/internal/bundle"
	"github.com/simbridge/simbridge/internal/host"
	"github.com/simbridge/simbridge/internal/plugin"
	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/internal/server"
	"github.com/simbridge/simbridge/internal/simhost"
	"github.com/simbridge/simbridge/internal/transport"
)

const skeleton = `var plugins = {
/** PLUGINS **/
};
var handlers = {
/** PLUGIN-HANDLERS **/
};`

// simEnv is a running simulator over an on-disk project.
type simEnv struct {
	ctx    context.Context
	cancel context.CancelFunc

	projectRoot  string
	platformRoot string
	assets       string

	manager  *plugin.Manager
	relay    *relay.Relay
	pipeline *bundle.Pipeline
	srv      *server.Server
	logger   *slog.Logger
}

func writeFile(path, content string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0o750)).To(Succeed())
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
}

// installPlugin adds an installed plugin whose simulation sources contribute
// the given files.
func (e *simEnv) installPlugin(id string, files map[string]string) {
	Expect(os.MkdirAll(filepath.Join(e.platformRoot, "plugins", id), 0o750)).To(Succeed())
	for name, content := range files {
		writeFile(filepath.Join(e.projectRoot, "plugins", id, "src", "simulation", name), content)
	}
}

func setupSimEnv() *simEnv {
	root := GinkgoT().TempDir()
	e := &simEnv{
		projectRoot: filepath.Join(root, "project"),
		assets:      filepath.Join(root, "assets"),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	e.platformRoot = filepath.Join(e.projectRoot, "platforms", "browser", "www")
	e.ctx, e.cancel = context.WithCancel(context.Background())

	writeFile(filepath.Join(e.projectRoot, "config.xml"), `<widget><content src="index.html"/></widget>`)
	writeFile(filepath.Join(e.platformRoot, "index.html"), "<html>app</html>")
	writeFile(filepath.Join(e.assets, "app-host", "app-host.js"), skeleton)
	writeFile(filepath.Join(e.assets, "sim-host", "sim-host.js"), skeleton)
	writeFile(filepath.Join(e.assets, "sim-host", "index.html"), "<html>sim</html>")
	writeFile(filepath.Join(e.assets, "modules", "common", "utils.js"), "module.exports = {};")
	writeFile(filepath.Join(e.assets, "plugins", "exec", "app-host.js"), "// exec bridge")

	e.installPlugin("cordova-plugin-device", map[string]string{
		"sim-host.js":          "// device panel",
		"sim-host-handlers.js": "// device handlers",
	})

	e.manager = plugin.NewManager(plugin.ManagerConfig{
		Platform:     "browser",
		ProjectRoot:  e.projectRoot,
		PlatformRoot: e.platformRoot,
		BuiltinDir:   filepath.Join(e.assets, "plugins"),
		PlatformsDir: filepath.Join(e.assets, "platforms"),
	})
	_, err := e.manager.Discover(e.ctx)
	Expect(err).NotTo(HaveOccurred())

	e.relay = relay.New(relay.WithLogger(e.logger))
	e.pipeline = bundle.NewPipeline(bundle.PipelineConfig{
		Layout:  bundle.Layout{AssetsRoot: e.assets},
		Store:   bundle.NewStore(filepath.Join(e.projectRoot, "simulation")),
		Plugins: e.manager,
		Bundler: bundle.NewConcatBundler(),
	}, bundle.WithRefresher(e.relay), bundle.WithLogger(e.logger))

	e.srv = server.New("127.0.0.1:0", server.NewHandler(server.Routes{
		Builder:      e.pipeline,
		Plugins:      e.manager,
		Relay:        e.relay,
		PlatformRoot: e.platformRoot,
		SimHostRoot:  filepath.Join(e.assets, "sim-host"),
		Logger:       e.logger,
	}), e.logger)
	_, err = e.srv.Start()
	Expect(err).NotTo(HaveOccurred())
	return e
}

func (e *simEnv) cleanup() {
	e.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	Expect(e.srv.Stop(ctx)).To(Succeed())
}

func (e *simEnv) get(path string) (int, string) {
	resp, err := http.Get("http://" + e.srv.Addr() + path) //nolint:gosec,noctx // test server URL
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp.StatusCode, string(body)
}

// hostClient is one browser context's connection to the relay.
type hostClient struct {
	conn *transport.Conn
	done chan struct{}
}

func (e *simEnv) connect(h transport.Handler) *hostClient {
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+e.srv.Addr()+"/socket", nil)
	Expect(err).NotTo(HaveOccurred())
	_ = resp.Body.Close()

	c := &hostClient{conn: transport.NewConn(ws, e.logger), done: make(chan struct{})}
	go func() {
		defer close(c.done)
		_ = c.conn.Serve(e.ctx, h)
	}()
	return c
}

func (c *hostClient) close() {
	c.conn.Close()
	Eventually(c.done).Should(BeClosed())
}

// eventLog records events delivered to a host.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) Handle(event string, _ json.RawMessage, _ relay.AckFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

var _ = Describe("Simulator", func() {
	var env *simEnv

	BeforeEach(func() {
		env = setupSimEnv()
	})

	AfterEach(func() {
		env.cleanup()
	})

	Describe("host artifacts", func() {
		It("builds each host's script from the installed plugins", func() {
			code, app := env.get("/simulator/app-host.js")
			Expect(code).To(Equal(http.StatusOK))
			Expect(app).To(ContainSubstring("'exec': require('exec')"))
			Expect(app).To(ContainSubstring("// exec bridge"))

			code, sim := env.get("/simulator/sim-host.js")
			Expect(code).To(Equal(http.StatusOK))
			Expect(sim).To(ContainSubstring("'cordova-plugin-device': require('cordova-plugin-device')"))
			Expect(sim).To(ContainSubstring("'cordova-plugin-device': require('cordova-plugin-device-handlers')"))
			Expect(sim).To(ContainSubstring("// device handlers"))
		})

		It("reuses the cached artifact when nothing changed", func() {
			_, first := env.get("/simulator/app-host.js")
			info, err := os.Stat(env.pipeline.ArtifactPath(host.AppHost))
			Expect(err).NotTo(HaveOccurred())

			_, second := env.get("/simulator/app-host.js")
			again, err := os.Stat(env.pipeline.ArtifactPath(host.AppHost))
			Expect(err).NotTo(HaveOccurred())

			Expect(second).To(Equal(first))
			Expect(again.ModTime()).To(Equal(info.ModTime()))
		})

		It("serves plugin files and host pages", func() {
			code, body := env.get("/simulator/plugin/cordova-plugin-device/sim-host.js")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(Equal("// device panel"))

			_, body = env.get("/simulator/index.html")
			Expect(body).To(Equal("<html>sim</html>"))

			page, err := server.ParseStartPage(env.projectRoot)
			Expect(err).NotTo(HaveOccurred())
			_, body = env.get("/" + page)
			Expect(body).To(Equal("<html>app</html>"))
		})
	})

	Describe("exec round trip", func() {
		It("delivers calls queued before the sim-host connects", func() {
			var appConn *hostClient
			tracker := apphost.NewTracker(emitterFunc(func(event string, payload json.RawMessage, ack relay.AckFunc) error {
				return appConn.conn.Emit(event, payload, ack)
			}))
			appConn = env.connect(tracker)
			defer appConn.close()
			Expect(appConn.conn.Emit(relay.EventRegisterAppHost, nil, nil)).To(Succeed())
			Eventually(func() bool { return env.relay.Connected(host.AppHost) }).Should(BeTrue())

			results := make(chan string, 1)
			_, err := tracker.Exec("Device", "getInfo", []any{}, func(p json.RawMessage) {
				results <- string(p)
			}, func(p json.RawMessage) {
				results <- "failed: " + string(p)
			})
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() int { return env.relay.Pending(host.SimHost) }).Should(Equal(1))

			var simConn *hostClient
			dispatcher := simhost.NewDispatcher(simhost.Handlers{
				"Device": {"getInfo": func(c simhost.Call) {
					c.Success(map[string]string{"platform": "browser"})
				}},
			}, emitterFunc(func(event string, payload json.RawMessage, ack relay.AckFunc) error {
				return simConn.conn.Emit(event, payload, ack)
			}))
			simConn = env.connect(dispatcher)
			defer simConn.close()
			Expect(simConn.conn.Emit(relay.EventRegisterSimHost, nil, nil)).To(Succeed())

			Eventually(results, 5*time.Second).Should(Receive(MatchJSON(`{"platform":"browser"}`)))
			Expect(tracker.Pending()).To(BeZero())
			Expect(env.relay.Pending(host.SimHost)).To(BeZero())
		})
	})

	Describe("plugin changes", func() {
		It("refreshes a connected sim-host whose plugins went stale", func() {
			_, _ = env.get("/simulator/app-host.js")
			_, _ = env.get("/simulator/sim-host.js")

			sim := &eventLog{}
			simConn := env.connect(sim)
			defer simConn.close()
			Expect(simConn.conn.Emit(relay.EventRegisterSimHost, nil, nil)).To(Succeed())
			Eventually(func() bool { return env.relay.Connected(host.SimHost) }).Should(BeTrue())

			env.installPlugin("cordova-plugin-camera", map[string]string{
				"app-host.js": "// camera bridge",
				"sim-host.js": "// camera panel",
			})
			_, err := env.manager.Discover(env.ctx)
			Expect(err).NotTo(HaveOccurred())

			_, app := env.get("/simulator/app-host.js")
			Expect(app).To(ContainSubstring("// camera bridge"))

			Eventually(sim.Events).Should(ContainElement(relay.EventRefresh))
			Expect(env.relay.Connected(host.SimHost)).To(BeFalse())

			_, simScript := env.get("/simulator/sim-host.js")
			Expect(simScript).To(ContainSubstring("// camera panel"))
		})
	})
})

type emitterFunc func(event string, payload json.RawMessage, ack relay.AckFunc) error

func (f emitterFunc) Emit(event string, payload json.RawMessage, ack relay.AckFunc) error {
	return f(event, payload, ack)
}
