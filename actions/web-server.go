package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/metrics"
	"github.com/relloyd/starpipe/workflow"
)

const (
	urlContext4Launch = "/launch"
	shutdownTimeout   = 15 * time.Second
)

type WebServerConfig struct {
	LogLevel         string `errorTxt:"log level" mandatory:"yes"`
	Scheme           string `errorTxt:"scheme" mandatory:"no"`
	Addr             net.IP `errorTxt:"address" mandatory:"no"`
	Port             int    `errorTxt:"port" mandatory:"no"`
	Run              RunConfig
	StackDumpOnPanic bool
}

// LaunchRequest is the optional JSON body of a launch request.
type LaunchRequest struct {
	DropFirst bool            `json:"dropFirst"`
	Graph     *workflow.Graph `json:"graph,omitempty"`
}

// launchFunc starts a run in the background.
type launchFunc func(req LaunchRequest) (*workflow.Run, error)

func RunWebServer(web *WebServerConfig) error {
	// Setup logging.
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	log := logger.NewLoggerWithFormat(constants.ServiceName, web.LogLevel, web.Run.LogFormat, web.StackDumpOnPanic)
	// Check if we have valid input params.
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runs := workflow.NewSafeMapRuns()
	chanStopServer := make(chan string, 1)
	r := newRouter(log, runs, newLauncher(ctx, log, &web.Run, runs), chanStopServer)
	// Start the web server.
	srv := runServer(log, web, r)
	// Block & wait for completion.
	return waitForServer(log, srv, chanStopServer, runs)
}

// newLauncher returns a launchFunc that opens a warehouse connection per run and closes it when the run ends.
func newLauncher(ctx context.Context, log logger.Logger, cfg *RunConfig, runs *workflow.SafeMapRuns) launchFunc {
	return func(req LaunchRequest) (*workflow.Run, error) {
		o := cfg.WarehouseOptions
		o.DropFirst = o.DropFirst || req.DropFirst
		cat := catalog.Default()
		g := req.Graph
		if g == nil { // if the caller did not supply a graph...
			var err error
			if g, err = loadGraph(cfg.GraphFile, cat); err != nil {
				return nil, err
			}
		}
		db, exec, err := openWarehouse(ctx, log, &o, cat)
		if err != nil {
			return nil, err
		}
		runner, err := workflow.NewRunner(log, cat, g, exec, cfg.runnerOptions(),
			workflow.WithObserver(metrics.Observer{}), workflow.WithRunRegistry(runs))
		if err != nil {
			db.Close()
			return nil, err
		}
		run := runner.Start(ctx)
		go func() {
			<-run.Done()
			db.Close()
		}()
		return run, nil
	}
}

// newRouter creates the routes of the web service.
func newRouter(log logger.Logger, runs *workflow.SafeMapRuns, launch launchFunc, chanStopServer chan string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stop", GetHandlerStopServer(log, chanStopServer))
	r.Path("/health").HandlerFunc(GetHandlerHealth(log))
	r.Path("/metrics").Handler(promhttp.Handler())
	r.Path("/runs").HandlerFunc(GetHandlerRunList(log, runs))
	r.Path("/runs/{runId}/stats").HandlerFunc(GetHandlerRunStats(log, runs))
	r.Path("/runs/{runId}/status").HandlerFunc(GetHandlerRunStatus(log, runs))
	r.Path("/runs/{runId}/stop").HandlerFunc(GetHandlerRunStop(log, runs))
	r.Path(urlContext4Launch).Methods(http.MethodPost).HandlerFunc(GetHandlerRunLaunch(log, runs, launch))
	return r
}

// runServer starts a web server using handler and returns it.
func runServer(log logger.Logger, web *WebServerConfig, handler http.Handler) *http.Server {
	// Configure HTTP server.
	srv := &http.Server{ // set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      handler,
	}
	// Run HTTP server non-blocking.
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				log.Info(err)
			} else {
				log.Panic(err)
			}
		}
	}()
	log.Info(fmt.Sprintf("Listening on %v://%v:%v", strings.ToLower(web.Scheme), web.Addr, web.Port))
	return srv
}

func waitForServer(log logger.Logger, srv *http.Server, chanStopServer chan string, runs *workflow.SafeMapRuns) error {
	// Block & wait for shutdown signals.
	// Accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+\) will not be caught.
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt) // request signals be sent to chanOS.
	select {
	case <-chanStopServer:
	case <-chanOS:
	}
	fmt.Println() // print new line char for clean looking CLI.
	log.Info("Shutting down web server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopRuns(ctx, log, runs)
	return srv.Shutdown(ctx) // doesn't block if no connections, but will otherwise wait until the timeout deadline.
}

// stopRuns stops every unfinished run and waits for them to end or for ctx to expire.
func stopRuns(ctx context.Context, log logger.Logger, runs *workflow.SafeMapRuns) {
	for _, run := range runs.List() {
		if run.IsFinished() {
			continue
		}
		log.Info("Stopping run ", run.ID)
		run.Stop()
		select {
		case <-run.Done():
		case <-ctx.Done():
			log.Warn("Timed out waiting for run ", run.ID, " to stop")
			return
		}
	}
}
