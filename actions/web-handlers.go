package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/workflow"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

func (w *WebServerResponse) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "ok":
		*w = Okay
	case "error":
		*w = Error
	default:
		return fmt.Errorf("unknown response status %q", s)
	}
	return nil
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
}

type ResponseRunList struct {
	Status  WebServerResponse `json:"status"`
	RunList []RunListItem     `json:"runs"`
}

type RunListItem struct {
	RunId          string         `json:"runId"`
	RunDescription string         `json:"runDescription"`
	RunState       workflow.State `json:"runState"`
}

type ResponseRunStats struct {
	Status       WebServerResponse `json:"status"`
	Message      string            `json:"message"`
	StatsSummary interface{}       `json:"runStats"`
}

type ResponseRunStatus struct {
	Status    WebServerResponse  `json:"status"`
	Message   string             `json:"message"`
	RunStatus workflow.RunStatus `json:"runStatus"`
}

type ResponseRunStop struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunId   string            `json:"runId"`
}

type ResponseRunLaunch struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	RunId   string            `json:"runId"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		respond(log, w, http.StatusOK, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // a stop is already pending
		}
		respond(log, w, http.StatusOK, ResponseSimple{ServerStatus: Okay})
	}
}

// GetHandlerRunLaunch starts a run unless another one is still in progress.
// Overlapping runs would replace the same star tables concurrently.
func GetHandlerRunLaunch(log logger.Logger, runs *workflow.SafeMapRuns, launch launchFunc) func(w http.ResponseWriter, r *http.Request) {
	mu := sync.Mutex{}
	return func(w http.ResponseWriter, r *http.Request) {
		// Ingest the optional launch request from the body JSON.
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("error reading request: %v", err)})
			return
		}
		req := LaunchRequest{}
		if len(b) > 0 { // if a body was supplied...
			if err := json.Unmarshal(b, &req); err != nil {
				logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)})
				return
			}
		}
		mu.Lock()
		defer mu.Unlock()
		if active := activeRun(runs); active != nil { // if a run is still going...
			log.Info("Rejected launch while run ", active.ID, " is in progress")
			respond(log, w, http.StatusConflict, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("run %v is already in progress", active.ID), RunId: active.ID})
			return
		}
		run, err := launch(req)
		if err != nil {
			logAndRespond(log, err, w, ResponseRunLaunch{Status: Error, Message: fmt.Sprintf("unable to launch run: %v", err)})
			return
		}
		log.Info("Launched run ", run.ID)
		respond(log, w, http.StatusOK, ResponseRunLaunch{Status: Okay, Message: "run launched", RunId: run.ID})
	}
}

func GetHandlerRunStop(log logger.Logger, runs *workflow.SafeMapRuns) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		run, ok := runs.Load(id)
		if !ok { // if the run doesn't exist...
			log.Info("HTTP request to stop run ", id, " that doesn't exist.")
			respond(log, w, http.StatusNotFound, ResponseRunStop{Status: Error, Message: "run does not exist", RunId: id})
			return
		}
		if run.IsFinished() { // if the run has already finished...
			log.Info("HTTP request to stop run ", id, " that has already finished.")
			respond(log, w, http.StatusOK, ResponseRunStop{Status: Error, Message: "run already ended", RunId: id})
			return
		}
		log.Info("Stopping run ", id)
		run.Stop()
		respond(log, w, http.StatusOK, ResponseRunStop{Status: Okay, Message: "shutting down", RunId: id})
	}
}

func GetHandlerRunList(log logger.Logger, runs *workflow.SafeMapRuns) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		list := runs.List()
		items := make([]RunListItem, 0, len(list))
		for _, run := range list {
			s := run.Status()
			items = append(items, RunListItem{RunId: run.ID, RunDescription: s.Description, RunState: s.State})
		}
		respond(log, w, http.StatusOK, ResponseRunList{Status: Okay, RunList: items})
	}
}

func GetHandlerRunStats(log logger.Logger, runs *workflow.SafeMapRuns) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		run, ok := runs.Load(id)
		if !ok { // if the run doesn't exist...
			log.Info("HTTP request to fetch stats for run ", id, " that doesn't exist.")
			respond(log, w, http.StatusNotFound, ResponseRunStats{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		respond(log, w, http.StatusOK, ResponseRunStats{Status: Okay, StatsSummary: run.Stats.GetStats()})
	}
}

func GetHandlerRunStatus(log logger.Logger, runs *workflow.SafeMapRuns) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["runId"]
		run, ok := runs.Load(id)
		if !ok { // if the run doesn't exist...
			log.Info("HTTP request status of run ", id, " that doesn't exist.")
			respond(log, w, http.StatusNotFound, ResponseRunStatus{Status: Error, Message: fmt.Sprintf("run %v does not exist", id)})
			return
		}
		respond(log, w, http.StatusOK, ResponseRunStatus{Status: Okay, RunStatus: run.Status()})
	}
}

// logAndRespond will log the error, write a http.StatusBadRequest and r to w.
// activeRun returns the first unfinished run in runs or nil.
func activeRun(runs *workflow.SafeMapRuns) *workflow.Run {
	for _, run := range runs.List() {
		if !run.IsFinished() {
			return run
		}
	}
	return nil
}

func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, r ResponseRunLaunch) {
	log.Error(err)
	respond(log, w, http.StatusBadRequest, r)
}

// respond will marshal i to JSON and write it to w with the given status code.
func respond(log logger.Logger, w http.ResponseWriter, code int, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(j); err != nil {
		log.Error(err)
	}
}
