package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-remote/registry"
	"github.com/ethereum-optimism/infra/op-remote/transport"
	"github.com/ethereum-optimism/infra/op-remote/types"
)

const maxDescriptorBody = 1 << 20

type handler struct {
	controller *Controller
	log        log.Logger
}

// NewHandler returns the HTTP surface of the controller
func NewHandler(c *Controller) http.Handler {
	h := &handler{controller: c, log: c.log}

	r := mux.NewRouter().UseEncodedPath()
	r.HandleFunc("/run", h.handleSubmit(false)).Methods(http.MethodPost)
	r.HandleFunc("/run", h.handleSubmit(true)).Methods(http.MethodPut)
	r.HandleFunc("/results", h.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/results/files", h.handleFiles).Methods(http.MethodGet)
	r.HandleFunc("/results/suite", h.handleSuite).Methods(http.MethodGet)
	r.HandleFunc("/results/file/{name}", h.handleFile).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		ExposedHeaders: []string{transport.RunIDHeader},
	})
	return corsHandler.Handler(r)
}

func (h *handler) handleSubmit(async bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var desc types.RunDescriptor
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDescriptorBody))
		if err := dec.Decode(&desc); err != nil {
			writeError(w, http.StatusBadRequest, "invalid run descriptor: "+err.Error())
			return
		}
		desc.Async = async

		res, err := h.controller.Submit(r.Context(), desc, async)
		if err != nil {
			h.log.Warn("Rejected test run", "async", async, "err", err)
			writeError(w, statusFor(err), err.Error())
			return
		}

		w.Header().Set(transport.RunIDHeader, res.RunID)
		if async {
			writeJSON(w, http.StatusOK, transport.Acknowledgement{RunID: res.RunID})
			return
		}
		writeJSON(w, http.StatusOK, res.Results)
	}
}

func (h *handler) handleResults(w http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "invalid timeout: "+raw)
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	runID, resp, err := h.controller.Poll(r.Context(), timeout)
	if runID != "" {
		w.Header().Set(transport.RunIDHeader, runID)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if !resp.IsFinal() {
		status = http.StatusPartialContent
	}
	writeJSON(w, status, resp.Results())
}

func (h *handler) handleFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.ArtifactNames())
}

func (h *handler) handleSuite(w http.ResponseWriter, r *http.Request) {
	data, err := h.controller.SuiteArtifact()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeXML(w, data)
}

func (h *handler) handleFile(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	data, err := h.controller.Artifact(name)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeXML(w, data)
}

func (h *handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrNoRun), errors.Is(err, ErrArtifactNotFound):
		return http.StatusNotFound
	case types.IsConfigError(err), errors.Is(err, registry.ErrUnknownEngine):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeXML(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}
