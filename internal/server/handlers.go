package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"milkquality/internal/data"
	"milkquality/internal/prediction"
	"milkquality/internal/preprocessing"
	"milkquality/internal/tracking"
	"milkquality/internal/visualization"
)

const liveMessage = "Milk Quality Prediction API is live."

// Predictor classifies one sample.
type Predictor interface {
	Predict(features prediction.Features) (string, error)
}

// PlotRenderer draws a feature plot as PNG.
type PlotRenderer interface {
	Render(feature, plotType string) ([]byte, error)
}

// RunLister lists the recorded runs of an experiment.
type RunLister interface {
	ListRuns(ctx context.Context, experiment string) ([]tracking.Run, error)
}

// Summarizer describes the training dataset.
type Summarizer interface {
	Summary() (data.Summary, error)
}

// Dependencies are the services behind the routes. Predictor is required;
// the others switch their routes to 503 when nil.
type Dependencies struct {
	Predictor Predictor
	Plots     PlotRenderer
	Runs      RunLister
	Dataset   Summarizer
}

// PredictRequest is a sample as posted by the front-end.
type PredictRequest struct {
	PH          *float64 `json:"pH"`
	Temperature *float64 `json:"Temperature"`
	Taste       *float64 `json:"Taste"`
	Odor        *float64 `json:"Odor"`
	Fat         *float64 `json:"Fat"`
	Turbidity   *float64 `json:"Turbidity"`
	Color       *float64 `json:"Color"`
}

// Features checks that every field is present and that the categorical
// fields hold whole numbers.
func (p PredictRequest) Features() (prediction.Features, error) {
	fields := [...]*float64{p.PH, p.Temperature, p.Taste, p.Odor, p.Fat, p.Turbidity, p.Color}

	var features prediction.Features
	for i, field := range fields {
		name := data.FeatureNames[i]
		if field == nil {
			return features, fmt.Errorf("missing field %s", name)
		}
		if i >= 2 && *field != math.Trunc(*field) {
			return features, fmt.Errorf("%s must be an integer", name)
		}
		features[i] = *field
	}
	return features, nil
}

type PredictResponse struct {
	PredictedQuality string `json:"predicted_quality"`
}

type PlotRequest struct {
	Feature  string `json:"feature"`
	PlotType string `json:"plot_type"`
}

type PlotResponse struct {
	PlotBase64 string `json:"plot_base64"`
}

type handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(deps Dependencies, logger *zap.Logger) *mux.Router {
	h := &handler{deps: deps, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/predict", h.predict).Methods(http.MethodPost)
	r.HandleFunc("/plot", h.plot).Methods(http.MethodPost)
	r.HandleFunc("/experiments/{name}/runs", h.runs).Methods(http.MethodGet)
	r.HandleFunc("/dataset/summary", h.datasetSummary).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": liveMessage})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	features, err := req.Features()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	label, err := h.deps.Predictor.Predict(features)
	if err != nil {
		var unknown *preprocessing.UnknownLabelError
		if errors.As(err, &unknown) {
			h.logger.Error("prediction decoded to unknown label",
				zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, PredictResponse{PredictedQuality: label})
}

func (h *handler) plot(w http.ResponseWriter, r *http.Request) {
	if h.deps.Plots == nil {
		writeError(w, http.StatusServiceUnavailable, "plots are unavailable")
		return
	}

	var req PlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	png, err := h.deps.Plots.Render(req.Feature, req.PlotType)
	switch {
	case errors.Is(err, visualization.ErrInvalidPlotType):
		writeError(w, http.StatusBadRequest, "Invalid plot type")
		return
	case errors.Is(err, visualization.ErrUnknownFeature):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("render plot",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("feature", req.Feature),
			zap.String("plot_type", req.PlotType),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, PlotResponse{PlotBase64: base64.StdEncoding.EncodeToString(png)})
}

func (h *handler) runs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "experiment tracking is unavailable")
		return
	}

	name := mux.Vars(r)["name"]
	runs, err := h.deps.Runs.ListRuns(r.Context(), name)
	switch {
	case errors.Is(err, tracking.ErrExperimentNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("experiment %q not found", name))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) datasetSummary(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Dataset == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset is unavailable")
		return
	}

	summary, err := h.deps.Dataset.Summary()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
