package commander

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"milkquality/internal/config"
	"milkquality/internal/datatest"
	"milkquality/internal/experiment"
	"milkquality/internal/jobs"
	"milkquality/internal/persistence"
	"milkquality/internal/prediction"
	"milkquality/internal/server"
	"milkquality/internal/visualization"
)

type recordingPredictor struct {
	got []prediction.Features
}

func (p *recordingPredictor) Predict(features prediction.Features) (string, error) {
	p.got = append(p.got, features)
	return "high", nil
}

func newAPI(t *testing.T, predictor server.Predictor) *httptest.Server {
	t.Helper()
	renderer, err := visualization.NewRenderer(datatest.Dataset(t, 60, 2), 4)
	require.NoError(t, err)

	router := server.NewRouter(server.Dependencies{Predictor: predictor, Plots: renderer}, zap.NewNop())
	api := httptest.NewServer(router)
	t.Cleanup(api.Close)
	return api
}

func newCommander(t *testing.T, api *httptest.Server, input string) (*Commander, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := NewCommander(NewAPIClient(api.URL), config.Default(), nil)
	c.SetIO(strings.NewReader(input), &out)
	return c, &out
}

func waitJob(t *testing.T, job *jobs.Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(60 * time.Second):
		t.Fatalf("job %s did not finish", job.ID)
	}
}

func TestParseSample(t *testing.T) {
	s, err := ParseSample([]string{"6.5", "40", "1", "1", "1", "0", "4"})
	require.NoError(t, err)
	assert.Equal(t, Sample{PH: 6.5, Temperature: 40, Taste: 1, Odor: 1, Fat: 1, Turbidity: 0, Color: 4}, s)

	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"too few", []string{"6.5"}, "expected 7 values"},
		{"ph range", []string{"15", "40", "1", "1", "1", "0", "4"}, "pH must be between 0 and 14"},
		{"temperature range", []string{"6.5", "120", "1", "1", "1", "0", "4"}, "Temperature must be between 0 and 100"},
		{"binary flag", []string{"6.5", "40", "2", "1", "1", "0", "4"}, "Taste must be between 0 and 1"},
		{"whole number", []string{"6.5", "40", "1", "0.5", "1", "0", "4"}, "Odor must be a whole number"},
		{"color range", []string{"6.5", "40", "1", "1", "1", "0", "0"}, "Color must be between 1 and 10"},
		{"not a number", []string{"acid", "40", "1", "1", "1", "0", "4"}, "pH must be a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSample(tt.values)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPredictWithArguments(t *testing.T) {
	predictor := &recordingPredictor{}
	c, out := newCommander(t, newAPI(t, predictor), "")

	c.ExecuteCommand("predict", []string{"6.5", "40", "1", "1", "1", "0", "4"})

	assert.Contains(t, out.String(), "Predicted Milk Quality: high")
	require.Len(t, predictor.got, 1)
	assert.Equal(t, prediction.Features{6.5, 40, 1, 1, 1, 0, 4}, predictor.got[0])
}

func TestPredictPromptsWithDefaults(t *testing.T) {
	predictor := &recordingPredictor{}
	// pH keeps its default, Temperature is retried after an out of range answer.
	c, out := newCommander(t, newAPI(t, predictor), "\n200\n35\n\n\n\n0\n\n")

	c.ExecuteCommand("predict", nil)

	assert.Contains(t, out.String(), "Temperature must be between 0 and 100")
	assert.Contains(t, out.String(), "Predicted Milk Quality: high")
	require.Len(t, predictor.got, 1)
	assert.Equal(t, prediction.Features{6.5, 35, 1, 1, 1, 0, 4}, predictor.got[0])
}

func TestPredictPromptAbortsOnEOF(t *testing.T) {
	predictor := &recordingPredictor{}
	c, _ := newCommander(t, newAPI(t, predictor), "7\n")

	c.ExecuteCommand("predict", nil)
	assert.Empty(t, predictor.got)
}

func TestPlotSavesPNG(t *testing.T) {
	c, out := newCommander(t, newAPI(t, &recordingPredictor{}), "")
	file := filepath.Join(t.TempDir(), "ph.png")

	c.ExecuteCommand("plot", []string{"violin", "pH", file})

	assert.Contains(t, out.String(), "Violin Plot of pH saved to")
	png, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestPlotInvalidType(t *testing.T) {
	c, out := newCommander(t, newAPI(t, &recordingPredictor{}), "")

	c.ExecuteCommand("plot", []string{"pie", "pH", filepath.Join(t.TempDir(), "x.png")})
	assert.Contains(t, out.String(), "Invalid plot type")
}

func TestClientReportsAPIErrors(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model exploded"}`))
	}))
	defer api.Close()

	_, err := NewAPIClient(api.URL).Predict(context.Background(), Sample{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "model exploded", apiErr.Message)
}

func TestBackgroundTrainingJob(t *testing.T) {
	c, out := newCommander(t, newAPI(t, &recordingPredictor{}), "")
	c.SetTrainFunc(func(ctx context.Context, job *jobs.Job) (any, error) {
		job.AddLog("Scored 1/1 configurations")
		return nil, nil
	})

	c.ExecuteCommand("train", nil)
	list := c.Jobs().ListJobs()
	require.Len(t, list, 1)
	job := list[0]
	waitJob(t, job)

	c.ExecuteCommand("jobs", nil)
	c.ExecuteCommand("job", []string{job.ID})
	c.ExecuteCommand("logs", []string{job.ID})

	text := out.String()
	assert.Contains(t, text, "Job submitted: ")
	assert.Contains(t, text, "completed")
	assert.Contains(t, text, "Scored 1/1 configurations")
}

func TestTrainRunsPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DatasetPath = datatest.WriteCSV(t, dir, datatest.Samples(200, 4))
	cfg.ModelPath = filepath.Join(dir, "models", "model.gob")
	cfg.LabelEncoderPath = filepath.Join(dir, "models", "label_encoder.gob")
	cfg.Training.NEstimators = []int{5}
	cfg.Training.MaxDepth = []int{3, 5}
	cfg.Tracking.Backend = "memory"

	var out bytes.Buffer
	c := NewCommander(NewAPIClient("http://127.0.0.1:0"), cfg, nil)
	c.SetIO(strings.NewReader(""), &out)

	c.ExecuteCommand("train", nil)
	job := c.Jobs().ListJobs()[0]
	waitJob(t, job)

	require.NoError(t, job.GetError())
	assert.Equal(t, jobs.JobCompleted, job.GetStatus())
	report, ok := job.GetResult().(*experiment.Report)
	require.True(t, ok)
	assert.Equal(t, []string{"high", "low", "medium"}, report.Classes)

	_, err := persistence.LoadModel(cfg.ModelPath)
	assert.NoError(t, err)
	assert.Contains(t, strings.Join(job.GetLogs(), "\n"), "Scored 2/2 configurations")
}

func TestStartLoop(t *testing.T) {
	c, out := newCommander(t, newAPI(t, &recordingPredictor{}), "help\nhealth\nbogus\nquit\npredict 6.5 40 1 1 1 0 4\n")

	c.Start()

	text := out.String()
	assert.Contains(t, text, "Available Commands")
	assert.Contains(t, text, "API is up")
	assert.Contains(t, text, "Unknown command: bogus")
	assert.NotContains(t, text, "Predicted Milk Quality", "commands after quit are not run")
}
