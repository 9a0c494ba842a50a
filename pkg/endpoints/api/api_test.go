//nolint:funlen // ok for tests
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
	"github.com/mpapenbr/racestrategy-service-go/pkg/service"
	"github.com/mpapenbr/racestrategy-service-go/pkg/sink/stream"
	"github.com/mpapenbr/racestrategy-service-go/testsupport/fakereasoner"
)

const validCandidates = `{"strategies": [{"strategy_id": 1, "strategy_name": "Medium-Hard",
"stop_count": 1, "pit_laps": [30], "tire_sequence": ["medium", "hard"], "risk_level": "low"}]}`

func noSleep(context.Context, time.Duration) error { return nil }

func setup(t *testing.T, fake *fakereasoner.Fake, opts ...Option) http.Handler {
	t.Helper()
	p := pipeline.New(fake, pipeline.WithSleep(noSleep))
	t.Cleanup(p.Close)
	return New(service.New(p), opts...).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var ret T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret), rec.Body.String())
	return ret
}

func raceContextJSON() string {
	rc := model.RaceContext{
		RaceInfo: model.RaceInfo{
			TrackName: "Monza", TotalLaps: 51, CurrentLap: 10, WeatherCondition: model.WeatherDry,
		},
		DriverState: model.DriverState{
			DriverName: "Alonso", Position: 4, CurrentTireCompound: model.CompoundMedium,
			TireAgeLaps: 10, FuelRemainingPercent: 70,
		},
	}
	data, _ := json.Marshal(rc)
	return string(data)
}

func enrichedJSON(lap int) string {
	return `{"lap":` + strconv.Itoa(lap) + `,"aero_efficiency":0.7,` +
		`"tire_degradation_index":0.2,"ers_charge":0.6,"fuel_optimization_score":0.9,` +
		`"driver_consistency":0.95,"weather_impact":"low"}`
}

func TestHealth(t *testing.T) {
	h := setup(t, fakereasoner.New(), WithDemoMode(true), WithTelemetrySource("http://enricher"))
	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[Health](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.True(t, got.DemoMode)
	assert.Equal(t, "http://enricher", got.TelemetrySource)
}

func TestTraceID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	h := setup(t, fakereasoner.New(), WithTracer(tp.Tracer("test")))

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http GET", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), rec.Header().Get(traceIDHeader))

	// the global provider is a noop, so no trace id is reported
	rec = do(t, setup(t, fakereasoner.New()), http.MethodGet, "/healthz", "")
	assert.Empty(t, rec.Header().Get(traceIDHeader))
}

func TestRawTelemetry(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  ErrorCode
	}{
		{
			name:     "accepted",
			body:     `{"LapNumber": 3, "Speed": 290, "Compound": "SOFT", "TotalLaps": 51}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "unrecognized schema",
			body:     `{"foo": 1}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  CodeUnrecognizedSchema,
		},
		{
			name:     "invalid compound",
			body:     `{"lap": 3, "speed": 290, "tire_compound": "hyper"}`,
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  CodeInvalidTelemetry,
		},
		{
			name:     "bad json",
			body:     `{"lap": `,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, fakereasoner.New(fakereasoner.Reply(validCandidates)))
			rec := do(t, h, http.MethodPost, "/api/v1/sessions/monza/telemetry", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeBody[ErrorResponse](t, rec).Code)
				return
			}
			res := decodeBody[map[string]any](t, rec)
			assert.Equal(t, string(service.StatusWaitingForData), res["status"])
		})
	}
}

func TestEnriched(t *testing.T) {
	h := setup(t, fakereasoner.New(fakereasoner.Reply(validCandidates)))

	rec := do(t, h, http.MethodPost, "/api/v1/sessions/monza/enriched",
		`{"enriched":`+enrichedJSON(5)+`,"race_context":`+raceContextJSON()+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/sessions/monza/enriched",
		`{"enriched":{"lap":0,"aero_efficiency":2,"weather_impact":"stormy"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, CodeBadRequest, errResp.Code)
	assert.Contains(t, errResp.Fields, "EnrichedRequest.enriched.lap")
	assert.Contains(t, errResp.Fields, "EnrichedRequest.enriched.aero_efficiency")
	assert.Contains(t, errResp.Fields, "EnrichedRequest.enriched.weather_impact")

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/monza/buffer?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[service.BufferInfo](t, rec)
	assert.Equal(t, 1, info.Size)
	assert.Equal(t, 5, info.Records[0].Lap)
	require.NotNil(t, info.Context)
	assert.Equal(t, "Monza", info.Context.RaceInfo.TrackName)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/monza/buffer?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions", "")
	assert.Equal(t, []string{"monza"}, decodeBody[map[string][]string](t, rec)["sessions"])
}

func TestStrategies(t *testing.T) {
	body := `{"enriched_telemetry":[` + enrichedJSON(8) + `,` + enrichedJSON(9) + `],` +
		`"race_context":` + raceContextJSON() + `}`
	tests := []struct {
		name     string
		fake     *fakereasoner.Fake
		body     string
		wantCode int
		wantErr  ErrorCode
	}{
		{
			name:     "explicit data",
			fake:     fakereasoner.New(fakereasoner.Reply(validCandidates)),
			body:     body,
			wantCode: http.StatusOK,
		},
		{
			name:     "no telemetry",
			fake:     fakereasoner.New(fakereasoner.Reply(validCandidates)),
			wantCode: http.StatusConflict,
			wantErr:  CodeNoTelemetry,
		},
		{
			name:     "generation failed",
			fake:     fakereasoner.New(fakereasoner.Reply("no json at all")),
			body:     body,
			wantCode: http.StatusServiceUnavailable,
			wantErr:  CodeGenerationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, tt.fake)
			rec := do(t, h, http.MethodPost, "/api/v1/sessions/monza/strategies", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				errResp := decodeBody[ErrorResponse](t, rec)
				assert.Equal(t, tt.wantErr, errResp.Code)
				return
			}
			res := decodeBody[pipeline.Result](t, rec)
			assert.Equal(t, pipeline.StateCompleted, res.State)
			require.Len(t, res.Candidates, 1)
			assert.Equal(t, "Medium-Hard", res.Candidates[0].StrategyName)
		})
	}
}

func TestStateAndReset(t *testing.T) {
	h := setup(t, fakereasoner.New(fakereasoner.Reply(validCandidates)))
	rec := do(t, h, http.MethodPost, "/api/v1/sessions/spa/enriched",
		`{"enriched":`+enrichedJSON(1)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/spa/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(1), st["buffer_size"])

	rec = do(t, h, http.MethodPost, "/api/v1/sessions/spa/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/sessions/spa/state", "")
	st = decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(0), st["buffer_size"])
	assert.Equal(t, "Idle", st["state"])
}

func TestEvents(t *testing.T) {
	hub := stream.New()
	defer hub.Close()
	h := setup(t, fakereasoner.New(), WithSubscriber(hub))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/v1/events?session=monza", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, hub.Deliver(ctx, &pipeline.Result{RunID: "r0", Session: "spa"}))
	require.NoError(t, hub.Deliver(ctx,
		&pipeline.Result{RunID: "r1", Session: "monza", State: pipeline.StateCompleted}))

	scanner := bufio.NewScanner(resp.Body)
	lines := []string{}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "id: r1", lines[0])
	assert.Equal(t, "event: Completed", lines[1])
	var res pipeline.Result
	require.NoError(t, json.NewDecoder(
		bytes.NewReader([]byte(strings.TrimPrefix(lines[2], "data: ")))).Decode(&res))
	assert.Equal(t, "monza", res.Session)
}
