package integritysync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/vehicle_integrity/authenticity"
	"github.com/mmdatafocus/vehicle_integrity/integrity"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	registryType models.RegistryType
	records      []models.RegistryRecord
}

func (s sliceSource) RegistryType() models.RegistryType { return s.registryType }

func (s sliceSource) FindCandidates(ctx context.Context, ids models.RegistryIdentifiers) ([]models.RegistryRecord, error) {
	return s.records, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *captureNotifier) {
	t.Helper()
	r, _, notifier := newTestEngine(t)
	return r, notifier
}

func newTestEngine(t *testing.T) (*gin.Engine, *Engine, *captureNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ok, tampered := vehicle(1, "VIN-OK"), vehicle(2, "VIN-TAMPERED")
	changed := onLedger(tampered)
	changed.ChassisNumber = "CH-OTHER"
	vehicles := &memVehicles{list: []models.Vehicle{ok, tampered}}
	ledger := &memLedger{records: map[string]*models.LedgerRecord{"VIN-OK": onLedger(ok), "VIN-TAMPERED": changed}}
	notifier := &captureNotifier{}

	checker := integrity.NewChecker(vehicles, ledger)
	reg := registry.NewService([]registry.Source{
		sliceSource{registryType: models.RegistryTypeInsurance, records: []models.RegistryRecord{
			{RegistryType: models.RegistryTypeInsurance, PlateNumber: ok.PlateNumber, Status: models.RegistryRecordStatusActive},
		}},
	}, registry.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }))
	scorer := authenticity.NewScorer(reg, 0.6, nil)
	engine := NewEngine(NewOrchestrator(vehicles, checker, notifier), checker, scorer, reg)

	r := gin.New()
	RegisterRoutes(r, engine)
	return r, engine, notifier
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTriggerSyncHandler(t *testing.T) {
	r, notifier := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/integrity/sync", "")
	require.Equal(t, http.StatusOK, w.Code)

	var run models.SyncRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, 2, run.TotalChecked)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 1, run.Mismatched)
	assert.True(t, run.Success)
	assert.Equal(t, "api", run.TriggeredBy)
	assert.Len(t, notifier.reports, 1)
}

func TestTriggerSyncHandler_Async(t *testing.T) {
	r, engine, notifier := newTestEngine(t)

	start, err := engine.ReserveFullSync(context.Background())
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/integrity/sync?async=true", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), SyncInProgressMessage)

	_, err = start(context.Background())
	require.NoError(t, err)
	require.False(t, engine.SyncRunning())

	w = do(r, http.MethodPost, "/api/integrity/sync?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var body struct {
		Status        string `json:"status"`
		CorrelationId string `json:"correlationId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "started", body.Status)
	assert.NotEmpty(t, body.CorrelationId)

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.reports) == 2 && !engine.SyncRunning()
	}, 2*time.Second, 10*time.Millisecond)
	notifier.mu.Lock()
	assert.Equal(t, body.CorrelationId, notifier.reports[1].Run.CorrelationId)
	notifier.mu.Unlock()
}

func TestCheckVehicleHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/integrity/vehicles/VIN-TAMPERED", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res models.IntegrityCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.IntegrityStatusTampered, res.Status)
	assert.NotEmpty(t, res.Comparisons)

	w = do(r, http.MethodGet, "/api/integrity/vehicles/NOPE", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScoreDocumentHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/documents/score", `{"vin":"VIN-OK","extractedFields":{"VIN":"VIN-OTHER","document_type":"insurance"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var v models.AuthenticityVerdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.False(t, v.Authentic)
	assert.Equal(t, 0, v.AuthenticityScore)
	assert.Contains(t, v.Reason, "VIN Mismatch")

	w = do(r, http.MethodPost, "/api/documents/score", `{"vin":"VIN-OK","extractedFields":{"vin":{"value":"vin-ok","confidence":97}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.True(t, v.Authentic)
	assert.Equal(t, 100, v.AuthenticityScore)

	w = do(r, http.MethodPost, "/api/documents/score", `{"vin":"VIN-OK"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/documents/score", `{"vin":"UNKNOWN","extractedFields":{}}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegistryLookupHandler(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/registry/lookup", `{"registryType":"insurance","plateNumber":"abc 101"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res models.RegistryLookupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.RegistryLookupValid, res.Status)

	w = do(r, http.MethodPost, "/api/registry/lookup", `{"registryType":"parking","plateNumber":"abc 101"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "oneof")

	w = do(r, http.MethodPost, "/api/registry/lookup", `{"registryType":"INSURANCE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPubSubPushHandler(t *testing.T) {
	r, notifier := newTestRouter(t)

	data := base64.StdEncoding.EncodeToString([]byte(`{"triggered_by":"cloud-scheduler"}`))
	w := do(r, http.MethodPost, "/pubsub/integrity-sync", `{"message":{"data":"`+data+`","messageId":"42"},"subscription":"s"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, notifier.reports, 1)
	assert.Equal(t, "pubsub-42", notifier.reports[0].Run.CorrelationId)
	assert.Equal(t, "cloud-scheduler", notifier.reports[0].Run.TriggeredBy)

	w = do(r, http.MethodPost, "/pubsub/integrity-sync", `not json`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, notifier.reports, 1)
}
