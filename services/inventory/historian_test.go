// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the device health historian

package inventory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// --- Mock InfluxDB WriteAPI ---

type MockWriteAPI struct {
	WritePointFunc func(ctx context.Context, point ...*write.Point) error
	WrittenPoints  []*write.Point
}

func (m *MockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.WrittenPoints = append(m.WrittenPoints, point...)
	if m.WritePointFunc != nil {
		return m.WritePointFunc(ctx, point...)
	}
	return nil
}

func (m *MockWriteAPI) WriteRecord(ctx context.Context, line ...string) error {
	return nil
}

func (m *MockWriteAPI) EnableBatching()                 {}
func (m *MockWriteAPI) Flush(ctx context.Context) error { return nil }

// --- Mock InfluxDB QueryAPI ---

type MockQueryAPI struct {
	QueryFunc func(ctx context.Context, query string) (*api.QueryTableResult, error)
	Queries   []string
}

func (m *MockQueryAPI) Query(ctx context.Context, q string) (*api.QueryTableResult, error) {
	m.Queries = append(m.Queries, q)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockQueryAPI) QueryRaw(ctx context.Context, query string, dialect *domain.Dialect) (string, error) {
	return "", nil
}

func (m *MockQueryAPI) QueryRawWithParams(ctx context.Context, query string, dialect *domain.Dialect, params interface{}) (string, error) {
	return "", nil
}

func (m *MockQueryAPI) QueryWithParams(ctx context.Context, query string, params interface{}) (*api.QueryTableResult, error) {
	return nil, nil
}

// --- Test Fixtures ---

func createTestHistorian() (*Historian, *MockWriteAPI, *MockQueryAPI) {
	mockWrite := &MockWriteAPI{}
	mockQuery := &MockQueryAPI{}

	historian := &Historian{
		WriteAPI: mockWrite,
		QueryAPI: mockQuery,
		Bucket:   "device-health",
	}

	return historian, mockWrite, mockQuery
}

func criticalResult() *decision.DecisionResult {
	return &decision.DecisionResult{
		Status: decision.SeverityCritical,
		Score:  50,
		Risk:   decision.RiskMedium,
	}
}

// --- WriteHealthSample Tests ---

func TestWriteHealthSample_Success(t *testing.T) {
	historian, mockWrite, _ := createTestHistorian()
	device := testDevice()

	err := historian.WriteHealthSample(context.Background(), device, criticalResult())

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(mockWrite.WrittenPoints) != 1 {
		t.Fatalf("Expected 1 written point, got %d", len(mockWrite.WrittenPoints))
	}

	point := mockWrite.WrittenPoints[0]
	if point.Name() != "device_health" {
		t.Errorf("Expected measurement device_health, got %s", point.Name())
	}

	tags := make(map[string]string)
	for _, tag := range point.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device_id"] != "OLT17PROP01" {
		t.Errorf("Expected device_id tag OLT17PROP01, got %q", tags["device_id"])
	}
	if tags["region"] != "HOBO" {
		t.Errorf("Expected region tag HOBO, got %q", tags["region"])
	}

	fields := make(map[string]interface{})
	for _, field := range point.FieldList() {
		fields[field.Key] = field.Value
	}
	if score, ok := fields["score"].(float64); !ok || score != 50 {
		t.Errorf("Expected score field 50, got %v", fields["score"])
	}
	if status, ok := fields["status"].(string); !ok || status != "CRITICAL" {
		t.Errorf("Expected status field CRITICAL, got %v", fields["status"])
	}
}

func TestWriteHealthSample_WriteError(t *testing.T) {
	historian, mockWrite, _ := createTestHistorian()
	mockWrite.WritePointFunc = func(ctx context.Context, point ...*write.Point) error {
		return errors.New("database write failed")
	}

	err := historian.WriteHealthSample(context.Background(), testDevice(), criticalResult())

	if err == nil || !strings.Contains(err.Error(), "database write failed") {
		t.Errorf("Expected write error, got %v", err)
	}
}

func TestWriteHealthSample_NilGuards(t *testing.T) {
	historian, mockWrite, _ := createTestHistorian()

	if err := historian.WriteHealthSample(context.Background(), nil, criticalResult()); err == nil {
		t.Error("Expected error for nil device")
	}
	if err := historian.WriteHealthSample(context.Background(), testDevice(), nil); err == nil {
		t.Error("Expected error for nil result")
	}
	if len(mockWrite.WrittenPoints) != 0 {
		t.Errorf("Expected no points written, got %d", len(mockWrite.WrittenPoints))
	}
}

// --- HealthHistory Tests ---

func TestHealthHistory_QueryShape(t *testing.T) {
	historian, _, mockQuery := createTestHistorian()

	samples, err := historian.HealthHistory(context.Background(), "olt17prop01", 14)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("Expected empty history for nil result, got %d samples", len(samples))
	}
	if len(mockQuery.Queries) != 1 {
		t.Fatalf("Expected 1 query, got %d", len(mockQuery.Queries))
	}

	q := mockQuery.Queries[0]
	if !strings.Contains(q, `bucket: "device-health"`) {
		t.Errorf("Expected bucket in query, got: %s", q)
	}
	if !strings.Contains(q, "-14d") {
		t.Errorf("Expected 14 day range, got: %s", q)
	}
	if !strings.Contains(q, `r.device_id == "OLT17PROP01"`) {
		t.Errorf("Expected sanitized device filter, got: %s", q)
	}
	if !strings.Contains(q, "pivot") {
		t.Errorf("Expected pivot in query, got: %s", q)
	}
}

func TestHealthHistory_DefaultDays(t *testing.T) {
	historian, _, mockQuery := createTestHistorian()

	if _, err := historian.HealthHistory(context.Background(), "OLT17PROP01", 0); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(mockQuery.Queries[0], "-7d") {
		t.Errorf("Expected default 7 day range, got: %s", mockQuery.Queries[0])
	}
}

func TestHealthHistory_QueryError(t *testing.T) {
	historian, _, mockQuery := createTestHistorian()
	mockQuery.QueryFunc = func(ctx context.Context, q string) (*api.QueryTableResult, error) {
		return nil, errors.New("database connection failed")
	}

	_, err := historian.HealthHistory(context.Background(), "OLT17PROP01", 7)

	if err == nil || !strings.Contains(err.Error(), "database connection failed") {
		t.Errorf("Expected query error, got %v", err)
	}
}

func TestHealthHistory_InvalidDeviceID(t *testing.T) {
	historian, _, mockQuery := createTestHistorian()

	_, err := historian.HealthHistory(context.Background(), `OLT01") |> drop()`, 7)

	if err == nil {
		t.Error("Expected validation error for injection attempt")
	}
	if len(mockQuery.Queries) != 0 {
		t.Errorf("Expected no query issued, got %d", len(mockQuery.Queries))
	}
}

// --- Interface Compliance Tests ---

func TestHistorianMocks_InterfaceCompliance(t *testing.T) {
	var _ api.WriteAPIBlocking = (*MockWriteAPI)(nil)
	var _ api.QueryAPI = (*MockQueryAPI)(nil)
}
