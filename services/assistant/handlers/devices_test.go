// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the device listing and detail handlers

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRequest(handler gin.HandlerFunc, route, path string) *httptest.ResponseRecorder {
	router := gin.New()
	router.GET(route, handler)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestListNetworkDevices_All(t *testing.T) {
	w := getRequest(ListNetworkDevices(newTestInventory()), "/v1/devices", "/v1/devices")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Devices []map[string]any `json:"devices"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Len(t, resp.Devices, 3)
}

func TestListNetworkDevices_RegionFilter(t *testing.T) {
	w := getRequest(ListNetworkDevices(newTestInventory()), "/v1/devices", "/v1/devices?region=hobo")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestListNetworkDevices_InvalidRegion(t *testing.T) {
	w := getRequest(ListNetworkDevices(newTestInventory()), "/v1/devices", "/v1/devices?region=h%24o")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDeviceDetails_WithHealth(t *testing.T) {
	handler := GetDeviceDetails(newTestInventory(), newTestEngine())
	w := getRequest(handler, "/v1/devices/:deviceId", "/v1/devices/OLT17PROP01")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Device map[string]any `json:"device"`
		Health map[string]any `json:"health"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "OLT17PROP01", resp.Device["device_id"])
	require.NotNil(t, resp.Health)
	assert.Equal(t, "CRITICAL", resp.Health["status"])
}

func TestGetDeviceDetails_WithoutEngine(t *testing.T) {
	handler := GetDeviceDetails(newTestInventory(), nil)
	w := getRequest(handler, "/v1/devices/:deviceId", "/v1/devices/OLT18PROP02")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), `"health"`)
}

func TestGetDeviceDetails_NotFound(t *testing.T) {
	handler := GetDeviceDetails(newTestInventory(), newTestEngine())
	w := getRequest(handler, "/v1/devices/:deviceId", "/v1/devices/OLT99MISS77")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "device not found")
}

func TestGetDeviceDetails_MalformedID(t *testing.T) {
	handler := GetDeviceDetails(newTestInventory(), newTestEngine())
	w := getRequest(handler, "/v1/devices/:deviceId", "/v1/devices/bad%20id")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
