// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the knowledge document handlers

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
)

func TestCreateRuleDocument_IngestsChunks(t *testing.T) {
	store := knowledge.NewMemoryRuleStore()
	ing := knowledge.NewIngestor(store, nil)
	audit := &captureAudit{}

	handler := CreateRuleDocument(ing, extensions.DefaultOptions().WithAudit(audit))
	w := postJSON(t, handler, "/v1/documents", map[string]any{
		"content": "OLT maintenance guidance. Check service counts before any reboot.",
		"source":  "runbooks/olt-maintenance.md",
		"title":   "OLT Maintenance",
		"domain":  "network_health",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"success"`)
	assert.Contains(t, w.Body.String(), "runbooks/olt-maintenance.md")
	assert.Greater(t, store.Len(), 0)
	assert.Contains(t, audit.eventTypes(), "knowledge.ingest")
}

func TestCreateRuleDocument_MissingSource(t *testing.T) {
	ing := knowledge.NewIngestor(knowledge.NewMemoryRuleStore(), nil)

	handler := CreateRuleDocument(ing, extensions.DefaultOptions())
	w := postJSON(t, handler, "/v1/documents", map[string]any{
		"content": "guidance without a source",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "required")
}

func TestCreateRuleDocument_AuthorizationDenied(t *testing.T) {
	ing := knowledge.NewIngestor(knowledge.NewMemoryRuleStore(), nil)

	handler := CreateRuleDocument(ing, extensions.DefaultOptions().WithAuthz(denyAllAuthz{}))
	w := postJSON(t, handler, "/v1/documents", map[string]any{
		"content": "guidance",
		"source":  "runbooks/denied.md",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteRuleDocuments_RemovesSource(t *testing.T) {
	store := knowledge.NewMemoryRuleStore()
	ing := knowledge.NewIngestor(store, nil)

	create := CreateRuleDocument(ing, extensions.DefaultOptions())
	w := postJSON(t, create, "/v1/documents", map[string]any{
		"content": "temporary guidance",
		"source":  "runbooks/tmp.md",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Greater(t, store.Len(), 0)

	router := gin.New()
	router.DELETE("/v1/documents", DeleteRuleDocuments(nil, store, extensions.DefaultOptions()))

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/documents?source=runbooks%2Ftmp.md", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, store.Len())
}

func TestDeleteRuleDocuments_MissingSource(t *testing.T) {
	router := gin.New()
	router.DELETE("/v1/documents",
		DeleteRuleDocuments(nil, knowledge.NewMemoryRuleStore(), extensions.DefaultOptions()))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/documents", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
