package engine

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func adminServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	srv := httptest.NewServer(f.engine.adminHandler())
	t.Cleanup(srv.Close)
	return f, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestAdmin_StatusListsDocuments(t *testing.T) {
	f, srv := adminServer(t)
	_, err := f.engine.CreateLocal(t.Context(), testAddress("st"))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []DocumentStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
	require.Len(t, statuses, 1)
	require.Equal(t, testAddress("st"), statuses[0].Address)
	require.True(t, statuses[0].Local)
}

func TestAdmin_CreateAndConflict(t *testing.T) {
	_, srv := adminServer(t)
	address := testAddress("cr")

	resp := postJSON(t, srv.URL+"/documents", addressRequest{Address: address})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/documents", addressRequest{Address: address})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAdmin_FollowUnfollow(t *testing.T) {
	f, srv := adminServer(t)
	address := testAddress("fw")

	resp := postJSON(t, srv.URL+"/follow", addressRequest{Address: address})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, f.watch.Watched(address))

	resp = postJSON(t, srv.URL+"/unfollow", addressRequest{Address: address})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.False(t, f.watch.Watched(address))

	resp = postJSON(t, srv.URL+"/unfollow", addressRequest{Address: address})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_RescueUnknownDocument(t *testing.T) {
	_, srv := adminServer(t)

	resp := postJSON(t, srv.URL+"/rescue", rescueRequest{Address: testAddress("nx"), Edition: 1})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdmin_SettingsAdjustInsertionDelay(t *testing.T) {
	f, srv := adminServer(t)

	body := bytes.NewBufferString(`{"insertion_delay":"30s"}`)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/settings", body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Equal(t, 30*time.Second, f.engine.Settings().InsertionDelay())
}

func TestAdmin_MalformedBodyRejected(t *testing.T) {
	_, srv := adminServer(t)

	resp, err := http.Post(srv.URL+"/follow", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
