package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/planwell/calendar-sync/internal/dto"
)

func (s *Suite) authToken(userID string) string {
	token, err := s.JWTManager.GenerateAccessToken(userID, "user@example.com", 15*time.Minute)
	s.Require().NoError(err, "Failed to generate access token")
	return token
}

func (s *Suite) seedCredential(userID, status string) {
	query := `
		INSERT INTO calendar_credentials
			(id, user_id, provider, account_email, access_token, refresh_token, token_expires_at, status)
		VALUES ($1, $2, 'google', 'user@gmail.com', 'sealed-access', 'sealed-refresh', $3, $4)
	`
	_, err := s.Postgres.DB.Exec(query, uuid.New().String(), userID, time.Now().Add(time.Hour), status)
	s.Require().NoError(err, "Failed to seed credential")
}

func (s *Suite) seedMapping(userID string) {
	query := `
		INSERT INTO sync_mappings
			(id, user_id, entity_kind, entity_id, event_id, calendar_id, last_synced_at)
		VALUES ($1, $2, 'goal', $3, $4, 'primary', NOW())
	`
	_, err := s.Postgres.DB.Exec(query, uuid.New().String(), userID, uuid.New().String(), uuid.New().String())
	s.Require().NoError(err, "Failed to seed mapping")
}

func (s *Suite) doJSON(method, path, token string, body interface{}) *http.Response {
	var buf *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, s.BaseURL+path, buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) TestStatus_NoToken() {
	resp, err := http.Get(s.BaseURL + "/api/v1/calendar/status")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestStatus_InvalidToken() {
	resp := s.doJSON("GET", "/api/v1/calendar/status", "invalid-token", nil)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestStatus_NotConnected() {
	userID := uuid.New().String()

	resp := s.doJSON("GET", "/api/v1/calendar/status", s.authToken(userID), nil)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var status dto.StatusResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&status))
	s.False(status.Connected)
}

func (s *Suite) TestStatus_Connected() {
	userID := uuid.New().String()
	s.seedCredential(userID, "active")

	resp := s.doJSON("GET", "/api/v1/calendar/status", s.authToken(userID), nil)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var status dto.StatusResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&status))
	s.True(status.Connected)
	s.Equal("active", status.Status)
	s.Equal("user@gmail.com", status.AccountEmail)
	s.Nil(status.LastError)
}

func (s *Suite) TestPauseAndResume() {
	userID := uuid.New().String()
	s.seedCredential(userID, "active")
	token := s.authToken(userID)

	pauseResp := s.doJSON("POST", "/api/v1/calendar/pause", token, nil)
	pauseResp.Body.Close()
	s.Equal(http.StatusOK, pauseResp.StatusCode)

	statusResp := s.doJSON("GET", "/api/v1/calendar/status", token, nil)
	var status dto.StatusResponse
	s.Require().NoError(json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	s.Equal("paused", status.Status)

	resumeResp := s.doJSON("POST", "/api/v1/calendar/resume", token, nil)
	resumeResp.Body.Close()
	s.Equal(http.StatusOK, resumeResp.StatusCode)

	statusResp = s.doJSON("GET", "/api/v1/calendar/status", token, nil)
	s.Require().NoError(json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	s.Equal("active", status.Status)
}

func (s *Suite) TestPause_NotConnected() {
	resp := s.doJSON("POST", "/api/v1/calendar/pause", s.authToken(uuid.New().String()), nil)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestDisconnect() {
	userID := uuid.New().String()
	s.seedCredential(userID, "active")
	s.seedMapping(userID)
	token := s.authToken(userID)

	resp := s.doJSON("DELETE", "/api/v1/calendar/connection", token, nil)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	statusResp := s.doJSON("GET", "/api/v1/calendar/status", token, nil)
	var status dto.StatusResponse
	s.Require().NoError(json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	s.False(status.Connected)

	var mappings int
	err := s.Postgres.DB.QueryRow(`SELECT COUNT(*) FROM sync_mappings WHERE user_id = $1`, userID).Scan(&mappings)
	s.Require().NoError(err)
	s.Zero(mappings, "Disconnect should clear the mapping ledger")
}

func (s *Suite) TestDisconnect_NotConnected() {
	resp := s.doJSON("DELETE", "/api/v1/calendar/connection", s.authToken(uuid.New().String()), nil)
	defer resp.Body.Close()

	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestTriggerSync_Full() {
	userID := uuid.New().String()
	s.seedCredential(userID, "active")

	resp := s.doJSON("POST", "/api/v1/calendar/sync", s.authToken(userID), dto.SyncTriggerRequest{Full: true})
	defer resp.Body.Close()

	s.Equal(http.StatusAccepted, resp.StatusCode)
}

func (s *Suite) TestTriggerSync_Entity() {
	userID := uuid.New().String()
	s.seedCredential(userID, "active")

	req := dto.SyncTriggerRequest{
		EntityKind: "goal",
		EntityID:   uuid.New().String(),
	}
	resp := s.doJSON("POST", "/api/v1/calendar/sync", s.authToken(userID), req)
	defer resp.Body.Close()

	s.Equal(http.StatusAccepted, resp.StatusCode)
}

func (s *Suite) TestTriggerSync_UnknownKind() {
	req := dto.SyncTriggerRequest{
		EntityKind: "daily_standup",
		EntityID:   uuid.New().String(),
	}
	resp := s.doJSON("POST", "/api/v1/calendar/sync", s.authToken(uuid.New().String()), req)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestTriggerSync_RateLimited() {
	userID := uuid.New().String()
	s.seedCredential(userID, "active")
	token := s.authToken(userID)

	var last int
	for i := 0; i < 11; i++ {
		resp := s.doJSON("POST", "/api/v1/calendar/sync", token, dto.SyncTriggerRequest{Full: true})
		last = resp.StatusCode
		resp.Body.Close()
	}

	s.Equal(http.StatusTooManyRequests, last)
}
