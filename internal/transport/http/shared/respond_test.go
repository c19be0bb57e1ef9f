package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "tessera/pkg/domain-errors"
)

type RespondSuite struct {
	suite.Suite
}

func TestRespondSuite(t *testing.T) {
	suite.Run(t, new(RespondSuite))
}

func (s *RespondSuite) decode(rec *httptest.ResponseRecorder) (string, string) {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func (s *RespondSuite) TestWriteError() {
	s.Run("domain errors map to their status and envelope", func() {
		cases := []struct {
			code   dErrors.Code
			status int
		}{
			{dErrors.CodeInvalidInput, http.StatusBadRequest},
			{dErrors.CodeNotFound, http.StatusNotFound},
			{dErrors.CodeConflict, http.StatusConflict},
			{dErrors.CodeLocked, http.StatusConflict},
			{dErrors.CodeAccessDenied, http.StatusForbidden},
			{dErrors.CodeConsentRequired, http.StatusForbidden},
			{dErrors.CodeInternal, http.StatusInternalServerError},
		}
		for _, tc := range cases {
			rec := httptest.NewRecorder()
			WriteError(rec, dErrors.New(tc.code, "boom"))
			s.Equal(tc.status, rec.Code, string(tc.code))
			code, message := s.decode(rec)
			s.Equal(string(tc.code), code)
			s.Equal("boom", message)
		}
	})

	s.Run("non-domain errors never leak their message", func() {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("pq: connection refused"))
		s.Equal(http.StatusInternalServerError, rec.Code)
		code, message := s.decode(rec)
		s.Equal(string(dErrors.CodeInternal), code)
		s.Equal("internal error", message)
	})
}

func (s *RespondSuite) TestWriteJSON() {
	s.Run("writes the status and content type", func() {
		rec := httptest.NewRecorder()
		WriteJSON(rec, http.StatusCreated, map[string]string{"status": "ok"})
		s.Equal(http.StatusCreated, rec.Code)
		s.Equal("application/json", rec.Header().Get("Content-Type"))
		s.JSONEq(`{"status":"ok"}`, rec.Body.String())
	})

	s.Run("nil body writes only the status", func() {
		rec := httptest.NewRecorder()
		WriteJSON(rec, http.StatusNoContent, nil)
		s.Equal(http.StatusNoContent, rec.Code)
		s.Zero(rec.Body.Len())
	})
}
