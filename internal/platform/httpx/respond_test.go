package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("lookup: %w", shared.ErrNotFound), http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var problem ProblemDetail
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
		assert.Equal(t, tc.status, problem.Status)
	}
}

func TestDecodeJSON(t *testing.T) {
	type form struct {
		Email string `json:"email"`
	}

	var ok form
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"ana@example.com"}`))
	require.NoError(t, DecodeJSON(req, &ok))
	assert.Equal(t, "ana@example.com", ok.Email)

	for _, body := range []string{`{"email":"a","role":"admin"}`, `{"email":"a"}{"email":"b"}`, `not json`} {
		var f form
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		assert.Error(t, DecodeJSON(req, &f), body)
	}
}
