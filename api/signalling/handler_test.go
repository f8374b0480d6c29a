package signalling

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshi-labs/moshi-voice/internal/commons"
)

type fakeCaller struct {
	answer string
	err    error
}

func (f *fakeCaller) Offer(offerSDP string) (string, error) {
	return f.answer, f.err
}

func newTestEngine(t *testing.T, caller Caller) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	h := New(commons.NewNop(), func() Caller { return caller })
	h.Register(engine)
	return engine
}

func TestNewCallReturnsAnswer(t *testing.T) {
	engine := newTestEngine(t, &fakeCaller{answer: "v=0 answer-sdp"})

	req := httptest.NewRequest(http.MethodPost, "/call/new", bytes.NewBufferString(`{"sdp":"v=0 offer-sdp","type":"offer"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "v=0 answer-sdp")
	assert.Contains(t, rec.Body.String(), `"answer"`)
}

func TestNewCallRejectsInvalidJSON(t *testing.T) {
	engine := newTestEngine(t, &fakeCaller{})

	req := httptest.NewRequest(http.MethodPost, "/call/new", bytes.NewBufferString(`not json`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNewCallRejectsNonOfferType(t *testing.T) {
	engine := newTestEngine(t, &fakeCaller{})

	req := httptest.NewRequest(http.MethodPost, "/call/new", bytes.NewBufferString(`{"sdp":"x","type":"answer"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewCallReturns500OnNegotiationFailure(t *testing.T) {
	engine := newTestEngine(t, &fakeCaller{err: errors.New("boom")})

	req := httptest.NewRequest(http.MethodPost, "/call/new", bytes.NewBufferString(`{"sdp":"x","type":"offer"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthzReturnsOK(t *testing.T) {
	engine := newTestEngine(t, &fakeCaller{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
