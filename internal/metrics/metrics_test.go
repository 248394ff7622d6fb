package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	Resolutions.WithLabelValues("cached").Inc()
	Published.WithLabelValues("affiliate").Inc()
	Rejected.WithLabelValues("seen").Add(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `promobot_affiliate_resolutions_total{outcome="cached"}`)
	assert.Contains(t, body, `promobot_published_total{link="affiliate"}`)
	assert.Contains(t, body, `promobot_candidates_rejected_total{stage="seen"}`)
}
