package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/edgewatch/internal/config"
	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
)

func storageForConfig(t *testing.T, dataProtect bool) *Application {
	t.Helper()
	app := &Application{
		Config: &config.Config{
			DBPath:            "file:app_" + t.Name() + "?mode=memory&cache=shared",
			EnableDataProtect: dataProtect,
		},
		logger: slog.Default(),
	}
	require.NoError(t, app.initStorage())
	t.Cleanup(func() { app.store.Close() })
	return app
}

func appendDetailed(t *testing.T, app *Application) int64 {
	t.Helper()
	event, err := domain.NewThreatEvent(domain.ThreatDDoS, 85, domain.SeverityHigh,
		"203.0.113.66", "camera-001", map[string]any{"packet_count": float64(400)}, time.Now().UTC())
	require.NoError(t, err)
	id := app.store.Append(event)
	require.NotEqual(t, ports.SentinelID, id)
	return id
}

func TestInitStorage_DataProtectionScrubsRawDetails(t *testing.T) {
	app := storageForConfig(t, true)
	id := appendDetailed(t, app)

	got, err := app.store.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, got.Details, "data protection on must drop the raw detail payload")
	assert.Equal(t, "camera-001", got.Target, "structured columns survive the scrub")
}

func TestInitStorage_NoDataProtectionKeepsRawDetails(t *testing.T) {
	app := storageForConfig(t, false)
	id := appendDetailed(t, app)

	got, err := app.store.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, got.Details)
	assert.Equal(t, float64(400), got.Details["packet_count"])
}
