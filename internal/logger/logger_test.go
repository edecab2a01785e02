package logger

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel(DefaultLevel)

	SetLevel("debug")
	assert.True(t, IsDebug())

	SetLevel("not-a-level")
	assert.False(t, IsDebug())

	SetLevel("")
	assert.False(t, IsDebug())
}

func TestAPILoggerLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Init(DefaultLevel)

	app := fiber.New()
	app.Use(APILogger())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusTeapot)
	}).Name("Ping")

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Request", entry["msg"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/ping", entry["path"])
	assert.Equal(t, "Ping", entry["handler"])
	assert.EqualValues(t, fiber.StatusTeapot, entry["status"])
}
