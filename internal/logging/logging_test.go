package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLogErrorWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput("info", "json", &buf)

	LogError(logger, "service", "AllocatePayment", "apply slice", map[string]string{"phone": "+923001234567"}, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "boom", entry["msg"])
	require.Equal(t, "service", entry["module"])
	require.Equal(t, "AllocatePayment", entry["funcName"])
	require.Equal(t, "apply slice", entry["context"])
	require.NotNil(t, entry["data"])
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("loud", "text")
	require.Equal(t, logrus.InfoLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
}
