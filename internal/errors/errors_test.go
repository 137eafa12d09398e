package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCauseAndCode(t *testing.T) {
	err := Wrap(CodeOrchestrationFailure, context.DeadlineExceeded, "")
	wrapped := fmt.Errorf("turn: %w", err)

	assert.True(t, stdErrors.Is(wrapped, context.DeadlineExceeded))
	assert.True(t, stdErrors.Is(wrapped, New(CodeOrchestrationFailure, "other")))
	assert.False(t, stdErrors.Is(wrapped, New(CodeToolFailure, "")))
	assert.Equal(t, CodeOrchestrationFailure, CodeOf(wrapped))
	assert.Equal(t, "agent request failed", err.Message())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(stdErrors.New("boom")))
	assert.Equal(t, SeverityCritical, SeverityOf(stdErrors.New("boom")))
}

func TestSeverityOverride(t *testing.T) {
	err := New(CodeToolFailure, "", WithSeverity(SeverityCritical))
	assert.Equal(t, SeverityCritical, err.Severity())
	assert.Equal(t, SeverityWarning, New(CodeToolFailure, "").Severity())
}

func TestLogLevelFollowsSeverity(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogLevel(New(CodeInvalidArgument, "")))
	assert.Equal(t, slog.LevelWarn, LogLevel(fmt.Errorf("x: %w", New(CodeChainFailure, ""))))
	assert.Equal(t, slog.LevelError, LogLevel(New(CodeInitializationFailure, "")))
	assert.Equal(t, slog.LevelError, LogLevel(stdErrors.New("raw")))
	assert.Equal(t, slog.LevelInfo, LogLevel(New(CodeOrchestrationFailure, "", WithSeverity(SeverityInfo))))
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(CodeToolFailure, "missing", WithMetadata("session", "s-1"))
	meta := err.Metadata()
	require.Equal(t, "s-1", meta["session"])
	meta["session"] = "changed"
	assert.Equal(t, "s-1", err.Metadata()["session"])
}

func TestOperatorMessage(t *testing.T) {
	internal := Wrap(CodeOrchestrationFailure, stdErrors.New("401 invalid api key sk-..."), "OpenAI 请求失败")
	assert.Equal(t, "agent request failed", OperatorMessage(internal))

	visible := New(CodeInvalidArgument, "message cannot be empty")
	assert.Equal(t, "message cannot be empty", OperatorMessage(visible))

	assert.Equal(t, "unknown error", OperatorMessage(stdErrors.New("raw")))
	assert.Empty(t, OperatorMessage(nil))
}
