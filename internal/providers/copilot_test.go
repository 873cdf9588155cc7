package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newMockedCopilot(t *testing.T) (*CopilotBackend, *MockcopilotClient, *MockcopilotSession) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	b := NewCopilotBackend(&CopilotBackendOptions{
		NewCopilotClient: func(clientOptions *copilot.ClientOptions) copilotClient {
			assert.Equal(t, "error", clientOptions.LogLevel)
			return clientMock
		},
	})
	return b, clientMock, sessionMock
}

func TestCopilotBackend_FinalMessage(t *testing.T) {
	b, clientMock, sessionMock := newMockedCopilot(t)

	unregisterCount := 0
	unregister := func() { unregisterCount++ }

	clientMock.EXPECT().Start(gomock.Any()).Times(1)
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, cfg *copilot.SessionConfig) (copilotSession, error) {
			assert.Equal(t, "gpt-4.1", cfg.Model)
			require.NotNil(t, cfg.OnPermissionRequest)
			return sessionMock, nil
		})
	clientMock.EXPECT().Stop()

	sessionMock.EXPECT().On(gomock.Any()).Times(4).Return(unregister)

	final := &copilot.SessionEvent{Type: copilot.AssistantMessage}
	content := "The answer is A"
	final.Data.Content = &content
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, opts copilot.MessageOptions) (*copilot.SessionEvent, error) {
			assert.Equal(t, "Be terse\n\nWhich?", opts.Prompt)
			return final, nil
		})

	for range 2 {
		c, err := b.Complete(context.Background(), Request{Model: "gpt-4.1", System: "Be terse", Input: "Which?"})
		require.NoError(t, err)
		assert.Equal(t, "The answer is A", c.Text)
	}
	require.NoError(t, b.Close())
	assert.Equal(t, 4, unregisterCount)
}

func TestCopilotBackend_CollectsStreamedParts(t *testing.T) {
	b, clientMock, sessionMock := newMockedCopilot(t)

	var handlers []copilot.SessionEventHandler
	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil)
	sessionMock.EXPECT().On(gomock.Any()).Times(2).DoAndReturn(func(h copilot.SessionEventHandler) func() {
		handlers = append(handlers, h)
		return func() {}
	})
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, copilot.MessageOptions) (*copilot.SessionEvent, error) {
			for _, text := range []string{"Answer: ", "B"} {
				ev := copilot.SessionEvent{Type: copilot.AssistantMessage}
				ev.Data.Content = &text
				for _, h := range handlers {
					h(ev)
				}
			}
			return &copilot.SessionEvent{}, nil
		})

	c, err := b.Complete(context.Background(), Request{Model: "claude-sonnet-4", Input: "Which?"})
	require.NoError(t, err)
	assert.Equal(t, "Answer: B", c.Text)
}

func TestCopilotBackend_StartFailure(t *testing.T) {
	b, clientMock, _ := newMockedCopilot(t)
	clientMock.EXPECT().Start(gomock.Any()).Return(errors.New("cli not found"))

	_, err := b.Complete(context.Background(), Request{Model: "gpt-4.1", Input: "x"})
	require.ErrorContains(t, err, "cli not found")

	// start is attempted once
	_, err = b.Complete(context.Background(), Request{Model: "gpt-4.1", Input: "x"})
	require.ErrorContains(t, err, "copilot failed to start")
}

func TestCopilotBackend_SendError(t *testing.T) {
	b, clientMock, sessionMock := newMockedCopilot(t)
	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil)
	sessionMock.EXPECT().On(gomock.Any()).Times(2).Return(func() {})
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).Return(nil, errors.New("session error"))

	_, err := b.Complete(context.Background(), Request{Model: "gpt-4.1", Input: "x"})
	require.EqualError(t, err, "session error")
}

func TestLogSessionEvent(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	logSessionEvent(copilot.SessionEvent{Type: copilot.AssistantMessage})
	assert.Equal(t, 0, buf.Len())

	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	content := "hello"
	ev := copilot.SessionEvent{Type: copilot.AssistantMessage}
	ev.Data.Content = &content
	logSessionEvent(ev)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "copilot event", entry["msg"])
	assert.Equal(t, "hello", entry["content"])
	assert.NotContains(t, entry, "reasoningText")
}

func TestDenyAllTools(t *testing.T) {
	res, err := denyAllTools(copilot.PermissionRequest{}, copilot.PermissionInvocation{})
	require.NoError(t, err)
	assert.Equal(t, "denied-interactively-by-user", string(res.Kind))
}
