package responder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/emailflow/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMock_CyclesReplies(t *testing.T) {
	m := NewMock(0, 0, 0)
	ctx := context.Background()

	var got []string
	for i := 0; i < len(cannedReplies)+1; i++ {
		text, err := m.Generate(ctx, "Invoice", "body")
		require.NoError(t, err)
		got = append(got, text)
	}
	require.Equal(t, "Re: Invoice\n\n"+cannedReplies[0], got[0])
	require.Equal(t, "Re: Invoice\n\n"+cannedReplies[1], got[1])
	require.Equal(t, got[0], got[len(cannedReplies)])
}

func TestMock_DelayIsClamped(t *testing.T) {
	m := NewMock(20*time.Millisecond, 30*time.Millisecond, 25*time.Millisecond)
	for i := 0; i < 200; i++ {
		d := m.delay()
		require.GreaterOrEqual(t, d, 20*time.Millisecond)
		require.LessOrEqual(t, d, 30*time.Millisecond)
	}

	start := time.Now()
	_, err := m.Generate(context.Background(), "s", "b")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMock_HonorsCancellation(t *testing.T) {
	m := NewMock(time.Second, time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Generate(ctx, "s", "b")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew(t *testing.T) {
	g, err := New(Config{Kind: KindMock}, testLogger())
	require.NoError(t, err)
	require.IsType(t, &Mock{}, g)

	_, err = New(Config{Kind: KindOpenAI}, testLogger())
	require.Error(t, err, "openai without key")

	g, err = New(Config{Kind: KindOpenAI, OpenAIKey: "sk-test", OpenAIModel: "gpt-4o-mini"}, testLogger())
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", g.(*OpenAI).Model)

	_, err = New(Config{Kind: "carrier-pigeon"}, testLogger())
	require.Error(t, err)
}

func TestOpenAI_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Happy to help.  "}}]}`)
	}))
	defer srv.Close()

	o := NewOpenAI("sk-test", testLogger())
	o.BaseURL = srv.URL

	text, err := o.Generate(context.Background(), "Meeting", "Can we meet?")
	require.NoError(t, err)
	require.Equal(t, "Re: Meeting\n\nHappy to help.", text)

	require.Equal(t, defaultOpenAIModel, got.Model)
	require.Equal(t, 150, got.MaxTokens)
	require.InDelta(t, 0.7, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	require.True(t, strings.Contains(got.Messages[1].Content, "Can we meet?"))
}

func TestOpenAI_FallbackAndStrict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAI("sk-test", testLogger())
	o.BaseURL = srv.URL

	text, err := o.Generate(context.Background(), "Hello", "x")
	require.NoError(t, err)
	require.Equal(t, "Re: Hello\n\n"+fallbackReply, text)

	o.StrictErrors = true
	_, err = o.Generate(context.Background(), "Hello", "x")
	var ge *model.GenerationError
	require.True(t, errors.As(err, &ge))
	require.Equal(t, "openai", ge.Provider)
}
