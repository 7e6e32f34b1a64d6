package logs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidehook/tidehook/internal/broker"
)

func TestStreamSink_PublishesEmission(t *testing.T) {
	b := broker.NewMemoryBroker()
	sink := NewStreamSink(b, "logs")

	sink.Emit(context.Background(), Emission{
		Severity: "warn",
		Project:  "demo",
		UUID:     "u1",
		Event:    "unresolvedProject:webhooks",
		Meta:     map[string]any{"giturl": "git@example.com:org/repo.git"},
		Message:  "Unresolved project",
	})

	published := b.Published("logs")
	require.Len(t, published, 1)
	assert.Equal(t, "application/json", published[0].ContentType)

	var got Emission
	require.NoError(t, json.Unmarshal(published[0].Body, &got))
	assert.Equal(t, "warn", got.Severity)
	assert.Equal(t, "demo", got.Project)
	assert.Equal(t, "unresolvedProject:webhooks", got.Event)
	assert.Equal(t, "git@example.com:org/repo.git", got.Meta["giturl"])
}

func TestStreamSink_NilPublisherDegradesToLocalLog(t *testing.T) {
	sink := NewStreamSink(nil, "")
	// Must not panic.
	sink.Emit(context.Background(), Emission{Severity: "info", Message: "hello"})
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Emit(context.Background(), Emission{Event: "a"})
	r.Emit(context.Background(), Emission{Event: "b"})
	r.Emit(context.Background(), Emission{Event: "a"})

	assert.Len(t, r.Emissions(), 3)
	assert.Len(t, r.ByEvent("a"), 2)
	assert.Empty(t, r.ByEvent("c"))
}
