package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/pinfetch/internal/media"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)

	_, err = client.CreateTopic(ctx, "outcomes")
	require.NoError(t, err)

	pub := New(client)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, srv
}

func TestPublisherPublishesEvent(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t)
	event := media.Event{
		RequestID: "req-1",
		ChatID:    42,
		SourceURL: "https://pin.it/abc",
		Outcome:   string(media.OutcomeImage),
	}

	id, err := pub.Publish(context.Background(), "outcomes", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "image", msgs[0].Attributes["outcome"])

	var got media.Event
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, event, got)
}

func TestPublisherCarriesTraceContext(t *testing.T) {
	t.Parallel()

	pub, srv := newTestPublisher(t)
	pub.propagator = propagation.TraceContext{}

	ctx, span := sdktrace.NewTracerProvider().Tracer("test").Start(context.Background(), "handle")
	defer span.End()

	_, err := pub.Publish(ctx, "outcomes", media.Event{Outcome: string(media.OutcomeVideo)})
	require.NoError(t, err)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Attributes["traceparent"], span.SpanContext().TraceID().String())
	require.Equal(t, "video", msgs[0].Attributes["outcome"])
}

func TestPublisherMissingTopic(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "missing", media.Event{})
	require.Error(t, err)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub, _ := newTestPublisher(t)
	_, err := pub.Publish(context.Background(), "outcomes", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
}

func TestPublisherNotConfigured(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "outcomes", media.Event{})
	require.Error(t, err)
}
