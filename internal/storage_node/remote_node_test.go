package storage_node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/ravenfs/internal/communication"
	"github.com/AnishMulay/ravenfs/internal/log_service/zaplog"
	"github.com/AnishMulay/ravenfs/internal/metrics"
)

type fakeComm struct {
	send func(ctx context.Context, to string, msg communication.Message) (*communication.Response, error)
}

func (f *fakeComm) Start(communication.MessageHandler) error { return nil }
func (f *fakeComm) Stop() error { return nil }
func (f *fakeComm) Address() string { return "gateway" }
func (f *fakeComm) Send(ctx context.Context, to string, msg communication.Message) (*communication.Response, error) {
	return f.send(ctx, to, msg)
}

func respond(code communication.SandCode, body string) func(context.Context, string, communication.Message) (*communication.Response, error) {
	return func(context.Context, string, communication.Message) (*communication.Response, error) {
		return &communication.Response{Code: code, Body: []byte(body)}, nil
	}
}

func TestRemoteNode_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		send func(context.Context, string, communication.Message) (*communication.Response, error)
		want Status
	}{
		{name: "ok", send: respond(communication.CodeOK, "data"), want: StatusOK},
		{name: "not found", send: respond(communication.CodeNotFound, "Chunk not found"), want: StatusNotFound},
		{name: "server error", send: respond(communication.CodeInternal, "disk full"), want: StatusError},
		{name: "bad request", send: respond(communication.CodeBadRequest, "no chunk"), want: StatusError},
		{
			name: "send failure",
			send: func(context.Context, string, communication.Message) (*communication.Response, error) {
				return nil, communication.ErrMessageSendFailed
			},
			want: StatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewRemoteNode("n1:9000", time.Second, &fakeComm{send: tt.send}, zaplog.NewNopLogService(), nil)
			ctx := context.Background()

			_, getErr := n.Get(ctx, "k_chunk1")
			assert.Equal(t, tt.want, Classify(getErr))
			assert.Equal(t, tt.want, Classify(n.Put(ctx, "k_chunk1", []byte("x"))))
			assert.Equal(t, tt.want, Classify(n.Delete(ctx, "k_chunk1")))

			if tt.want == StatusError {
				assert.True(t, errors.Is(getErr, ErrTransport), "error %v should wrap ErrTransport", getErr)
			}
		})
	}
}

func TestRemoteNode_TimeoutIsTransportError(t *testing.T) {
	comm := &fakeComm{send: func(ctx context.Context, _ string, _ communication.Message) (*communication.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	n := NewRemoteNode("slow:9000", 20*time.Millisecond, comm, zaplog.NewNopLogService(), nil)

	start := time.Now()
	_, err := n.Get(context.Background(), "k_chunk1")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRemoteNode_SendsKeyAndPayload(t *testing.T) {
	var got communication.Message
	comm := &fakeComm{send: func(_ context.Context, to string, msg communication.Message) (*communication.Response, error) {
		assert.Equal(t, "n1:9000", to)
		got = msg
		return &communication.Response{Code: communication.CodeOK}, nil
	}}
	m := metrics.New(prometheus.NewRegistry())
	n := NewRemoteNode("n1:9000", time.Second, comm, zaplog.NewNopLogService(), m)

	require.NoError(t, n.Put(context.Background(), "a.txt_chunk2", []byte("abc")))
	assert.Equal(t, communication.MessageTypeWriteChunk, got.Type)
	assert.Equal(t, communication.WriteChunkRequest{ChunkKey: "a.txt_chunk2", Data: []byte("abc")}, got.Payload)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeOpsTotal.WithLabelValues("n1:9000", "put", "ok")))

	require.NoError(t, n.Health(context.Background()))
	assert.Equal(t, communication.MessageTypeHealth, got.Type)
}
