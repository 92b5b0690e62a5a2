package queue

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wooconduit/conduit/pkg/models"
	"github.com/wooconduit/conduit/pkg/redis"
	syncengine "github.com/wooconduit/conduit/pkg/sync"
	"github.com/wooconduit/conduit/pkg/woocommerce"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func testStreams(t *testing.T) *redis.Streams {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := redis.NewClient(redis.Config{Host: mr.Host(), Port: port}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return redis.NewStreams(client)
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		success   bool
		retryable bool
	}{
		{"nil", nil, true, false},
		{"sync disabled is a clean skip", &woocommerce.SyncDisabledError{ServerID: "s", Reason: "off"}, true, false},
		{"wrapped sync disabled", fmt.Errorf("poll: %w", &woocommerce.SyncDisabledError{ServerID: "s", Reason: "off"}), true, false},
		{"lock contention retries", syncengine.ErrLockContended, false, true},
		{"validation dead-letters", &woocommerce.ValidationError{Resource: "orders", Message: "unmapped gateway"}, false, false},
		{"unknown server dead-letters", fmt.Errorf("%w: shop.example.com", syncengine.ErrServerNotFound), false, false},
		{"bad payload dead-letters", fmt.Errorf("%w: missing identity", ErrInvalidJobMessage), false, false},
		{"transport errors retry", &woocommerce.RemoteError{StatusCode: 502, Endpoint: "products", Message: "bad gateway"}, false, true},
		{"anything else retries", fmt.Errorf("connection refused"), false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			success, retryable := classifyError(tc.err)
			assert.Equal(t, tc.success, success)
			assert.Equal(t, tc.retryable, retryable)
		})
	}
}

func TestClassifyReason(t *testing.T) {
	assert.Equal(t, models.DLQReasonInvalidJob, classifyReason(fmt.Errorf("%w: nope", ErrInvalidJobMessage)))
	assert.Equal(t, models.DLQReasonServerNotFound, classifyReason(syncengine.ErrServerNotFound))
	assert.Equal(t, models.DLQReasonMappingError, classifyReason(&woocommerce.ValidationError{Resource: "orders", Message: "x"}))
	assert.Equal(t, models.DLQReasonTimeout, classifyReason(context.DeadlineExceeded))
	assert.Equal(t, models.DLQReasonUnknown, classifyReason(fmt.Errorf("mystery")))
}

func TestPublishEntitySync_RoundTrip(t *testing.T) {
	streams := testStreams(t)
	ctx := context.Background()
	serverID := uuid.New()

	msgID, err := PublishEntitySync(ctx, streams, "test:jobs", serverID, syncengine.JobTypeItemSync, "shop.example.com~42", true)
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)

	msgs, err := streams.Range(ctx, "test:jobs", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	job, err := redis.DecodeJob(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, serverID.String(), job.ServerID)
	assert.Equal(t, syncengine.JobTypeItemSync, job.Type)
	assert.Equal(t, "shop.example.com~42", job.Payload["identity"])
	assert.Equal(t, true, job.Payload["force"])
}

func TestPublishPoll_RoundTrip(t *testing.T) {
	streams := testStreams(t)
	ctx := context.Background()
	serverID := uuid.New()

	_, err := PublishPoll(ctx, streams, "test:jobs", serverID, syncengine.JobTypeOrdersPoll)
	require.NoError(t, err)

	msgs, err := streams.Range(ctx, "test:jobs", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	job, err := redis.DecodeJob(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, syncengine.JobTypeOrdersPoll, job.Type)
	assert.Equal(t, serverID.String(), job.ServerID)
	assert.Empty(t, job.Payload["identity"])
}
