package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeueParsesJob(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := NewQueue(client, nil)

	job := Job{ID: "job-1", Type: JobTypeTicketEmail, Payload: json.RawMessage(`{"recipient":"a@b.c"}`)}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	mock.ExpectBLPop(0, QueueEmails).SetVal([]string{QueueEmails, string(raw)})

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, JobTypeTicketEmail, got.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDequeueSkipsMalformedPayload(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := NewQueue(client, nil)

	mock.ExpectBLPop(0, QueueEmails).SetVal([]string{QueueEmails, "not-json"})

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRetryReenqueuesWithIncrementedAttempt(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := NewQueue(client, nil)

	job := &Job{ID: "job-2", Type: JobTypeTicketEmail, Payload: json.RawMessage(`{}`), Attempt: 0}
	expected := *job
	expected.Attempt = 1
	raw, err := json.Marshal(&expected)
	require.NoError(t, err)

	mock.ExpectRPush(QueueEmails, raw).SetVal(1)

	require.NoError(t, q.Retry(context.Background(), job))
	assert.Equal(t, 1, job.Attempt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryMovesToDLQAfterMaxRetries(t *testing.T) {
	client, mock := redismock.NewClientMock()
	q := NewQueue(client, nil)

	job := &Job{ID: "job-3", Type: JobTypeTicketEmail, Payload: json.RawMessage(`{}`), Attempt: MaxRetries - 1}
	expected := *job
	expected.Attempt = MaxRetries
	raw, err := json.Marshal(&expected)
	require.NoError(t, err)

	mock.ExpectRPush(QueueDLQ, raw).SetVal(1)

	require.NoError(t, q.Retry(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}
