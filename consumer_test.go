package main

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestPerson_KeepsExtraFields(t *testing.T) {
	st := NewMemStore(Capacity{MaxSizeBytes: 1 << 20, MaxRecords: 10})
	ctx := context.Background()

	id, err := ingestPerson(ctx, st, []byte(`{"_id":"spoofed","name":" Heidi ","team":"infra","shifts":[1,3]}`))
	require.NoError(t, err)

	pid, err := ParseID(id)
	require.NoError(t, err)
	rec, err := st.Get(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, "Heidi", rec.Name)
	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "team", rec.Fields[0].Key)
	assert.Equal(t, "shifts", rec.Fields[1].Key)
	assert.Equal(t, `[1,3]`, string(rec.Fields[1].Value))
}

func TestIngestPerson_Rejects(t *testing.T) {
	st := NewMemStore(Capacity{MaxSizeBytes: 1 << 20, MaxRecords: 10})
	ctx := context.Background()

	_, err := ingestPerson(ctx, st, []byte(`{"name":`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)

	_, err = ingestPerson(ctx, st, []byte(`{"team":"infra"}`))
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestIngestPerson_StorageFailure(t *testing.T) {
	_, err := ingestPerson(context.Background(), failingStore{}, []byte(`{"name":"Ivan"}`))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestConsume(t *testing.T) {
	cfg := defaultConfig()
	st := NewMemStore(Capacity{MaxSizeBytes: 1 << 20, MaxRecords: 10})
	ctx := context.Background()

	assert.True(t, consume(ctx, cfg, st, kafka.Message{Value: []byte(`{"name":"Judy"}`)}))
	// невалидное сообщение пропускается, но не останавливает потребителя
	assert.True(t, consume(ctx, cfg, st, kafka.Message{Value: []byte(`garbage`)}))

	recs, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Judy"}, names(recs))
}

func TestConsume_StopsRetryingWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, consume(ctx, defaultConfig(), failingStore{}, kafka.Message{Value: []byte(`{"name":"Ken"}`)}))
}

func TestStartConsumer_DisabledWithoutBroker(t *testing.T) {
	cfg := defaultConfig()
	cfg.KafkaBroker = ""
	// без брокера не должно быть ни паники, ни горутины чтения
	StartConsumer(context.Background(), cfg, NewMemStore(Capacity{MaxSizeBytes: 1, MaxRecords: 1}))
}
