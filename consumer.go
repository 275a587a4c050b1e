package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"     // структурированное ведение журнала
	"github.com/segmentio/kafka-go" // клиент Kafka
)

// ingestPerson разбирает сообщение как документ человека, проверяет name и
// вставляет документ вместе со всеми прочими полями.
func ingestPerson(ctx context.Context, st Store, value []byte) (string, error) {
	doc, raw, err := parseDocument(value)
	if err != nil {
		return "", err
	}
	name, err := ValidateName(raw)
	if err != nil {
		return "", err
	}
	doc.Name = name
	return st.Insert(ctx, doc)
}

// Точка входа для запуска потребителя Kafka. Без брокера ничего не делает.
func StartConsumer(ctx context.Context, cfg *Config, st Store) {
	if cfg.KafkaBroker == "" {
		log.Info().Msg("kafka broker not configured; ingest disabled")
		return
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.KafkaBroker},
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // фиксации выполняются вручную
	})

	go func() {
		defer r.Close()
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Info().Msg("consumer context done")
					return
				}
				log.Error().Err(err).Msg("fetch message error")
				time.Sleep(time.Second)
				continue
			}

			if !consume(ctx, cfg, st, m) {
				return
			}
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Error().Err(err).Msg("commit message failed")
			}
		}
	}()
}

// consume обрабатывает одно сообщение. Ошибки хранилища повторяются, пока
// не отменён ctx (at-least-once); остальные ошибки пишутся в журнал и
// сообщение пропускается. false означает, что ctx завершён.
func consume(ctx context.Context, cfg *Config, st Store, m kafka.Message) bool {
	for {
		id, err := ingestPerson(ctx, st, m.Value)
		switch {
		case err == nil:
			log.Info().Str("id", id).Int64("offset", m.Offset).Msg("message processed")
			return true
		case errors.Is(err, ErrStorageUnavailable):
			log.Error().Err(err).Int64("offset", m.Offset).Msg("failed to save person")
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Second):
			}
		default:
			log.Error().Err(fmt.Errorf("skip message: %w", err)).Str("topic", cfg.KafkaTopic).Int64("offset", m.Offset).Msg("invalid message, skipping")
			return true
		}
	}
}
