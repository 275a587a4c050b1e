package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Ключ, под которым хранится идентификатор. Клиентам не отдаётся (см. Person)
const internalIDKey = "_id"

var errNotObject = errors.New("document is not a JSON object")

// encodeRecord сериализует запись в хранимый вид. Длина результата и
// учитывается в лимите байт коллекции.
func encodeRecord(r Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeObject(&buf, internalIDKey, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// размер записи в сериализованном виде
func recordSize(r Record) (int64, error) {
	b, err := encodeRecord(r)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

func writeObject(buf *bytes.Buffer, idKey string, r Record) error {
	buf.WriteByte('{')
	writeKey(buf, idKey)
	writeString(buf, RenderID(r.ID))
	buf.WriteByte(',')
	writeKey(buf, "name")
	writeString(buf, r.Name)
	for _, f := range r.Fields {
		if !json.Valid(f.Value) {
			return fmt.Errorf("field %q: invalid JSON value", f.Key)
		}
		buf.WriteByte(',')
		writeKey(buf, f.Key)
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return nil
}

func writeKey(buf *bytes.Buffer, k string) {
	writeString(buf, k)
	buf.WriteByte(':')
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s) // строки сериализуются всегда
	buf.Write(b)
}

// decodeRecord - обратная операция к encodeRecord
func decodeRecord(b []byte) (Record, error) {
	if !gjson.ValidBytes(b) {
		return Record{}, fmt.Errorf("decode record: invalid JSON")
	}
	res := gjson.ParseBytes(b)
	if !res.IsObject() {
		return Record{}, fmt.Errorf("decode record: %w", errNotObject)
	}

	var (
		r     Record
		idErr error
		hasID bool
	)
	res.ForEach(func(k, v gjson.Result) bool {
		switch key := k.String(); key {
		case internalIDKey:
			hasID = true
			r.ID, idErr = ParseID(v.String())
		case "name":
			r.Name = v.String()
		default:
			r.Fields = append(r.Fields, Field{Key: key, Value: json.RawMessage(v.Raw)})
		}
		return idErr == nil
	})
	if idErr != nil {
		return Record{}, fmt.Errorf("decode record: %w", idErr)
	}
	if !hasID {
		return Record{}, fmt.Errorf("decode record: missing %s", internalIDKey)
	}
	return r, nil
}

// parseDocument читает документ от клиента. Ключи идентификатора
// отбрасываются, хранилище выдаёт свой; name равен nil, если поля нет
// или это не строка.
func parseDocument(b []byte) (Document, *string, error) {
	if !gjson.ValidBytes(b) {
		return Document{}, nil, fmt.Errorf("parse document: invalid JSON")
	}
	res := gjson.ParseBytes(b)
	if !res.IsObject() {
		return Document{}, nil, fmt.Errorf("parse document: %w", errNotObject)
	}

	var (
		doc  Document
		name *string
	)
	res.ForEach(func(k, v gjson.Result) bool {
		switch key := k.String(); key {
		case internalIDKey, "id":
		case "name":
			if v.Type == gjson.String {
				s := v.Str
				name = &s
			}
		default:
			doc.Fields = append(doc.Fields, Field{Key: key, Value: json.RawMessage(v.Raw)})
		}
		return true
	})
	return doc, name, nil
}
