package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRecord_Layout(t *testing.T) {
	rec := Record{
		ID: uuid.MustParse("01890a5d-ac96-7000-8000-000000000001"),
		Document: Document{Name: `Zoë "Z"`, Fields: []Field{
			{Key: "zeta", Value: []byte(`1`)},
			{Key: "alpha", Value: []byte(`{"nested":true}`)},
		}},
	}
	b, err := encodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"_id":"01890a5d-ac96-7000-8000-000000000001","name":"Zoë \"Z\"","zeta":1,"alpha":{"nested":true}}`, string(b))

	size, err := recordSize(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(len(b)), size)
}

func TestEncodeRecord_RejectsInvalidFieldValue(t *testing.T) {
	rec := Record{ID: uuid.New(), Document: Document{Name: "x", Fields: []Field{{Key: "bad", Value: []byte(`{`)}}}}
	_, err := encodeRecord(rec)
	assert.Error(t, err)
}

func TestDecodeRecord_RoundTripKeepsFieldOrder(t *testing.T) {
	rec := Record{
		ID: uuid.New(),
		Document: Document{Name: "Alice", Fields: []Field{
			{Key: "z", Value: []byte(`"last letter"`)},
			{Key: "a", Value: []byte(`[1,2,3]`)},
			{Key: "m", Value: []byte(`null`)},
		}},
	}
	b, err := encodeRecord(rec)
	require.NoError(t, err)

	got, err := decodeRecord(b)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Name, got.Name)
	require.Len(t, got.Fields, 3)
	for i, f := range rec.Fields {
		assert.Equal(t, f.Key, got.Fields[i].Key)
		assert.Equal(t, string(f.Value), string(got.Fields[i].Value))
	}
}

func TestDecodeRecord_Errors(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`[1,2]`,
		`{"name":"no id"}`,
		`{"_id":"bogus","name":"x"}`,
	} {
		_, err := decodeRecord([]byte(in))
		assert.Error(t, err, "input %s", in)
	}
}

func TestParseDocument(t *testing.T) {
	doc, name, err := parseDocument([]byte(`{"_id":"x","id":"y","name":"  Carol ","email":"c@example.com","tags":["a"]}`))
	require.NoError(t, err)
	require.NotNil(t, name)
	assert.Equal(t, "  Carol ", *name)
	require.Len(t, doc.Fields, 2)
	assert.Equal(t, "email", doc.Fields[0].Key)
	assert.Equal(t, `"c@example.com"`, string(doc.Fields[0].Value))
	assert.Equal(t, "tags", doc.Fields[1].Key)
	assert.Equal(t, `["a"]`, string(doc.Fields[1].Value))
}

func TestParseDocument_NameMissingOrNotString(t *testing.T) {
	for _, in := range []string{`{}`, `{"name":42}`, `{"name":null}`} {
		_, name, err := parseDocument([]byte(in))
		require.NoError(t, err)
		assert.Nil(t, name, "input %s", in)
	}
}

func TestParseDocument_Invalid(t *testing.T) {
	for _, in := range []string{``, `{"name":`, `"just a string"`} {
		_, _, err := parseDocument([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}
