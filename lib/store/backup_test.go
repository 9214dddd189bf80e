package store

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteDocument() *Document {
	return &Document{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Version:   DocumentVersion,
		Backend:   BackendRemote,
		Collections: map[string][]Record{
			"customers": {
				{"id": "c1", "name": "Ada", "createdAt": time.Date(2024, 4, 1, 8, 30, 0, 500000000, time.UTC)},
			},
			"pieces": {
				{"id": "p1", "cubicInches": int64(12), "paidGlaze": false},
			},
		},
	}
}

func TestEncodeDocumentGolden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeDocument(&buf, remoteDocument()))

	g := goldie.New(t)
	g.Assert(t, "remote_backup", buf.Bytes())
}

func TestDocumentRoundTrip(t *testing.T) {
	doc := remoteDocument()

	var buf bytes.Buffer
	require.NoError(t, EncodeDocument(&buf, doc))

	decoded, err := DecodeDocument(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(doc, decoded); diff != "" {
		t.Errorf("document round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDocumentCorruption(t *testing.T) {
	inputs := map[string]string{
		"not json":        `{"version":`,
		"wrong version":   `{"timestamp":"2024-05-01T12:00:00Z","version":2,"backend":"remote"}`,
		"unknown backend": `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"cloud"}`,
		"missing id":      `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"remote","collections":{"pieces":[{"name":"x"}]}}`,
		"malformed date":  `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"remote","collections":{"pieces":[{"id":"p1","at":{"$date":"soon"}}]}}`,
		"mixed shape":     `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"remote","raw":{"kiln:pieces:p1":"{}"}}`,
		"foreign key":     `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"local","namespace":"kiln","raw":{"other:pieces:p1":"{}"}}`,
		"bad raw record":  `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"local","namespace":"kiln","raw":{"kiln:pieces:p1":"nope"}}`,
		"bad raw index":   `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"local","namespace":"kiln","raw":{"kiln:pieces:_index":"{}"}}`,
		"local no prefix": `{"timestamp":"2024-05-01T12:00:00Z","version":1,"backend":"local","raw":{"kiln:pieces:p1":"{}"}}`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDocument(strings.NewReader(input))
			require.Error(t, err)
			assert.Equal(t, RetCBackupCorruption, Code(err))
		})
	}
}

func TestRawCollectionRecords(t *testing.T) {
	doc := &Document{
		Timestamp: time.Now(),
		Version:   DocumentVersion,
		Backend:   BackendLocal,
		Namespace: "kiln",
		Raw: map[string]string{
			"kiln:pieces:_index": `["p2","p1","gone"]`,
			"kiln:pieces:p1":     `{"id":"p1","cubicInches":12}`,
			"kiln:pieces:p2":     `{"id":"p2","firedAt":{"$date":"2024-01-02T03:04:05Z"}}`,
			"kiln:pieces:p3":     `{"id":"p3"}`,
			"kiln:customers:c1":  `{"id":"c1"}`,
			"kiln:_migrated":     `1`,
		},
	}
	require.NoError(t, doc.Validate())
	assert.Equal(t, []string{"customers", "pieces"}, doc.CollectionNames())

	got, err := doc.CollectionRecords()
	require.NoError(t, err)

	want := map[string][]Record{
		"customers": {{"id": "c1"}},
		"pieces": {
			{"id": "p2", "firedAt": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
			{"id": "p1", "cubicInches": int64(12)},
			{"id": "p3"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("raw records mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvePatch(t *testing.T) {
	fields, err := ResolvePatch("pieces", "p1", Fields{"paidGlaze": true})
	require.NoError(t, err)
	assert.Equal(t, Record{"paidGlaze": true}, fields)

	_, err = ResolvePatch("pieces", "p1", Fields{"id": "p2"})
	assert.Equal(t, RetCInvalidOperation, Code(err))

	_, err = ResolvePatch("pieces", "p1", nil)
	assert.Equal(t, RetCInvalidOperation, Code(err))

	_, err = ResolvePatch("pieces", "p1", boundPatch{"customers"})
	assert.Equal(t, RetCInvalidOperation, Code(err))
}

type boundPatch struct{ collection string }

func (p boundPatch) Fields() Record     { return Record{} }
func (p boundPatch) Collection() string { return p.collection }

func TestErrors(t *testing.T) {
	err := NewRecordError(RetCNotFound, "pieces", "p1", "record does not exist")
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrWriteFailure)
	assert.Equal(t, "kiln store error (NotFound) [pieces/p1]: record does not exist", err.Error())
	assert.Equal(t, "kiln store error (WriteFailure) [pieces]: quota", NewRecordError(RetCWriteFailure, "pieces", "", "quota").Error())
	assert.Equal(t, RetCSuccess, Code(nil))
	assert.Equal(t, RetCInternalError, Code(assert.AnError))
}

func TestRejectBackup(t *testing.T) {
	err := RejectBackup(NewRecordError(RetCInvalidOperation, "pieces", "p1", "record cannot be encoded: malformed date"))
	assert.ErrorIs(t, err, ErrBackupCorruption)
	assert.Equal(t, "kiln store error (BackupCorruption) [pieces/p1]: backup cannot be restored: record cannot be encoded: malformed date", err.Error())

	err = RejectBackup(assert.AnError)
	assert.Equal(t, RetCBackupCorruption, Code(err))
}
