package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEventDocument = `{
	"Records": [
		{
			"eventName": "ObjectCreated:Put",
			"s3": {
				"bucket": {"name": "webflix-uploads"},
				"object": {"key": "uploads/1718000000000-ab12cd34+episode+one.mp4"}
			}
		},
		{
			"eventName": "ObjectRemoved:Delete",
			"s3": {
				"bucket": {"name": "webflix-uploads"},
				"object": {"key": "uploads/stale.mp4"}
			}
		}
	]
}`

func Test_ParseObjectCreated_DecodesPutRecords(t *testing.T) {
	t.Parallel()

	notifications, err := parseObjectCreated([]byte(sampleEventDocument), "receipt-1")
	require.NoError(t, err)

	require.Len(t, notifications, 1, "removal records should be ignored")
	assert.Equal(t, "webflix-uploads", notifications[0].Bucket)
	assert.Equal(t, "uploads/1718000000000-ab12cd34 episode one.mp4", notifications[0].Key)
	assert.Equal(t, "receipt-1", notifications[0].ReceiptHandle)
}

func Test_ParseObjectCreated_RejectsMalformedDocument(t *testing.T) {
	t.Parallel()

	_, err := parseObjectCreated([]byte("not a document"), "receipt-2")
	assert.Error(t, err)
}

func Test_DecodeObjectKey_UnescapesEncodedCharacters(t *testing.T) {
	t.Parallel()

	key, err := decodeObjectKey("imports%2Fcatalogue+2024.csv")
	require.NoError(t, err)
	assert.Equal(t, "imports/catalogue 2024.csv", key)
}
