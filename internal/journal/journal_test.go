package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sherry5707/Messaging/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPendingRemove(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)

	k1, err := j.Append("mark_as_read", params.New().PutString("conversation_id", "c1"))
	require.NoError(t, err)
	k2, err := j.Append("change_pinned", params.New().PutString("conversation_id", "c2").PutBool("pinned", true))
	require.NoError(t, err)

	recs, bad, err := j.Pending()
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, recs, 2)
	assert.Equal(t, k1, recs[0].Key)
	assert.Equal(t, "mark_as_read", recs[0].Kind)
	assert.Equal(t, k2, recs[1].Key)
	pinned, err := recs[1].Params.Bool("pinned")
	require.NoError(t, err)
	assert.True(t, pinned)

	require.NoError(t, j.Remove(k1))
	require.NoError(t, j.Remove(k1))
	assert.Equal(t, 1, j.Len())
}

func TestReopenContinuesSequence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	j, err := Open(dir)
	require.NoError(t, err)
	first, err := j.Append("mark_as_read", params.New().PutString("conversation_id", "c1"))
	require.NoError(t, err)

	reopened, err := Open(dir)
	require.NoError(t, err)
	second, err := reopened.Append("mark_as_unread", params.New().PutString("conversation_id", "c1"))
	require.NoError(t, err)

	recs, _, err := reopened.Pending()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first, recs[0].Key)
	assert.Equal(t, second, recs[1].Key)
}

func TestPendingReportsCorruptRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	j, err := Open(dir)
	require.NoError(t, err)
	_, err = j.Append("mark_as_read", params.New().PutString("conversation_id", "c1"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00000000000000000000-garbage"), []byte("{not json"), 0600))

	recs, bad, err := j.Pending()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, []string{"00000000000000000000-garbage"}, bad)
}
