package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRecordTrade(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)

	rec := testRecord()
	rec.StopLoss = nil
	assert.NoError(t, j.RecordTrade(rec))
	assert.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "trade_id", rows[0][0])
	assert.Equal(t, "T1", rows[1][0])
	assert.Equal(t, "long", rows[1][2])
	assert.Equal(t, "10", rows[1][3])
	assert.Equal(t, "", rows[1][8])  // nil stop loss
	assert.Equal(t, "120", rows[1][9])
	assert.Equal(t, "100", rows[1][11])
}
