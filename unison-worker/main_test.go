package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/unison-worker/worker"
)

func TestRandomBatch(t *testing.T) {
	batch := randomBatch(1000, 300)
	require.Len(t, batch.Transactions, 4)

	var size int
	for _, tx := range batch.Transactions {
		size += len(tx)
	}
	assert.Equal(t, 1000, size)
	assert.Len(t, batch.Transactions[3], 100)

	assert.Empty(t, randomBatch(0, 300).Transactions)
}

func TestRandomBatches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	batches := make(chan []byte, 3)
	go RandomBatches(ctx, 512, 64, time.Millisecond*10, func(ctx context.Context, batch []byte) error {
		select {
		case batches <- batch:
		default:
		}
		return nil
	})

	for range 3 {
		select {
		case data := <-batches:
			txs, err := worker.DecodeBatch(data)
			require.NoError(t, err)
			assert.Len(t, txs, 8)
		case <-ctx.Done():
			t.Fatal("no batches produced")
		}
	}
}

func TestGetIdentity(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")

	key, err := getIdentity(dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "key"))
	require.NoError(t, err)

	// the key is stable across restarts
	again, err := getIdentity(dir)
	require.NoError(t, err)
	assert.True(t, key.Equals(again))
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--id", "3", "--verify=false", "--pool-size", "2", "--in-memory"}))

	id, err := cmd.Flags().GetUint32("id")
	require.NoError(t, err)
	assert.EqualValues(t, 3, id)

	verify, err := cmd.Flags().GetBool("verify")
	require.NoError(t, err)
	assert.False(t, verify)

	primary, _, err := cmd.Find([]string{"primary"})
	require.NoError(t, err)
	assert.Equal(t, "primary", primary.Name())
}
