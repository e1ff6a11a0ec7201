package journal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"treasury/core/runtime"
	"treasury/core/types"
	"treasury/crypto"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("sqlite", filepath.Join(t.TempDir(), "journal.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func address(kind crypto.AddressKind, fill byte) crypto.Address {
	return crypto.NewAddress(kind, bytes.Repeat([]byte{fill}, 20))
}

func receipt(id, controller string, started time.Time, status string, code uint16) *runtime.Receipt {
	return &runtime.Receipt{
		ID:         id,
		Controller: controller,
		Target:     address(crypto.Originated, 0x21),
		Entrypoint: "tokenToTezPayment",
		Sender:     address(crypto.ImplicitEd25519, 0x01),
		Status:     status,
		Code:       code,
		Operations: []types.Operation{{Kind: types.OperationTransaction, Entrypoint: "approve"}},
		Digest:     "abc",
		StartedAt:  started,
		Duration:   1500 * time.Microsecond,
	}
}

func TestJournalRecordsAndListsNewestFirst(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	j.ObserveReceipt(ctx, receipt("a", "maker", base, runtime.StatusCommitted, 0))
	j.ObserveReceipt(ctx, receipt("b", "maker", base.Add(time.Second), runtime.StatusFailed, 7))
	j.ObserveReceipt(ctx, receipt("c", "liquidity", base.Add(2*time.Second), runtime.StatusCommitted, 0))

	entries, err := j.Latest(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "c", entries[0].ID)
	require.Equal(t, "a", entries[2].ID)

	makerOnly, err := j.Latest(ctx, "maker", 10)
	require.NoError(t, err)
	require.Len(t, makerOnly, 2)
	require.Equal(t, uint16(7), makerOnly[0].Code)
	require.Equal(t, int64(1500), makerOnly[0].DurationUS)
	require.Equal(t, 1, makerOnly[0].Operations)
	require.Contains(t, makerOnly[0].Receipt, `"entrypoint":"tokenToTezPayment"`)

	got, err := j.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, address(crypto.ImplicitEd25519, 0x01).String(), got.Sender)

	missing, err := j.Get(ctx, "zzz")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestJournalRejectsDuplicateIDs(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, receipt("dup", "maker", time.Now(), runtime.StatusCommitted, 0)))
	require.Error(t, j.Record(ctx, receipt("dup", "maker", time.Now(), runtime.StatusCommitted, 0)))
	require.Error(t, j.Record(ctx, nil))
}

func TestJournalExportParquet(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i, id := range []string{"x", "y", "z"} {
		require.NoError(t, j.Record(ctx, receipt(id, "maker", base.Add(time.Duration(i)*time.Second), runtime.StatusCommitted, 0)))
	}

	out := filepath.Join(t.TempDir(), "journal.parquet")
	count, err := j.ExportParquet(ctx, out)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(data, []byte("PAR1")))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	require.ErrorIs(t, err, ErrDriverUnsupported)
}

func TestFileDSN(t *testing.T) {
	dsn, err := FileDSN("file::memory:")
	require.NoError(t, err)
	require.Equal(t, "file::memory:", dsn)

	_, err = FileDSN("  ")
	require.Error(t, err)
}
