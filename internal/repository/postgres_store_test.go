package repository

import (
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestPostgresTxOptions(t *testing.T) {
	if readTxOptions.IsoLevel != pgx.RepeatableRead || readTxOptions.AccessMode != pgx.ReadOnly {
		t.Fatalf("reads must share one read-only snapshot, got %+v", readTxOptions)
	}
	if writeTxOptions.IsoLevel != pgx.ReadCommitted || writeTxOptions.AccessMode != pgx.ReadWrite {
		t.Fatalf("unexpected write options: %+v", writeTxOptions)
	}
}
