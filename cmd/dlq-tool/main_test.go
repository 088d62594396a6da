package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"loyalty-points-system/internal/core/domain"
)

func TestParsePartitionOffset(t *testing.T) {
	tests := []struct {
		arg       string
		partition int32
		offset    int64
		wantErr   bool
	}{
		{arg: "0:123", partition: 0, offset: 123},
		{arg: "4:0", partition: 4, offset: 0},
		{arg: "123", wantErr: true},
		{arg: "a:1", wantErr: true},
		{arg: "1:b", wantErr: true},
		{arg: "-1:5", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			partition, offset, err := parsePartitionOffset(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.partition, partition)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestHeaders(t *testing.T) {
	headers := []kgo.RecordHeader{
		{Key: "action", Value: []byte("created")},
		{Key: "error_type", Value: []byte("storage_error")},
		{Key: "original_topic", Value: []byte("ledger.transactions")},
	}

	errorType, errorString := getErrorHeaders(headers)
	assert.Equal(t, "storage_error", errorType)
	assert.Equal(t, "N/A", errorString)
	assert.Equal(t, []kgo.RecordHeader{{Key: "action", Value: []byte("created")}}, withoutErrorHeaders(headers))
}

func TestDescribe(t *testing.T) {
	payload, err := json.Marshal(domain.NewLedgerEvent(domain.ActionCreated, domain.Transaction{
		ID: 8, AccountID: 1, Amount: -30, Details: domain.TransferDetails{CounterpartyID: 2},
	}))
	require.NoError(t, err)

	assert.Equal(t, "#8 transfer -30", describe(payload))
	assert.Equal(t, "unparseable", describe([]byte("not json")))
}
