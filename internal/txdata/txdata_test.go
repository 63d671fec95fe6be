package txdata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_TrimsToCanonicalColumns(t *testing.T) {
	header := []string{"hash", "from", "to", "value", "confirmations"}
	rows := [][]string{
		{"0xabc", "0xAAAA", "0xBBBB", "10", "12"},
	}

	table, stats := Parse(header, rows)

	require.Equal(t, 1, table.Len())
	assert.True(t, table.Columns.Has(ColFrom, ColTo, ColValue))
	assert.False(t, table.Columns.Has(ColGas))
	assert.Equal(t, Stats{Rows: 1, Kept: 1}, stats)
	assert.Equal(t, "0xaaaa", table.Records[0].From)
	assert.Equal(t, 10.0, table.Records[0].Value)
}

func TestParse_DropsUnparseableValues(t *testing.T) {
	header := []string{"from", "value"}
	rows := [][]string{
		{"0x1", "100"},
		{"0x2", "not-a-number"},
		{"0x3", ""},
		{"0x4", "-5"},
		{"0x5", "1.5e18"},
	}

	table, stats := Parse(header, rows)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 3, stats.Dropped)
	assert.Equal(t, 1.5e18, table.Records[1].Value)
}

func TestParse_MissingValueColumnDropsEverything(t *testing.T) {
	table, stats := Parse([]string{"from", "to"}, [][]string{{"0x1", "0x2"}})

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, 1, stats.Dropped)
}

func TestParse_WeiPrecision(t *testing.T) {
	table, _ := Parse([]string{"value"}, [][]string{{"123456789012345678901234"}})

	require.Equal(t, 1, table.Len())
	assert.InEpsilon(t, 1.23456789012345678901234e23, table.Records[0].Value, 1e-12)
}

func TestParse_FillsCategoricalSentinels(t *testing.T) {
	header := []string{"value", "functionName", "protocol_version", "methodId"}
	rows := [][]string{
		{"0", "", "", ""},
		{"0", "mint(uint256)", "V2", "0xa0712d68"},
	}

	table, _ := Parse(header, rows)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, UnknownFunction, table.Records[0].FunctionName)
	assert.Equal(t, UnknownProtocol, table.Records[0].ProtocolVersion)
	assert.Equal(t, ZeroMethodID, table.Records[0].MethodID)
	assert.Equal(t, "mint(uint256)", table.Records[1].FunctionName)
	assert.Equal(t, "V2", table.Records[1].ProtocolVersion)
}

func TestParse_AbsentCategoricalColumnsStayEmpty(t *testing.T) {
	table, _ := Parse([]string{"value"}, [][]string{{"1"}})

	require.Equal(t, 1, table.Len())
	assert.Empty(t, table.Records[0].FunctionName)
	assert.False(t, table.Columns.Has(ColFunctionName))
}

func TestParse_NumericCoercionLeavesMissing(t *testing.T) {
	header := []string{"value", "gas", "gasPrice", "gasUsed", "blockNumber", "isError"}
	rows := [][]string{
		{"1", "21000", "oops", "", "17000000", "0"},
	}

	table, _ := Parse(header, rows)
	rec := table.Records[0]

	require.NotNil(t, rec.Gas)
	assert.Equal(t, 21000.0, *rec.Gas)
	assert.Nil(t, rec.GasPrice)
	assert.Nil(t, rec.GasUsed)
	require.NotNil(t, rec.BlockNumber)
	assert.Equal(t, 17000000.0, *rec.BlockNumber)
	require.NotNil(t, rec.IsError)
	assert.Equal(t, 0.0, *rec.IsError)
}

func TestParse_Timestamps(t *testing.T) {
	header := []string{"value", "timeStamp"}
	rows := [][]string{
		{"1", "1700000000"},
		{"1", "garbage"},
		{"1", ""},
	}

	table, _ := Parse(header, rows)

	require.Equal(t, 3, table.Len())
	require.NotNil(t, table.Records[0].Timestamp)
	assert.Equal(t, int64(1700000000), table.Records[0].Timestamp.Unix())
	assert.Nil(t, table.Records[1].Timestamp)
	assert.Nil(t, table.Records[2].Timestamp)
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  0x5D3A536E4D6DBD6114CC1EAD35777BAB948E3643 ", "0x5d3a536e4d6dbd6114cc1ead35777bab948e3643"},
		{"5d3a536e4d6dbd6114cc1ead35777bab948e3643", "0x5d3a536e4d6dbd6114cc1ead35777bab948e3643"},
		{"WalletA", "walleta"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAddress(tt.in), "input %q", tt.in)
	}
}

func TestReadCSV(t *testing.T) {
	in := "from,to,value,extra\n0xA,0xB,5,x\n0xB,0xA,0\n"

	table, stats, err := ReadCSV(strings.NewReader(in))

	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, "0xb", table.Records[1].From)
}

func TestReadCSV_Empty(t *testing.T) {
	table, stats, err := ReadCSV(strings.NewReader(""))

	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, Stats{}, stats)
}

func TestLoadFile_MissingSource(t *testing.T) {
	l := NewLoader(nil)

	table, _, err := l.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceNotFound))
	require.NotNil(t, table)
	assert.Equal(t, 0, table.Len())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txs.csv")
	require.NoError(t, os.WriteFile(path, []byte("from,value\n0x1,1\n0x2,x\n"), 0o600))

	table, stats, err := NewLoader(nil).LoadFile(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, Stats{Rows: 2, Kept: 1, Dropped: 1}, stats)
}
