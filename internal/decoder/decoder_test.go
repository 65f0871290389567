package decoder

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/dtn-gateway/internal/schema"
)

func newTestDecoder() *Decoder {
	return New(schema.DefaultHints(), DefaultPolicy())
}

func depthFields() []string {
	fields := make([]string, 11)
	for i := range fields {
		fields[i] = fmt.Sprintf("f%d", i)
	}
	return fields
}

func TestDecode_EmptySchema(t *testing.T) {
	d := newTestDecoder()

	for _, line := range []string{"", "1,2,3", "Q,AAPL"} {
		_, err := d.Decode("L1", nil, line)
		assert.ErrorIs(t, err, ErrEmptySchema, "line %q", line)
	}
}

func TestDecode_NoTokens(t *testing.T) {
	d := newTestDecoder()

	_, err := d.Decode("L1", []string{"a"}, "")
	assert.ErrorIs(t, err, ErrNoTokens)

	_, err = d.Decode("L1", []string{"a"}, " \r\n")
	assert.ErrorIs(t, err, ErrNoTokens)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, " \r\n", decErr.Line)
}

func TestDecode_EmptyTokensBecomeNull(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("", []string{"a", "b", "c", "d"}, "1,,3,4")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.Keys())
	b, ok := rec.Get("b")
	assert.True(t, ok)
	assert.Nil(t, b)

	a, _ := rec.Get("a")
	assert.Equal(t, "1", a)
	c, _ := rec.Get("c")
	assert.Equal(t, "3", c)
	d4, _ := rec.Get("d")
	assert.Equal(t, "4", d4)
}

func TestDecode_FieldCountMatchesSchema(t *testing.T) {
	d := newTestDecoder()
	fields := []string{"Symbol", "Most Recent Trade", "Total Volume"}

	tests := []string{
		"AAPL,",
		"AAPL,101.5,2000",
		"AAPL,101.5,2000,extra,columns",
		",",
	}
	for _, line := range tests {
		rec, err := d.Decode("L1", fields, line)
		require.NoError(t, err, line)
		assert.Equal(t, len(fields), rec.Len(), line)
	}
}

func TestDecode_NumericFallback(t *testing.T) {
	d := newTestDecoder()
	fields := []string{"Symbol", "Most Recent Trade", "Total Volume", "Bid Size", "Exchange"}

	rec, err := d.Decode("L1", fields, "Q,AAPL , 187.25,1200345,abc,NASDAQ\r")
	require.NoError(t, err)

	v, _ := rec.Get("Symbol")
	assert.Equal(t, "Q", v)

	v, _ = rec.Get("Most Recent Trade")
	assert.Equal(t, "AAPL", v, "unparseable float keeps the raw string")

	v, _ = rec.Get("Total Volume")
	assert.Equal(t, "187.25", v, "unparseable integer keeps the raw string")

	v, _ = rec.Get("Bid Size")
	assert.Equal(t, int64(1200345), v)

	v, _ = rec.Get("Exchange")
	assert.Equal(t, "abc", v)
}

func TestDecode_TypedValues(t *testing.T) {
	d := newTestDecoder()
	fields := []string{"Symbol", "Most Recent Trade", "Total Volume", "Bid Size"}

	rec, err := d.Decode("L1", fields, "AAPL,187.25,1200345,abc\r\n")
	require.NoError(t, err)

	v, _ := rec.Get("Symbol")
	assert.Equal(t, "AAPL", v)
	v, _ = rec.Get("Most Recent Trade")
	assert.Equal(t, 187.25, v)
	v, _ = rec.Get("Total Volume")
	assert.Equal(t, int64(1200345), v)
	v, _ = rec.Get("Bid Size")
	assert.Equal(t, "abc", v)
}

func TestDecode_NaNStaysText(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("L1", []string{"Price"}, "NaN")
	require.NoError(t, err)

	v, _ := rec.Get("Price")
	assert.Equal(t, "NaN", v)

	_, err = json.Marshal(rec)
	assert.NoError(t, err)
}

func TestDecode_DepthRemoveRealignment(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("L2", depthFields(), "5,x,y")
	require.NoError(t, err)
	assert.Equal(t, 11, rec.Len())

	v, _ := rec.Get("f0")
	assert.Equal(t, "5", v)
	v, _ = rec.Get("f1")
	assert.Equal(t, "x", v)
	v, _ = rec.Get("f2")
	assert.Equal(t, "y", v)

	for _, i := range []int{3, 5, 6, 7, 8, 9, 10} {
		v, ok := rec.Get(fmt.Sprintf("f%d", i))
		assert.True(t, ok)
		assert.Nil(t, v, "f%d should be empty after realignment", i)
	}
}

func TestDecode_DepthRemoveShiftsTrailingTokens(t *testing.T) {
	d := newTestDecoder()

	// remove messages carry no price or size columns
	rec, err := d.Decode("L2", depthFields(), "5,AAPL,ID1,B,2024-01-02")
	require.NoError(t, err)

	v, _ := rec.Get("f3")
	assert.Nil(t, v)
	v, _ = rec.Get("f4")
	assert.Equal(t, "B", v)
	v, _ = rec.Get("f5")
	assert.Nil(t, v)
}

func TestDecode_RealignmentOnlyForMatchingSchemaAndType(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("L1", depthFields(), "5,x,y,z")
	require.NoError(t, err)
	v, _ := rec.Get("f3")
	assert.Equal(t, "z", v, "L1 has no realignment rules")

	rec, err = d.Decode("L2", depthFields(), "3,x,y,z")
	require.NoError(t, err)
	v, _ = rec.Get("f3")
	assert.Equal(t, "z", v, "message type 3 is not realigned")
}

func TestDecode_DateTimeMerge(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("L2", []string{"Date", "Time", "Price"}, "2024-01-01,09:30:00,101.5")
	require.NoError(t, err)

	_, hasDate := rec.Get("Date")
	_, hasTime := rec.Get("Time")
	assert.False(t, hasDate)
	assert.False(t, hasTime)

	ts, _ := rec.Get(TimestampField)
	assert.Equal(t, "2024-01-01T09:30:00Z", ts)

	price, _ := rec.Get("Price")
	assert.Equal(t, 101.5, price)
	assert.Equal(t, 2, rec.Len())
}

func TestDecode_DateTimeKeptWhenIncomplete(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("L2", []string{"Date", "Time", "Price"}, "2024-01-01,,101.5")
	require.NoError(t, err)

	date, ok := rec.Get("Date")
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01", date)

	tm, ok := rec.Get("Time")
	assert.True(t, ok)
	assert.Nil(t, tm)

	_, ok = rec.Get(TimestampField)
	assert.False(t, ok)
	assert.Equal(t, 3, rec.Len())
}

func TestDecode_DuplicateFieldLastWriteWins(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("", []string{"a", "b", "a"}, "1,2,3")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, rec.Keys())
	v, _ := rec.Get("a")
	assert.Equal(t, "3", v)
}

func TestDecode_NilHintsAndPolicy(t *testing.T) {
	d := New(nil, nil)

	rec, err := d.Decode("L2", []string{"Message Type", "Price"}, "5,10.5")
	require.NoError(t, err)

	v, _ := rec.Get("Price")
	assert.Equal(t, "10.5", v)
}

func TestDecode_JSONShape(t *testing.T) {
	d := newTestDecoder()

	rec, err := d.Decode("L2", []string{"Symbol", "Date", "Time", "Price", "Level Size"}, "AAPL,2024-01-01,09:30:00,101.5,")
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Symbol":"AAPL","Price":101.5,"Level Size":null,"timestamp":"2024-01-01T09:30:00Z"}`, string(data))
}
