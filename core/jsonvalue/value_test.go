package jsonvalue

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) Value {
	t.Helper()
	var v Value
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestNumberPriority(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
	}{
		{"0", KindInt},
		{"-12", KindInt},
		{"2147483648", KindInt},
		{"9223372036854775807", KindInt},
		{"9223372036854775808", KindUint},
		{"18446744073709551615", KindUint},
		{"1.5", KindDecimal},
		{"1e3", KindDecimal},
		{"18446744073709551616", KindDecimal},
	}
	for _, c := range cases {
		assert.Equal(t, c.kind, decode(t, c.in).Kind(), c.in)
	}

	u, ok := decode(t, "18446744073709551615").AsUint()
	assert.True(t, ok)
	assert.Equal(t, uint64(math.MaxUint64), u)
}

func TestDecodeNested(t *testing.T) {
	v := decode(t, `{"on":true,"name":"car","list":[1,null,2.5],"nested":{"x":"y"}}`)
	require.Equal(t, KindObject, v.Kind())

	on, _ := v.Get("on")
	b, ok := on.AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	list, _ := v.Get("list")
	arr, ok := list.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 3)
	assert.Equal(t, KindInt, arr[0].Kind())
	assert.True(t, arr[1].IsNull())
	f, _ := arr[2].AsFloat()
	assert.Equal(t, 2.5, f)

	nested, _ := v.Get("nested")
	x, _ := nested.Get("x")
	s, _ := x.AsString()
	assert.Equal(t, "y", s)
}

func TestMarshal(t *testing.T) {
	body := Object(map[string]Value{
		"percent":  Int(80),
		"on":       Bool(false),
		"temp":     Decimal(21.5),
		"empty":    Array(),
		"nothing":  Null(),
		"position": Uint(5),
	})
	data, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"percent":80,"on":false,"temp":21.5,"empty":[],"nothing":null,"position":5}`, string(data))

	data, err = json.Marshal(Object(nil))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestRoundTripEqual(t *testing.T) {
	in := Object(map[string]Value{
		"a": Array(Int(1), String("two"), Decimal(3.25)),
		"b": Object(map[string]Value{"c": Bool(true)}),
	})
	data, err := json.Marshal(in)
	require.NoError(t, err)
	out := decode(t, string(data))
	assert.True(t, in.Equal(out))
	assert.False(t, in.Equal(Object(nil)))
	assert.False(t, Int(1).Equal(Uint(1)))
}

func TestFrom(t *testing.T) {
	v, err := From(struct {
		DriverTemp float64 `json:"driver_temp"`
		Heater     int     `json:"heater"`
	}{DriverTemp: 20.5, Heater: 1})
	require.NoError(t, err)

	temp, _ := v.Get("driver_temp")
	assert.Equal(t, KindDecimal, temp.Kind())
	heater, _ := v.Get("heater")
	assert.Equal(t, KindInt, heater.Kind())

	_, err = From(make(chan int))
	assert.Error(t, err)
}

func TestInvalidJSON(t *testing.T) {
	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":`), &v))
}
