package document

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestMarshalJSON_PreservesInsertionOrder(t *testing.T) {
	d := New(3)
	d.AddString("c1", "a")
	d.AddInt32("c2", 1)
	d.AddFloat64("c3", 3.5)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"c1":"a","c2":1,"c3":3.5}`, string(data))
	assert.Equal(t, []string{"c1", "c2", "c3"}, d.Names())
}

func TestMarshalJSON_Scalars(t *testing.T) {
	d := New(0)
	d.AddBool("b", true)
	d.AddInt16("i16", -7)
	d.AddInt64("i64", math.MaxInt64)
	d.AddUint32("u32", math.MaxUint32)
	d.AddFloat32("f32", 0.1)
	d.AddJSON("j", json.RawMessage("{\"k\": [1, 2],\n \"s\": \"x\"}"))

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"b":true,"i16":-7,"i64":9223372036854775807,"u32":4294967295,"f32":0.1,"j":{"k":[1,2],"s":"x"}}`,
		string(data))
}

func TestMarshalJSON_ArraysKeepNullElements(t *testing.T) {
	d := New(0)
	AddArray(d, "tags", []*string{ptr("x"), nil, ptr("z")})
	AddArray(d, "nums", []*int32{nil, ptr(int32(2))})
	AddArray(d, "docs", []*json.RawMessage{ptr(json.RawMessage(`{"a": 1}`)), nil})
	AddArray[float64](d, "empty", nil)

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"tags":["x",null,"z"],"nums":[null,2],"docs":[{"a":1},null],"empty":[]}`, string(data))
}

func TestMarshalJSON_NonFiniteFloats(t *testing.T) {
	d := New(0)
	d.AddFloat64("nan", math.NaN())
	d.AddFloat64("pinf", math.Inf(1))
	AddArray(d, "arr", []*float32{ptr(float32(math.Inf(-1)))})

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"nan":"NaN","pinf":"Infinity","arr":["-Infinity"]}`, string(data))
}

func TestMarshalJSON_InvalidRawJSON(t *testing.T) {
	d := New(0)
	d.AddJSON("j", json.RawMessage(`{"broken"`))

	_, err := d.MarshalJSON()
	assert.Error(t, err)
}

func TestAdd_ReplacesExistingField(t *testing.T) {
	d := New(0)
	d.AddString("a", "first")
	d.AddInt32("b", 1)
	d.AddString("a", "second")

	assert.Equal(t, 2, d.Len())
	v, ok := d.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, []string{"a", "b"}, d.Names())
}

func TestGetAndHas(t *testing.T) {
	d := New(0)
	d.AddBool("present", false)

	assert.True(t, d.Has("present"))
	assert.False(t, d.Has("absent"))

	_, ok := d.Get("absent")
	assert.False(t, ok)
}
