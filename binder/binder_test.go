package binder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/scriptvm/value"
)

func echo(call *Call) (value.Value, *ScriptPanic) {
	if len(call.Args) == 0 {
		return value.Null, NewPanic(ArgumentMissing)
	}
	return call.Args[0], nil
}

func TestFinalizeSortsByNameHashAndLookupWorks(t *testing.T) {
	b := NewBuilder("test")
	b.Declare("zzz", "", Signature{Params: []ParamSpec{{Name: "v", Mask: Any}}, ReturnMask: Any}, echo)
	b.Declare("aaa", "", Signature{Params: []ParamSpec{{Name: "v", Mask: Any}}, ReturnMask: Any}, echo)
	tbl := b.Finalize()

	slot, ok := tbl.Lookup("aaa")
	require.True(t, ok)
	v, p := tbl.Exec(slot, &Call{Args: []value.Value{value.NewNum(1)}})
	require.Nil(t, p)
	assert.Equal(t, 1.0, v.Num())

	_, ok = tbl.Lookup("missing")
	assert.False(t, ok)
}

func TestBinderHashStableAcrossRebuildsSameSignatures(t *testing.T) {
	build := func() *Table {
		b := NewBuilder("test")
		b.Declare("f", "doc", Signature{Params: []ParamSpec{{Name: "x", Mask: Bit(value.TypeNum)}}, ReturnMask: Bit(value.TypeNum)}, echo)
		return b.Finalize()
	}
	t1 := build()
	t2 := build()
	assert.Equal(t, t1.Hash(), t2.Hash())
}

func TestBinderHashChangesWithSignature(t *testing.T) {
	b1 := NewBuilder("test").Declare("f", "", Signature{ReturnMask: Any}, echo).Finalize()
	b2 := NewBuilder("test").Declare("f", "", Signature{ReturnMask: Bit(value.TypeNum)}, echo).Finalize()
	assert.NotEqual(t, b1.Hash(), b2.Hash())
}

func TestFilterGlobMatching(t *testing.T) {
	tbl := NewBuilder("test").SetFilter("ai/*.script").Finalize()
	assert.True(t, tbl.AllowsSource("ai/goblin.script"))
	assert.False(t, tbl.AllowsSource("other/goblin.script"))
}

func TestEncodeDecodeRoundTripsMetadata(t *testing.T) {
	orig := NewBuilder("natives").
		SetFlags(DisallowMemoryAccess).
		SetFilter("*.script").
		Declare("bark", "makes noise", Signature{
			Params:     []ParamSpec{{Name: "loudness", Mask: Bit(value.TypeNum)}},
			ReturnMask: Bit(value.TypeBool),
		}, echo).
		Finalize()

	data, err := Encode(orig)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, orig.Name(), decoded.Name())
	assert.Equal(t, orig.Flags(), decoded.Flags())
	slot, ok := decoded.Lookup("bark")
	require.True(t, ok)
	assert.Equal(t, "makes noise", decoded.Doc(slot))
	assert.Equal(t, orig.Signature(slot), decoded.Signature(slot))
}
