package compile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/scriptvm/binder"
	"github.com/aledsdavies/scriptvm/doc"
	"github.com/aledsdavies/scriptvm/value"
)

func num(d *doc.Doc, f float64) doc.ExprId {
	return d.AddValue(value.NewNum(f), doc.Range{})
}

func TestCompileArithmeticEndsInTerminator(t *testing.T) {
	d := doc.New()
	mul := d.AddIntrinsic(doc.IntMul, []doc.ExprId{num(d, 2), num(d, 3)}, doc.Range{})
	add := d.AddIntrinsic(doc.IntAdd, []doc.ExprId{num(d, 1), mul}, doc.Range{})

	p, err := Compile(d, add, 0)
	require.NoError(t, err)
	require.NotEmpty(t, p.Code)
	assert.Equal(t, OpReturn, p.Code[len(p.Code)-1].Op)
	assert.Len(t, p.Locations, len(p.Code))
}

func TestLiteralPoolDeduplicates(t *testing.T) {
	d := doc.New()
	add := d.AddIntrinsic(doc.IntAdd, []doc.ExprId{num(d, 5), num(d, 5)}, doc.Range{})

	p, err := Compile(d, add, 0)
	require.NoError(t, err)
	assert.Len(t, p.Literals, 1)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := doc.New()
	store := d.AddMemStore(0xDEAD, num(d, 42), doc.Range{Start: 3, End: 11})
	block := d.AddBlock([]doc.ExprId{store, d.AddMemLoad(0xDEAD, doc.Range{Start: 13, End: 18})}, doc.Range{End: 18})

	p, err := Compile(d, block, 0xFEEDFACECAFEBEEF)
	require.NoError(t, err)

	decoded, err := Decode(Encode(p))
	require.NoError(t, err)
	if diff := cmp.Diff(p, decoded, cmpopts.EquateComparable(value.Value{})); diff != "" {
		t.Errorf("round trip mismatch (-orig +decoded):\n%s", diff)
	}
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)

	_, err = Decode([]byte{1, 2, 3, 4})
	assert.Error(t, err)

	d := doc.New()
	p, err := Compile(d, num(d, 1), 0)
	require.NoError(t, err)
	enc := Encode(p)

	_, err = Decode(enc[:len(enc)-3])
	assert.Error(t, err)

	enc[0] ^= 0xFF // corrupt the magic
	_, err = Decode(enc)
	assert.Error(t, err)
}

func TestCompileAgainstEnforcesMemoryBan(t *testing.T) {
	tbl := binder.NewBuilder("pure").SetFlags(binder.DisallowMemoryAccess).Finalize()

	d := doc.New()
	load := d.AddMemLoad(7, doc.Range{})
	_, err := CompileAgainst(d, load, tbl)
	assert.Error(t, err)

	clean := num(d, 1)
	p, err := CompileAgainst(d, clean, tbl)
	require.NoError(t, err)
	assert.Equal(t, tbl.Hash(), p.BinderHash)
}

func TestJumpOffsetsResolveWithinCode(t *testing.T) {
	d := doc.New()
	// while (true) { 1 }
	cond := d.AddValue(value.NewBool(true), doc.Range{})
	body := d.AddBlock([]doc.ExprId{num(d, 1)}, doc.Range{})
	loop := d.AddIntrinsic(doc.IntWhile, []doc.ExprId{cond, body}, doc.Range{})

	p, err := Compile(d, loop, 0)
	require.NoError(t, err)
	for pc, in := range p.Code {
		switch in.Op {
		case OpJump, OpJumpIfFalsy, OpJumpIfTruthy, OpJumpIfNonNull:
			target := pc + int(in.JumpOffset())
			assert.GreaterOrEqual(t, target, 0)
			assert.Less(t, target, len(p.Code))
		}
	}
}
