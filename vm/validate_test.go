package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/scriptvm/compile"
	"github.com/aledsdavies/scriptvm/intern"
	"github.com/aledsdavies/scriptvm/optimize"
	"github.com/aledsdavies/scriptvm/parser"
)

// TestEveryParsedProgramValidates checks that any source that
// parses clean compiles to a program Validate accepts.
func TestEveryParsedProgramValidates(t *testing.T) {
	srcs := []string{
		"1;",
		"1 + 2 * 3;",
		"var i = 0; while (i < 10) { i += 1; }; i;",
		"$hp = 100; $hp -= 25; $hp;",
		"true && (false || 1);",
		"for (var i = 0;; i += 1) { if (i == 11) { return i; } };",
		"select($a ?? true, vec3(1, 2, 3), null);",
		"if ($x) { break; } ", // diagnostic source is excluded below
	}
	for _, src := range srcs {
		interner := intern.New()
		d, root, diags, _ := parser.Read(src, interner, nil)
		if diags.HasErrors() {
			continue
		}
		p, err := compile.Compile(d, optimize.Optimize(d, root), 0)
		require.NoError(t, err, src)
		assert.NoError(t, Validate(p, nil), src)
	}
}

func TestValidateRejectsEmptyProgram(t *testing.T) {
	assert.Error(t, Validate(&compile.Program{}, nil))
}

func TestValidateRejectsMissingTerminator(t *testing.T) {
	p := &compile.Program{
		Code:      []compile.Instruction{{Op: compile.OpLoadNull}},
		Locations: []compile.Range{{}},
	}
	assert.Error(t, Validate(p, nil))
}

func TestValidateRejectsOutOfRangeOperands(t *testing.T) {
	ret := compile.Instruction{Op: compile.OpReturn}

	p := &compile.Program{
		Code:      []compile.Instruction{{Op: compile.OpLoadConst, Bx: 3}, ret},
		Locations: []compile.Range{{}, {}},
	}
	assert.Error(t, Validate(p, nil), "literal index past pool")

	p = &compile.Program{
		Code:      []compile.Instruction{{Op: compile.OpAdd, A: 0, B: 31}, ret},
		Locations: []compile.Range{{}, {}},
	}
	assert.Error(t, Validate(p, nil), "operand window past register file")

	var negJump int16 = -5
	p = &compile.Program{
		Code:      []compile.Instruction{{Op: compile.OpJump, Bx: uint16(negJump)}, ret},
		Locations: []compile.Range{{}, {}},
	}
	assert.Error(t, Validate(p, nil), "jump before code start")

	p = &compile.Program{
		Code:      []compile.Instruction{{Op: compile.OpCallExtern}, ret},
		Locations: []compile.Range{{}, {}},
	}
	assert.Error(t, Validate(p, nil), "extern call with no binder")
}

func TestValidateRejectsUnknownOpcode(t *testing.T) {
	p := &compile.Program{
		Code: []compile.Instruction{
			{Op: compile.Op(250)},
			{Op: compile.OpReturn},
		},
		Locations: []compile.Range{{}, {}},
	}
	assert.Error(t, Validate(p, nil))
}

// TestValidateIsTotalOnDecodedGarbage drives arbitrary byte patterns
// through Decode and Validate; neither may panic, whatever the input.
func TestValidateIsTotalOnDecodedGarbage(t *testing.T) {
	seeds := [][]byte{
		{},
		{0x30, 0x54, 0x56, 0x53},
		{0x30, 0x54, 0x56, 0x53, 1, 0},
		{0x30, 0x54, 0x56, 0x53, 1, 0, 1, 2, 3, 4, 5, 6, 7, 8, 255, 0, 0, 0},
	}
	// Grow one structurally-plausible buffer byte by byte so every truncation
	// point is exercised.
	d, root, diags, _ := parser.Read("$a = 1 + 2;", intern.New(), nil)
	require.False(t, diags.HasErrors())
	p, err := compile.Compile(d, root, 0)
	require.NoError(t, err)
	enc := compile.Encode(p)
	for i := 0; i <= len(enc); i++ {
		seeds = append(seeds, enc[:i])
	}

	for _, buf := range seeds {
		decoded, err := compile.Decode(buf)
		if err != nil {
			continue
		}
		_ = Validate(decoded, nil) // must not panic, error or nil both fine
	}
}
