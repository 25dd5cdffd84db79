package binder

import (
	"github.com/fxamacker/cbor/v2"
)

// wireParam/wireSlot/wireTable mirror the binder file format:
// name, flags, filter, and each slot's name/doc/signature. Function
// pointers are never serialized. CBOR is used for this tooling-facing
// format since it is compact and self-describing — unlike the
// hand-rolled fixed layout used for the hot
// bytecode path, where byte-for-byte control matters more than schema
// evolution.
type wireParam struct {
	Name  string     `cbor:"name"`
	Mask  TypeMask   `cbor:"mask"`
	Flags ParamFlags `cbor:"flags"`
}

type wireSlot struct {
	Name   string      `cbor:"name"`
	Doc    string      `cbor:"doc"`
	Params []wireParam `cbor:"params"`
	Return TypeMask    `cbor:"return"`
}

type wireTable struct {
	Name   string     `cbor:"name"`
	Flags  Flags      `cbor:"flags"`
	Filter string     `cbor:"filter"`
	Slots  []wireSlot `cbor:"slots"`
}

// Encode serializes t's tooling-facing metadata: name, flags, filter, and each slot's name/doc/signature.
func Encode(t *Table) ([]byte, error) {
	w := wireTable{Name: t.name, Flags: t.flags, Filter: t.filter}
	for _, e := range t.entries {
		ws := wireSlot{Name: e.name, Doc: e.doc, Return: e.sig.ReturnMask}
		for _, p := range e.sig.Params {
			ws.Params = append(ws.Params, wireParam{Name: p.Name, Mask: p.Mask, Flags: p.Flags})
		}
		w.Slots = append(w.Slots, ws)
	}
	return cbor.Marshal(w)
}

// Decode reads back the metadata Encode wrote. The returned Table has no
// callable natives (NativeFunc pointers are never serialized); it is only
// useful for tooling that inspects names/docs/signatures, not for execution.
func Decode(data []byte) (*Table, error) {
	var w wireTable
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	b := NewBuilder(w.Name).SetFlags(w.Flags).SetFilter(w.Filter)
	for _, ws := range w.Slots {
		sig := Signature{ReturnMask: ws.Return}
		for _, wp := range ws.Params {
			sig.Params = append(sig.Params, ParamSpec{Name: wp.Name, Mask: wp.Mask, Flags: wp.Flags})
		}
		b.Declare(ws.Name, ws.Doc, sig, nil)
	}
	return b.Finalize(), nil
}
