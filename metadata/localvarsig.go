package metadata

import "github.com/clrhost/clrhost/rterr"

// localSigTag opens a LocalVarSig blob (ECMA-335 §II.23.2.6).
const localSigTag = 0x07

// ReadLocalVarSig decodes a method body's LocalVarSigTok (a StandAloneSig
// token) into the per-local type signatures the il package needs to size
// and type the local slots (clrhost §4.3, §4.4 "activation record
// locals").
func (m *Module) ReadLocalVarSig(tok uint32) ([]*TypeSignature, error) {
	rid := tok & 0x00FFFFFF
	rows, err := m.Image.StandAloneSigRows()
	if err != nil {
		return nil, err
	}
	if rid == 0 || int(rid) > len(rows) {
		return nil, rterr.New(rterr.BadImageFormat, "invalid StandAloneSig rid %d", rid)
	}
	blob, err := m.Image.GetMetadataBlob(rows[rid-1].Signature)
	if err != nil {
		return nil, err
	}
	br := newBlobReader(blob)
	tag, err := br.readByte()
	if err != nil {
		return nil, err
	}
	if tag != localSigTag {
		return nil, rterr.New(rterr.BadImageFormat, "StandAloneSig %d: missing LOCAL_SIG tag (got 0x%x)", rid, tag)
	}
	count, err := br.readCompressed()
	if err != nil {
		return nil, err
	}
	sigs := make([]*TypeSignature, count)
	for i := range sigs {
		sig, err := m.ReadTypeSignature(br, GenericContainerContext{}, nil)
		if err != nil {
			return nil, err
		}
		sigs[i] = sig
	}
	return sigs, nil
}
