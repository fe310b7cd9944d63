package btc

// EstimateVBytes returns the virtual size of a signed key-path spend with
// nIn inputs and the given outputs:
//
//	non-witness = version(4) + cs(nIn) + 41*nIn + cs(nOut) + outputs + locktime(4)
//	witness     = marker+flag(2) + nIn * (count(1) + push(1) + sig(64))
//	vbytes      = ceil((4*non-witness + witness) / 4)
func EstimateVBytes(nIn int, outputs []TxOut) uint64 {
	nonWitness := 4 + CompactSizeLen(uint64(nIn)) + 41*nIn + CompactSizeLen(uint64(len(outputs))) + 4
	for _, out := range outputs {
		nonWitness += 8 + CompactSizeLen(uint64(len(out.ScriptPubKey))) + len(out.ScriptPubKey)
	}
	witness := 2 + nIn*(1+1+64)
	weight := uint64(nonWitness*4 + witness)
	return (weight + 3) / 4
}
