package conv

// InputAccessMap reports, per input row and per input column, whether any
// (output position, filter tap) pair reads it. It is derived from the
// parameters alone and serves as the reference the simulated traces are
// checked against.
//
// Negative positions (inside the top/left padding) wrap as unsigned values
// and fail the bound check the same way the simulated kernel's do.
func (p Params) InputAccessMap() (validH, validW []bool) {
	validH = reachable(p.InH, p.OutH(), p.FilH, p.StrideH, p.PadH, p.DilationH)
	validW = reachable(p.InW, p.OutW(), p.FilW, p.StrideW, p.PadW, p.DilationW)
	return validH, validW
}

func reachable(in, out, k, stride, pad, dilation uint64) []bool {
	valid := make([]bool, in)
	for o := range out {
		for f := range k {
			i := stride*o - pad + dilation*f
			if i < in {
				valid[i] = true
			}
		}
	}
	return valid
}
