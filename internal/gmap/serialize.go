package gmap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samcharles93/convmap/internal/conv"
	"github.com/samcharles93/convmap/internal/tunable"
)

const separator = "----------------------------------------------------------------"

// WriteBanner writes the one-line tensor header of an operand dump. Axis
// order follows the tensor layout.
func WriteBanner(w io.Writer, op Operand, p conv.Params, t tunable.Tunable) error {
	nhwc := t.Layout == tunable.NHWC
	var axes string
	switch op {
	case Input:
		if nhwc {
			axes = fmt.Sprintf("n:%d, h:%d, w:%d, c:%d", p.Batch, p.InH, p.InW, p.InChannels)
		} else {
			axes = fmt.Sprintf("n:%d, c:%d, h:%d, w:%d", p.Batch, p.InChannels, p.InH, p.InW)
		}
	case Weight:
		if nhwc {
			axes = fmt.Sprintf("k:%d, y:%d, x:%d, c:%d", p.OutChannels, p.FilH, p.FilW, p.InChannels)
		} else {
			axes = fmt.Sprintf("k:%d, c:%d, y:%d, x:%d", p.OutChannels, p.InChannels, p.FilH, p.FilW)
		}
	case Output:
		if nhwc {
			axes = fmt.Sprintf("n:%d, h:%d, w:%d, k:%d", p.Batch, p.OutH(), p.OutW(), p.OutChannels)
		} else {
			axes = fmt.Sprintf("n:%d, k:%d, h:%d, w:%d", p.Batch, p.OutChannels, p.OutH(), p.OutW())
		}
	default:
		return fmt.Errorf("gmap: unknown operand %d", int(op))
	}
	_, err := fmt.Fprintf(w, "[%s] %s, %s, %s, g:%d\n", op.Tag(), t.Layout, t.Precision, axes, p.Groups)
	return err
}

// WriteRequests writes every request in storage order. Each request is a
// header with its aliasing blocks and lane efficiency, four threads per line,
// and a separator.
func WriteRequests(w io.Writer, reqs []BlockRequest) error {
	bw := bufio.NewWriter(w)
	var lanes []string
	for i := range reqs {
		r := &reqs[i]
		bw.WriteString("[b:")
		for _, bid := range r.BlockIDs {
			bw.WriteString(strconv.FormatUint(bid, 10))
			bw.WriteByte(',')
		}
		valid, total := r.Lanes()
		var pct float32
		if total > 0 {
			pct = float32(valid) / float32(total) * 100
		}
		fmt.Fprintf(bw, " r:%d] access:%d/%d(%.1f%%)\n", r.ReqIdx, valid, total, pct)

		for j, t := range r.Threads {
			lanes = lanes[:0]
			for v := range t.Vector {
				lanes = append(lanes, strconv.FormatUint(t.Offset+v*t.DataByte, 16))
			}
			mark := "n"
			if t.Valid {
				mark = "y"
			}
			fmt.Fprintf(bw, "t%d:%s(%s)", t.TID, strings.Join(lanes, ","), mark)
			if j%4 == 3 {
				bw.WriteByte('\n')
			} else {
				bw.WriteByte('\t')
			}
		}
		bw.WriteString(separator)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
