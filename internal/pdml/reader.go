package pdml

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/m-lab/pdmlsql/internal/fixups"
	"github.com/m-lab/pdmlsql/internal/schema"
	"github.com/m-lab/pdmlsql/metrics"
)

var logSkippedPacket = logx.NewLogEvery(nil, 10*time.Second)

// Reader streams a pdml document packet-at-a-time, holding at most one
// packet's subtree in memory (spec.md S4.4). Exceptions during tree
// building are caught at the packet boundary: the packet is skipped and
// logged, and the reader advances to the next <packet>. The XML decoder
// runs in non-strict mode, so a mismatched end tag inside a packet is
// closed automatically; any other XML syntax error ends the stream.
type Reader struct {
	dec         *xml.Decoder
	reg         *schema.Registry
	eng         *fixups.Engine
	filePath    string
	packetIndex int
}

// NewReader returns a Reader over r. filePath is stamped onto the geninfo
// row of every packet it reads.
func NewReader(r io.Reader, reg *schema.Registry, eng *fixups.Engine, filePath string) *Reader {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	return &Reader{dec: dec, reg: reg, eng: eng, filePath: filePath}
}

// Next returns the flattened rows for the next packet, or ok=false at
// end of input. A malformed or panicking packet is skipped (logged) rather
// than surfaced; err is reserved for a broken underlying stream or an XML
// syntax error, after which no further packets can be read.
func (pr *Reader) Next() (rows []*DataRow, ok bool, err error) {
	for {
		tok, terr := pr.dec.Token()
		if terr != nil {
			if terr == io.EOF {
				return nil, false, nil
			}
			return nil, false, terr
		}
		start, isStart := tok.(xml.StartElement)
		if !isStart || start.Name.Local != TagPacket {
			continue
		}
		rows, ok = pr.processPacket(start)
		if ok {
			return rows, true, nil
		}
		// processPacket already logged; keep scanning for the next packet.
	}
}

func (pr *Reader) processPacket(start xml.StartElement) (rows []*DataRow, ok bool) {
	index := pr.packetIndex
	defer func() {
		if r := recover(); r != nil {
			logSkippedPacket.Println(fmt.Sprintf("pdml: skipping packet %d in %s after panic: %v", index, pr.filePath, r))
			metrics.PacketCount.WithLabelValues("skip").Inc()
			rows, ok = nil, false
		}
	}()

	raw, err := parseElem(pr.dec, start)
	if err != nil {
		logSkippedPacket.Println(fmt.Sprintf("pdml: skipping packet %d in %s: %v", index, pr.filePath, err))
		metrics.PacketCount.WithLabelValues("skip").Inc()
		return nil, false
	}
	pr.packetIndex++

	tops := BuildPacket(raw, pr.reg, pr.eng)
	rows = FlattenPacket(tops, pr.filePath)
	metrics.PacketCount.WithLabelValues("ok").Inc()
	return rows, true
}
