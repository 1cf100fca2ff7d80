package ogg

// Stream is one logical bitstream reassembled from its pages.
type Stream struct {
	// Packets holds the first completed packets of the stream, up to the
	// demuxer's keep limit. Later packets are counted but not retained.
	Packets     [][]byte
	partial     []byte
	PacketCount int
	LastGranule int64
	Serial      int32
	Ended       bool
	keep        int
	inPacket    bool
}

// push appends the fragments of a page to the stream.
func (s *Stream) push(p *Page) {
	for i, frag := range p.Packets {
		if i == 0 && p.Continued && s.inPacket {
			s.partial = append(s.partial, frag...)
		} else {
			// A fresh packet start drops any fragment left by a lost page.
			s.partial = append(s.partial[:0:0], frag...)
		}
		s.inPacket = true

		if i < len(p.Packets)-1 || p.Finished {
			s.complete()
		}
	}

	if p.GranulePosition >= 0 {
		s.LastGranule = p.GranulePosition
	}
	if p.LastOfStream {
		s.Ended = true
	}
}

func (s *Stream) complete() {
	packet := s.partial
	s.partial = nil
	s.inPacket = false

	if len(packet) == 0 {
		return
	}
	s.PacketCount++
	if len(s.Packets) < s.keep {
		s.Packets = append(s.Packets, packet)
	}
}

// Demuxer routes pages to logical streams keyed by serial number.
type Demuxer struct {
	pr      *PageReader
	streams map[int32]*Stream
	order   []*Stream
	keep    int
	pastBOS bool
}

// NewDemuxer creates a demuxer that retains the first keep packets of every stream.
func NewDemuxer(pr *PageReader, keep int) *Demuxer {
	return &Demuxer{
		pr:      pr,
		streams: make(map[int32]*Stream),
		keep:    keep,
	}
}

// Streams returns the streams opened so far in the order they appeared.
func (d *Demuxer) Streams() []*Stream {
	return d.order
}

// ReadHeaders consumes pages until every stream holds its retained packets.
// Streams are only opened by beginning-of-stream pages, which precede all
// other pages, so no new stream can appear once a regular page was seen.
func (d *Demuxer) ReadHeaders() error {
	for {
		if d.pastBOS && len(d.order) > 0 && d.headersComplete() {
			return nil
		}
		if !d.pr.Next() {
			return d.pr.Err()
		}
		d.push(d.pr.Page())
	}
}

// Drain consumes every remaining page.
func (d *Demuxer) Drain() error {
	for d.pr.Next() {
		d.push(d.pr.Page())
	}
	return d.pr.Err()
}

func (d *Demuxer) headersComplete() bool {
	for _, s := range d.order {
		if len(s.Packets) < d.keep && !s.Ended {
			return false
		}
	}
	return true
}

func (d *Demuxer) push(p *Page) {
	if p.FirstOfStream {
		s := &Stream{Serial: p.Serial, keep: d.keep, LastGranule: -1}
		if _, exists := d.streams[p.Serial]; !exists {
			d.order = append(d.order, s)
		} else {
			for i, old := range d.order {
				if old.Serial == p.Serial {
					d.order[i] = s
				}
			}
		}
		d.streams[p.Serial] = s
	} else {
		d.pastBOS = true
	}

	s, ok := d.streams[p.Serial]
	if !ok {
		// Page of a stream whose first page was never seen.
		return
	}
	s.push(p)
}
