package analysis

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// CaptureExtensions are the file extensions accepted for upload.
var CaptureExtensions = []string{".pcap", ".pcapng", ".cap"}

// CaptureInfo summarises a capture file before it is uploaded.
type CaptureInfo struct {
	Path     string          `json:"path"`
	Format   string          `json:"format"`
	LinkType layers.LinkType `json:"link_type"`
	Packets  int             `json:"packets"`
	Bytes    int64           `json:"bytes"`
	First    time.Time       `json:"first"`
	Last     time.Time       `json:"last"`
}

// Duration is the time between the first and the last record.
func (c *CaptureInfo) Duration() time.Duration {
	if c.Packets == 0 {
		return 0
	}
	return c.Last.Sub(c.First)
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

const pcapngMagic = 0x0a0d0d0a

var pcapMagics = map[uint32]bool{
	0xa1b2c3d4: true, 0xd4c3b2a1: true, // microsecond
	0xa1b23c4d: true, 0x4d3cb2a1: true, // nanosecond
}

// InspectCapture checks that path is a pcap or pcapng file and counts its
// records. Packet contents are not decoded.
func InspectCapture(path string) (*CaptureInfo, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !validExtension(ext) {
		return nil, fmt.Errorf("%w: %q must end in %s", ErrCaptureInvalid, filepath.Base(path),
			strings.Join(CaptureExtensions, ", "))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("%w: file too short", ErrCaptureInvalid)
	}

	info := &CaptureInfo{Path: path}
	var r packetReader

	if binary.LittleEndian.Uint32(head) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureInvalid, err)
		}
		info.Format = "pcapng"
		info.LinkType = ng.LinkType()
		r = ng
	} else if pcapMagics[binary.LittleEndian.Uint32(head)] {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureInvalid, err)
		}
		info.Format = "pcap"
		info.LinkType = pr.LinkType()
		r = pr
	} else {
		return nil, fmt.Errorf("%w: unrecognised file header", ErrCaptureInvalid)
	}

	for {
		_, ci, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCaptureInvalid, info.Packets+1, err)
		}
		if info.Packets == 0 {
			info.First = ci.Timestamp
		}
		info.Last = ci.Timestamp
		info.Packets++
		info.Bytes += int64(ci.Length)
	}

	return info, nil
}

func validExtension(ext string) bool {
	for _, e := range CaptureExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
