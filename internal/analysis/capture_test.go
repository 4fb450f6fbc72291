package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePcap(t *testing.T, path string, n int) time.Time {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeRaw))

	start := time.Unix(1700000000, 0).UTC()
	payload := make([]byte, 40)
	for i := 0; i < n; i++ {
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Second),
			CaptureLength: len(payload),
			Length:        len(payload),
		}
		require.NoError(t, w.WritePacket(ci, payload))
	}
	return start
}

func TestInspectCapture_Pcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	start := writePcap(t, path, 3)

	info, err := InspectCapture(path)
	require.NoError(t, err)
	assert.Equal(t, "pcap", info.Format)
	assert.Equal(t, layers.LinkTypeRaw, info.LinkType)
	assert.Equal(t, 3, info.Packets)
	assert.Equal(t, int64(120), info.Bytes)
	assert.True(t, info.First.Equal(start))
	assert.Equal(t, 2*time.Second, info.Duration())
}

func TestInspectCapture_Pcapng(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	payload := make([]byte, 60)
	ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: 60, Length: 60}
	require.NoError(t, w.WritePacket(ci, payload))
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	info, err := InspectCapture(path)
	require.NoError(t, err)
	assert.Equal(t, "pcapng", info.Format)
	assert.Equal(t, 1, info.Packets)
}

func TestInspectCapture_Rejects(t *testing.T) {
	dir := t.TempDir()

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0644))
	_, err := InspectCapture(txt)
	assert.ErrorIs(t, err, ErrCaptureInvalid)

	garbage := filepath.Join(dir, "garbage.cap")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a capture"), 0644))
	_, err = InspectCapture(garbage)
	assert.ErrorIs(t, err, ErrCaptureInvalid)

	short := filepath.Join(dir, "short.pcap")
	require.NoError(t, os.WriteFile(short, []byte{0xd4}, 0644))
	_, err = InspectCapture(short)
	assert.ErrorIs(t, err, ErrCaptureInvalid)

	_, err = InspectCapture(filepath.Join(dir, "missing.pcap"))
	assert.Error(t, err)
}
