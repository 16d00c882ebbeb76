package services

import (
	"bytes"
	"encoding/binary"
	"sync"

	"muse/types"
	"muse/websocket"
)

// fakeHub captures broadcast events for assertions
type fakeHub struct {
	mu     sync.Mutex
	events []types.LibraryMessage
}

func (h *fakeHub) Run() {}

func (h *fakeHub) BroadcastEvent(message types.LibraryMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, message)
}

func (h *fakeHub) RegisterClient(client *websocket.Client)   {}
func (h *fakeHub) UnregisterClient(client *websocket.Client) {}

func (h *fakeHub) eventsOfType(eventType string) []types.LibraryMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	var matched []types.LibraryMessage
	for _, event := range h.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

// id3Fixture builds a minimal ID3v2.3 tagged payload for extractor tests
type id3Fixture struct {
	frames [][]byte
}

func newID3Fixture() *id3Fixture {
	return &id3Fixture{}
}

// text appends a text information frame with ISO-8859-1 encoding
func (f *id3Fixture) text(id, value string) *id3Fixture {
	payload := append([]byte{0x00}, []byte(value)...)
	f.frames = append(f.frames, id3Frame(id, payload))
	return f
}

// picture appends an APIC front-cover frame
func (f *id3Fixture) picture(mimeType string, data []byte) *id3Fixture {
	var payload bytes.Buffer
	payload.WriteByte(0x00) // ISO-8859-1
	payload.WriteString(mimeType)
	payload.WriteByte(0x00)
	payload.WriteByte(0x03) // front cover
	payload.WriteByte(0x00) // empty description
	payload.Write(data)
	f.frames = append(f.frames, id3Frame("APIC", payload.Bytes()))
	return f
}

func (f *id3Fixture) bytes() []byte {
	var body bytes.Buffer
	for _, frame := range f.frames {
		body.Write(frame)
	}

	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{0x03, 0x00, 0x00})
	out.Write(syncsafeSize(uint32(body.Len())))
	out.Write(body.Bytes())
	return out.Bytes()
}

// id3Frame encodes one v2.3 frame: id, big-endian size, zero flags, payload
func id3Frame(id string, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString(id)

	size := make([]byte, 4)
	binary.BigEndian.PutUint32(size, uint32(len(payload)))
	b.Write(size)

	b.Write([]byte{0x00, 0x00})
	b.Write(payload)
	return b.Bytes()
}

// syncsafeSize encodes a length as four 7-bit bytes per the ID3v2 header
func syncsafeSize(n uint32) []byte {
	return []byte{
		byte(n >> 21 & 0x7F),
		byte(n >> 14 & 0x7F),
		byte(n >> 7 & 0x7F),
		byte(n & 0x7F),
	}
}

// flacFixture builds a FLAC stream holding a single STREAMINFO block with
// the given sample rate and total sample count
func flacFixture(sampleRate uint32, totalSamples uint64) []byte {
	info := make([]byte, 34)
	info[10] = byte(sampleRate >> 12)
	info[11] = byte(sampleRate >> 4)
	info[12] = byte(sampleRate&0x0F) << 4
	info[13] = byte(totalSamples >> 32 & 0x0F)
	info[14] = byte(totalSamples >> 24)
	info[15] = byte(totalSamples >> 16)
	info[16] = byte(totalSamples >> 8)
	info[17] = byte(totalSamples)

	var out bytes.Buffer
	out.WriteString("fLaC")
	out.Write([]byte{0x80, 0x00, 0x00, 34}) // last block, STREAMINFO, length 34
	out.Write(info)
	return out.Bytes()
}
