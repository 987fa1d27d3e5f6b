package metadata

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// 128 kbps, 44.1 kHz, joint stereo MPEG-1 Layer III without CRC or padding.
var mpegFrameHeader = []byte{0xFF, 0xFB, 0x90, 0x64}

const (
	mpegFrameSize    = 417
	mpegFrameSeconds = 1152.0 / 44100.0
)

func mpegFrames(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		frame := make([]byte, mpegFrameSize)
		copy(frame, mpegFrameHeader)
		buf.Write(frame)
	}
	return buf.Bytes()
}

// id3v23 builds an ID3v2.3 tag holding the given text frames.
func id3v23(frames map[string]string) []byte {
	var body bytes.Buffer
	for _, id := range []string{"TIT2", "TPE1", "TALB"} {
		text, ok := frames[id]
		if !ok {
			continue
		}
		body.WriteString(id)
		_ = binary.Write(&body, binary.BigEndian, uint32(len(text)+1))
		body.Write([]byte{0, 0, 0})
		body.WriteString(text)
	}

	size := body.Len()
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size>>21) & 0x7F, byte(size>>14) & 0x7F, byte(size>>7) & 0x7F, byte(size) & 0x7F}
	return append(header, body.Bytes()...)
}

func TestInspectNonMP3HasNoDuration(t *testing.T) {
	root := t.TempDir()
	for _, ext := range []string{".wav", ".flac", ".ogg"} {
		path := filepath.Join(root, "episode"+ext)
		if err := os.WriteFile(path, []byte("audio data"), 0o600); err != nil {
			t.Fatalf("write %s: %v", ext, err)
		}

		info, err := Inspect(path)
		if err != nil {
			t.Fatalf("Inspect(%s): %v", ext, err)
		}
		if info.DurationSeconds != 0 {
			t.Fatalf("expected unknown duration for %s, got %f", ext, info.DurationSeconds)
		}
		if info.BitrateKbps != 0 {
			t.Fatalf("expected unknown bitrate for %s, got %d", ext, info.BitrateKbps)
		}
		if info.SizeBytes != int64(len("audio data")) {
			t.Fatalf("expected size %d, got %d", len("audio data"), info.SizeBytes)
		}
	}
}

func TestInspectInvalidMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episode-1-abc.mp3")
	if err := os.WriteFile(path, []byte("not really an mp3"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect unexpected error: %v", err)
	}
	if info.DurationSeconds != 0 || info.BitrateKbps != 0 {
		t.Fatalf("expected no duration or bitrate on decode error, got %+v", info)
	}
	if info.Title != "" || info.Artist != "" || info.Album != "" {
		t.Fatalf("expected empty tags, got %+v", info)
	}
}

func TestInspectMissingFile(t *testing.T) {
	if _, err := Inspect(filepath.Join(t.TempDir(), "missing.mp3")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadTagsOnUnreadableFile(t *testing.T) {
	title, artist, album := readTags("/no/such/file.mp3")
	if title != "" || artist != "" || album != "" {
		t.Fatalf("expected empty metadata on failure")
	}
}

func TestComputeMP3DurationErrors(t *testing.T) {
	if _, err := computeMP3Duration("/does/not/exist.mp3"); err == nil {
		t.Fatalf("expected error when file is missing")
	}

	path := filepath.Join(t.TempDir(), "bad.mp3")
	if err := os.WriteFile(path, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	duration, err := computeMP3Duration(path)
	if err == nil {
		t.Fatalf("expected decode error for invalid mp3 data")
	}
	if duration != 0 {
		t.Fatalf("expected zero duration on error, got %f", duration)
	}
}

func TestInspectDecodesMPEGFrames(t *testing.T) {
	const frames = 200
	path := filepath.Join(t.TempDir(), "episode.mp3")
	if err := os.WriteFile(path, mpegFrames(frames), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	want := frames * mpegFrameSeconds
	if math.Abs(info.DurationSeconds-want) > 0.01 {
		t.Fatalf("expected duration near %.3fs, got %.3fs", want, info.DurationSeconds)
	}
	if info.BitrateKbps < 126 || info.BitrateKbps > 130 {
		t.Fatalf("expected bitrate near 128 kbps, got %d", info.BitrateKbps)
	}
	if info.SizeBytes != frames*mpegFrameSize {
		t.Fatalf("expected size %d, got %d", frames*mpegFrameSize, info.SizeBytes)
	}
}

func TestInspectReadsID3TagsAheadOfFrames(t *testing.T) {
	data := id3v23(map[string]string{
		"TIT2": "Pilot",
		"TPE1": "Jane Host",
		"TALB": "Weekly Show",
	})
	data = append(data, mpegFrames(50)...)

	path := filepath.Join(t.TempDir(), "tagged.mp3")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Title != "Pilot" || info.Artist != "Jane Host" || info.Album != "Weekly Show" {
		t.Fatalf("unexpected tags %+v", info)
	}
	if want := 50 * mpegFrameSeconds; math.Abs(info.DurationSeconds-want) > 0.01 {
		t.Fatalf("expected duration near %.3fs, got %.3fs", want, info.DurationSeconds)
	}
	if info.BitrateKbps <= 0 {
		t.Fatalf("expected a positive bitrate, got %d", info.BitrateKbps)
	}
}
