package metadata

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Info describes what could be learned from a staged audio file.
// Zero values mean the property could not be determined.
type Info struct {
	Title           string
	Artist          string
	Album           string
	DurationSeconds float64
	BitrateKbps     int
	SizeBytes       int64
}

// Inspector is the function form of Inspect, useful for substituting in tests.
type Inspector func(path string) (Info, error)

// Inspect reads the tags and frames of the audio file at path. Missing tags
// and undecodable frames are not errors; only an unreadable file is.
func Inspect(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}

	info := Info{SizeBytes: stat.Size()}
	info.Title, info.Artist, info.Album = readTags(path)

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		dur, err := computeMP3Duration(path)
		if err == nil && dur > 0 {
			info.DurationSeconds = dur
			info.BitrateKbps = int(math.Round((float64(stat.Size()) * 8) / dur / 1000))
		}
	}

	return info, nil
}

func readTags(path string) (string, string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", ""
	}

	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist()), strings.TrimSpace(meta.Album())
}

func computeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}
