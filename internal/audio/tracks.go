package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"go.uber.org/zap"
)

// resampleQuality is passed to beep.Resample; 4 is the library's recommended
// quality for real-time use.
const resampleQuality = 4

// TrackLoader turns a track name into an endless streamer. It must never
// fail: an unusable track yields silence.
type TrackLoader interface {
	Load(track string) beep.Streamer
}

// SilentLoader plays silence for every track.
type SilentLoader struct{}

func (SilentLoader) Load(string) beep.Streamer { return beep.Silence(-1) }

// WavLoader decodes WAV files under a directory, resamples them to the mix
// rate and loops them. Decoded tracks are buffered in memory and shared by
// every voice playing them.
type WavLoader struct {
	dir   string
	rate  beep.SampleRate
	log   *zap.Logger
	cache map[string]*beep.Buffer
}

func NewWavLoader(dir string, rate beep.SampleRate, log *zap.Logger) *WavLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &WavLoader{
		dir:   dir,
		rate:  rate,
		log:   log,
		cache: make(map[string]*beep.Buffer),
	}
}

func (w *WavLoader) Load(track string) beep.Streamer {
	if track == "" {
		return beep.Silence(-1)
	}
	buf, ok := w.cache[track]
	if !ok {
		var err error
		buf, err = w.decode(track)
		if err != nil {
			w.log.Warn("audio track unavailable, playing silence", zap.String("track", track), zap.Error(err))
			return beep.Silence(-1)
		}
		w.cache[track] = buf
	}
	if buf.Len() == 0 {
		return beep.Silence(-1)
	}
	return beep.Loop(-1, buf.Streamer(0, buf.Len()))
}

func (w *WavLoader) decode(track string) (*beep.Buffer, error) {
	path, err := w.resolve(track)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != w.rate {
		src = beep.Resample(resampleQuality, format.SampleRate, w.rate, streamer)
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: w.rate, NumChannels: 2, Precision: 2})
	buf.Append(src)
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf, nil
}

// resolve maps a track name to a file inside dir, adding .wav when missing.
func (w *WavLoader) resolve(track string) (string, error) {
	name := filepath.Clean(filepath.FromSlash(track))
	if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("track %q escapes %s", track, w.dir)
	}
	if filepath.Ext(name) == "" {
		name += ".wav"
	}
	return filepath.Join(w.dir, name), nil
}
