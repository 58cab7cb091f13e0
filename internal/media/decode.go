package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV indicates the file is not a readable WAV stream.
var ErrInvalidWAV = errors.New("invalid WAV file")

// Clip is a decoded mono audio track.
type Clip struct {
	Name       string
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length.
func (clip *Clip) Duration() time.Duration {
	if clip == nil || clip.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(clip.Samples)) * time.Second / time.Duration(clip.SampleRate)
}

// DecodeWAV reads a whole WAV stream, down-mixes it to mono and resamples it
// to sampleRate. A non-positive sampleRate keeps the file rate.
func DecodeWAV(r io.ReadSeeker, sampleRate int) (*Clip, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	format := decoder.Format()
	if format == nil || format.NumChannels <= 0 || format.SampleRate <= 0 {
		return nil, ErrInvalidWAV
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	floatBuf := scaleToUnit(buf, bitDepth)
	if floatBuf.Format.NumChannels > 1 {
		transforms.MonoDownmix(floatBuf)
	}

	samples := floatBuf.Data
	rate := floatBuf.Format.SampleRate
	if sampleRate > 0 && sampleRate != rate {
		samples = Resample(samples, rate, sampleRate)
		rate = sampleRate
	}
	return &Clip{Samples: samples, SampleRate: rate}, nil
}

// DecodeWAVFile decodes the WAV file at path.
func DecodeWAVFile(path string, sampleRate int) (*Clip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	clip, err := DecodeWAV(file, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	clip.Name = filepath.Base(path)
	return clip, nil
}

// scaleToUnit converts integer PCM to floats in [-1, 1]. 8-bit WAV data is
// unsigned and is re-centred first.
func scaleToUnit(buf *audio.IntBuffer, bitDepth int) *audio.FloatBuffer {
	scale := 1 / float64(int(1)<<(bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	data := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = float64(v-offset) * scale
	}
	return &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: buf.Format.NumChannels, SampleRate: buf.Format.SampleRate},
		Data:   data,
	}
}

// Resample converts samples between rates with linear interpolation.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}
	count := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float64, count)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// ExtractAudio writes the first audio stream of source to dest as mono
// 16-bit WAV at sampleRate.
func ExtractAudio(ctx context.Context, ffmpegBinary, source, dest string, sampleRate int) error {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// LoadFile decodes path directly when it is a WAV file and otherwise
// extracts its audio track with ffmpeg first.
func LoadFile(ctx context.Context, path, ffmpegBinary string, sampleRate int) (*Clip, error) {
	if isWAV(path) {
		return DecodeWAVFile(path, sampleRate)
	}

	dir, err := os.MkdirTemp("", "racetimer-audio-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	dest := filepath.Join(dir, "track.wav")
	if err := ExtractAudio(ctx, ffmpegBinary, path, dest, sampleRate); err != nil {
		return nil, err
	}
	clip, err := DecodeWAVFile(dest, sampleRate)
	if err != nil {
		return nil, err
	}
	clip.Name = filepath.Base(path)
	return clip, nil
}

func isWAV(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".wav" || ext == ".wave"
}
