package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(samples ...float64) []byte {
	var buf bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float64bits(s))
	}
	return buf.Bytes()
}

func TestBytesToFloat64(t *testing.T) {
	data := append(encode(0.5, -1, 0.25), 0x01, 0x02)
	assert.Equal(t, []float64{0.5, -1, 0.25}, bytesToFloat64(data))
	assert.Nil(t, bytesToFloat64([]byte{1, 2, 3}))
}

func TestReadChunks(t *testing.T) {
	data := encode(1, 2, 3, 4, 5)

	var got [][]float64
	err := readChunks(bytes.NewReader(data), 2, func(c []float64) error {
		got = append(got, append([]float64(nil), c...))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5}}, got)

	stop := errors.New("stop")
	calls := 0
	err = readChunks(bytes.NewReader(data), 2, func([]float64) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestParseFFprobeOutput(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3","sample_rate":"48000","channels":2,"duration":"12.5","bit_rate":"128000","codec_long_name":"MP3"}]}`)

	meta, err := parseFFprobeOutput(out)
	require.NoError(t, err)
	assert.Equal(t, &AudioMetadata{SampleRate: 48000, Channels: 2, Codec: "mp3", Duration: 12.5, Bitrate: 128000, Format: "MP3"}, meta)

	_, err = parseFFprobeOutput([]byte(`{"streams":[]}`))
	assert.Error(t, err)
	_, err = parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"video","channels":1}]}`))
	assert.Error(t, err)
	_, err = parseFFprobeOutput([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuildFFmpegArgs(t *testing.T) {
	d := NewDecoder(nil)

	args := d.buildFFmpegArgs(&AudioMetadata{SampleRate: 44100})
	assert.Equal(t, []string{"-f", "f64le", "-ac", "1", "-ar", "44100", "-v", "error"}, args)

	args = d.buildFFmpegArgs(nil)
	assert.Contains(t, args, "aresample=resampler=soxr:precision=20")

	cfg := DefaultDecoderConfig()
	cfg.EnableNormalization = true
	cfg.NormalizationMethod = "loudnorm"
	args = NewDecoder(cfg).buildFFmpegArgs(&AudioMetadata{SampleRate: 22050})
	assert.Contains(t, args, "aresample=resampler=soxr:precision=20,loudnorm=I=-20.0:TP=-3.0:LRA=5.0")

	assert.Equal(t, []string{"-i", "in.wav", "-f", "f64le", "-ac", "1", "-ar", "44100", "-v", "error", "pipe:1"},
		d.inputArgs("in.wav", &AudioMetadata{SampleRate: 44100}))
}

func TestMono(t *testing.T) {
	assert.Equal(t, []float64{1.5, 0}, Mono([]float64{1, 2, -1, 1}, 2))
	in := []float64{1, 2}
	assert.Equal(t, in, Mono(in, 1))
}

func TestDecodeFileWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	gen := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi", "-i", "sine=frequency=440:duration=0.5", "-ar", "44100", path)
	require.NoError(t, gen.Run())
	_, err := os.Stat(path)
	require.NoError(t, err)

	d := NewDecoder(nil)
	audio, err := d.DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 44100, audio.SampleRate)
	assert.InDelta(t, 22050, len(audio.PCM), 1100)

	total := 0
	err = d.Stream(context.Background(), path, 1024, func(c []float64) error {
		total += len(c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(audio.PCM), total)
}
