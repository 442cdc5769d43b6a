package utterance_recorder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"

	"assistant-ears/audio_frame"
	"assistant-ears/utterance"
)

type recorderImpl struct {
	fileSys afero.Fs
	dir     string
}

type Config struct {
	FileSys afero.Fs
	Dir     string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Dir == "" {
		return nil, fmt.Errorf("dir is empty")
	}

	if err := cfg.FileSys.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("utterance_recorder: create %s: %w", cfg.Dir, err)
	}

	return &recorderImpl{
		fileSys: cfg.FileSys,
		dir:     cfg.Dir,
	}, nil
}

func (r *recorderImpl) Save(u *utterance.Utterance) (string, error) {
	if u == nil {
		return "", fmt.Errorf("utterance is nil")
	}

	waveFilename := filepath.Join(r.dir,
		"utterance"+strconv.FormatInt(u.StartedAt.Unix(), 10)+"-"+u.ID.String()+".wav")

	waveFile, err := r.fileSys.Create(waveFilename)
	if err != nil {
		return "", fmt.Errorf("utterance_recorder: create %s: %w", waveFilename, err)
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    u.SampleRate,
		BitsPerSample: audio_frame.BitDepth,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		_ = waveFile.Close()
		return "", fmt.Errorf("utterance_recorder: %w", err)
	}

	if _, err := waveWriter.WriteSample16(u.PCM); err != nil {
		_ = waveWriter.Close()
		return "", fmt.Errorf("utterance_recorder: write %s: %w", waveFilename, err)
	}

	// Close flushes the header and closes the file.
	if err := waveWriter.Close(); err != nil {
		return "", fmt.Errorf("utterance_recorder: close %s: %w", waveFilename, err)
	}

	return waveFilename, nil
}
