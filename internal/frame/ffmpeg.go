package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// FFmpeg decodes and encodes video by piping raw RGBA frames through ffmpeg
// subprocesses. ffprobe supplies stream metadata.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg locates the ffmpeg and ffprobe binaries. Empty paths are looked up
// in PATH.
func NewFFmpeg(ffmpegPath, ffprobePath string) (*FFmpeg, error) {
	var err error
	if ffmpegPath == "" {
		if ffmpegPath, err = exec.LookPath("ffmpeg"); err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
	}
	if ffprobePath == "" {
		if ffprobePath, err = exec.LookPath("ffprobe"); err != nil {
			return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
		}
	}
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}, nil
}

// DeviceConfig selects a capture device, eg Format "v4l2" and Device "/dev/video0".
type DeviceConfig struct {
	Format string
	Device string
	Width  int // zero lets the device pick
	Height int
	FPS    int
}

// FileSource returns an unopened source decoding the video file at path.
// Frames keep the coded size that ffprobe reports; display rotation from
// container metadata is not applied.
func (ff *FFmpeg) FileSource(path string) *PipeSource {
	return &PipeSource{
		ff:        ff,
		name:      path,
		probeArgs: []string{path},
		inputArgs: []string{"-noautorotate", "-i", path},
	}
}

// DeviceSource returns an unopened source capturing from a camera device.
func (ff *FFmpeg) DeviceSource(cfg DeviceConfig) *PipeSource {
	var input []string
	if cfg.Format != "" {
		input = append(input, "-f", cfg.Format)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		input = append(input, "-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height))
	}
	if cfg.FPS > 0 {
		input = append(input, "-framerate", strconv.Itoa(cfg.FPS))
	}
	probe := append([]string{}, input...)
	probe = append(probe, "-i", cfg.Device)
	input = append(input, "-i", cfg.Device)
	return &PipeSource{
		ff:        ff,
		name:      cfg.Device,
		probeArgs: probe,
		inputArgs: input,
	}
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

func (ff *FFmpeg) probe(args []string) (Info, error) {
	full := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames",
		"-of", "json",
	}
	full = append(full, args...)
	cmd := exec.Command(ff.ffprobePath, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Info{}, fmt.Errorf("ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 || out.Streams[0].Width == 0 || out.Streams[0].Height == 0 {
		return Info{}, errors.New("no video stream")
	}

	s := out.Streams[0]
	info := Info{Width: s.Width, Height: s.Height}
	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseRate(s.RFrameRate)
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.TotalFrames = n
	}
	return info, nil
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// PipeSource reads raw RGBA frames from an ffmpeg decoder process.
type PipeSource struct {
	ff        *FFmpeg
	name      string
	probeArgs []string
	inputArgs []string

	mu     sync.Mutex
	info   Info
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	next   int
	err    error
	closed bool

	waitOnce sync.Once
	waitErr  error
}

func (s *PipeSource) Open() error {
	info, err := s.ff.probe(s.probeArgs)
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrOpen, s.name, err)
	}

	args := []string{"-loglevel", "error", "-nostdin"}
	args = append(args, s.inputArgs...)
	args = append(args, "-an", "-sn", "-f", "rawvideo", "-pix_fmt", "rgba", "-")

	cmd := exec.Command(s.ff.ffmpegPath, args...)
	cmd.Stderr = &s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrOpen, s.name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w %s: %v", ErrOpen, s.name, err)
	}

	s.mu.Lock()
	s.info = info
	s.cmd = cmd
	s.stdout = stdout
	s.mu.Unlock()
	return nil
}

// Read returns the next frame. At the end of the output the decoder is reaped:
// a truncated frame or a non-zero exit status is reported by Err, a clean end
// of stream is not.
func (s *PipeSource) Read() (*Frame, bool) {
	s.mu.Lock()
	cmd, stdout, info, closed, failed := s.cmd, s.stdout, s.info, s.closed, s.err != nil
	s.mu.Unlock()
	if stdout == nil || closed || failed {
		return nil, false
	}

	img := image.NewRGBA(image.Rect(0, 0, info.Width, info.Height))
	if _, err := io.ReadFull(stdout, img.Pix); err != nil {
		s.finish(cmd, err)
		return nil, false
	}

	f := &Frame{Image: img, Index: s.next}
	s.next++
	return f, true
}

func (s *PipeSource) finish(cmd *exec.Cmd, readErr error) {
	var err error
	switch {
	case errors.Is(readErr, io.ErrUnexpectedEOF):
		err = errors.New("truncated frame")
	case !errors.Is(readErr, io.EOF):
		err = readErr
	}
	if werr := s.wait(cmd); werr != nil && err == nil {
		err = fmt.Errorf("decoder: %w: %s", werr, strings.TrimSpace(s.stderr.String()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && !s.closed && s.err == nil {
		s.err = fmt.Errorf("read %s: %w", s.name, err)
	}
}

// wait reaps the decoder once; later calls return the same result.
func (s *PipeSource) wait(cmd *exec.Cmd) error {
	s.waitOnce.Do(func() { s.waitErr = cmd.Wait() })
	return s.waitErr
}

func (s *PipeSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PipeSource) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Close stops the decoder process. It is safe to call more than once, from any
// goroutine, and after a failed Open.
func (s *PipeSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// The process may already have exited at end of stream.
	_ = cmd.Process.Kill()
	if err := s.wait(cmd); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("close %s: %w", s.name, err)
		}
	}
	return nil
}

// PipeSink encodes frames into a video file through an ffmpeg encoder process.
type PipeSink struct {
	path   string
	width  int
	height int

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	closed bool
}

// NewWriter starts an encoder writing a video at path with the resolution and
// frame rate of info.
func (ff *FFmpeg) NewWriter(path string, info Info) (*PipeSink, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w writer %s: invalid size %dx%d", ErrOpen, path, info.Width, info.Height)
	}
	fps := info.FPS
	if fps <= 0 {
		fps = 30
	}

	args := []string{
		"-y", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-c:v", "mpeg4",
		"-q:v", "5",
		path,
	}

	w := &PipeSink{path: path, width: info.Width, height: info.Height}
	cmd := exec.Command(ff.ffmpegPath, args...)
	cmd.Stderr = &w.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w writer %s: %v", ErrOpen, path, err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("%w writer %s: %v", ErrOpen, path, err)
	}
	w.cmd = cmd
	w.stdin = stdin
	return w, nil
}

func (w *PipeSink) Write(f *Frame) error {
	if f.Width() != w.width || f.Height() != w.height {
		return fmt.Errorf("%w: got %dx%d, writer is %dx%d", ErrSize, f.Width(), f.Height(), w.width, w.height)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("write %s: writer closed", w.path)
	}

	img := f.Image
	rowBytes := w.width * 4
	if img.Stride == rowBytes {
		_, err := w.stdin.Write(img.Pix[:rowBytes*w.height])
		return err
	}
	for y := 0; y < w.height; y++ {
		off := y * img.Stride
		if _, err := w.stdin.Write(img.Pix[off : off+rowBytes]); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the encoder and waits for the file to be finalized.
func (w *PipeSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("encode %s: %w: %s", w.path, err, strings.TrimSpace(w.stderr.String()))
	}
	return nil
}
