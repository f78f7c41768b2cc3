//go:build linux || darwin

package loading

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ebitengine/purego"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// nativeModule wraps a dlopen'd backend artifact. Artifacts expose a single
// C entry point:
//
//	const char* accel_transcribe(const char* request_json)
//
// Request and response travel as JSON so the ABI stays stable across
// backend builds.
type nativeModule struct {
	name string
	lib  uintptr
	run  func(string) string
}

var defaultOpener Opener = openNative

func openNative(path string) (mod Module, err error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}

	// RegisterLibFunc panics on a missing symbol; surface that as a load
	// error instead of crashing the host.
	defer func() {
		if r := recover(); r != nil {
			_ = purego.Dlclose(lib)
			mod, err = nil, fmt.Errorf("register entry point: %v", r)
		}
	}()

	var run func(string) string
	purego.RegisterLibFunc(&run, lib, "accel_transcribe")

	return &nativeModule{name: path, lib: lib, run: run}, nil
}

type nativeRequest struct {
	Model        string            `json:"model"`
	InputPath    string            `json:"input_path"`
	Language     string            `json:"language,omitempty"`
	AudioCtx     int               `json:"audio_ctx,omitempty"`
	ValidateOnly bool              `json:"validate_only,omitempty"`
	Backend      map[string]string `json:"backend,omitempty"`
}

type nativeSegment struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

type nativeResponse struct {
	Segments []nativeSegment `json:"segments"`
	Error    string          `json:"error,omitempty"`
}

func (m *nativeModule) Name() string {
	return m.name
}

func (m *nativeModule) Entrypoints() map[string]domain.InferenceFunc {
	return map[string]domain.InferenceFunc{"transcribe": m.transcribe}
}

func (m *nativeModule) transcribe(ctx context.Context, params domain.TranscribeParams) (*domain.TranscribeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := json.Marshal(nativeRequest{
		Model:        string(params.Model),
		InputPath:    params.InputPath,
		Language:     params.Language,
		AudioCtx:     params.AudioCtx,
		ValidateOnly: params.ValidateOnly,
		Backend:      params.Backend,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp nativeResponse
	if err := json.Unmarshal([]byte(m.run(string(req))), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("backend error: %s", resp.Error)
	}

	result := &domain.TranscribeResult{Segments: make([]domain.Segment, len(resp.Segments))}
	for i, s := range resp.Segments {
		result.Segments[i] = domain.Segment{
			Start: msToDuration(s.StartMs),
			End:   msToDuration(s.EndMs),
			Text:  s.Text,
		}
	}
	return result, nil
}

func (m *nativeModule) Close() error {
	return purego.Dlclose(m.lib)
}
