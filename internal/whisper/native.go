//go:build whispercpp

package whisper

/*
#cgo LDFLAGS: -lwhisper -lggml -lggml-base -lstdc++ -lm

#include <stdlib.h>
#include <whisper.h>
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"flemme/internal/transcribe"
)

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return true }

type nativeModel struct {
	mu  sync.Mutex
	ctx *C.struct_whisper_context
}

func newNative(path string) (transcribe.Model, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	cParams := C.whisper_context_default_params()
	ctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if ctx == nil {
		return nil, fmt.Errorf("whisper: failed to initialise context for %s", path)
	}
	return &nativeModel{ctx: ctx}, nil
}

func (m *nativeModel) Transcribe(ctx context.Context, samples []float32, p transcribe.Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return "", errors.New("whisper: model closed")
	}

	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	params.print_timestamps = C.bool(false)
	params.print_special = C.bool(false)
	params.translate = C.bool(false)
	if p.Threads > 0 {
		params.n_threads = C.int(p.Threads)
	}

	// "auto" detects the language, then decodes. Leave detect_language unset:
	// it makes whisper_full return before any segment is produced.
	cLang := C.CString(language(p.Language))
	defer C.free(unsafe.Pointer(cLang))
	params.language = cLang

	if prompt := strings.TrimSpace(p.Prompt); prompt != "" {
		cPrompt := C.CString(prompt)
		defer C.free(unsafe.Pointer(cPrompt))
		params.initial_prompt = cPrompt
	}

	cSamples := (*C.float)(unsafe.Pointer(&samples[0]))
	if ret := C.whisper_full(m.ctx, params, cSamples, C.int(len(samples))); ret != 0 {
		return "", fmt.Errorf("whisper: inference failed with code %d", int(ret))
	}

	n := int(C.whisper_full_n_segments(m.ctx))
	segments := make([]string, 0, n)
	for i := 0; i < n; i++ {
		segments = append(segments, C.GoString(C.whisper_full_get_segment_text(m.ctx, C.int(i))))
	}
	return cleanTranscript(segments), nil
}

func (m *nativeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		C.whisper_free(m.ctx)
		m.ctx = nil
	}
	return nil
}
