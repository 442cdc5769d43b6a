package wake_model

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime loads the ONNX Runtime shared library once per process.
// libraryPath may be empty to fall back to $ONNXRUNTIME_LIB and then the
// library's own default search.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = os.Getenv("ONNXRUNTIME_LIB")
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("wake_model: initialize onnx runtime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

func runtimeReady() bool {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	return runtimeInitialized
}

// DestroyRuntime tears the environment down at shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("wake_model: destroy onnx runtime: %w", err)
	}

	runtimeInitialized = false
	return nil
}
