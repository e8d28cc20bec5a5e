package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog      zerolog.Logger
	diagFile     *os.File
	analysisFile *os.File
	logMu        sync.Mutex
	logReady     bool
	pid          int
	dir          string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: EARSHOT_LOG_PATH environment variable
	envPath := os.Getenv("EARSHOT_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	analysisPath := filepath.Join(dir, "analysis_log.txt")
	analysisFile, err = os.OpenFile(analysisPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if analysisFile != nil {
		analysisFile.Close()
		analysisFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(mode, model string, windowSeconds int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("mode", mode).
		Str("model", model).
		Int("window_s", windowSeconds).
		Msg("session_start")
}

func SessionEnd(segments int, archiveKB float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("segments", segments).
		Float64("archive_kb", archiveKB).
		Msg("session_end")
}

func CacheStatus(active bool, model string, contentChars int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Bool("active", active).
		Str("model", model).
		Int("content_chars", contentChars).
		Msg("cache_status")
}

type AnalysisMetricsData struct {
	Scope        string // "window" or "full"
	Model        string
	AudioSeconds float64
	PayloadKB    float64
	Cached       bool
	Chunks       int
	OutputChars  int
	TotalMs      float64
}

func AnalysisMetrics(m AnalysisMetricsData) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("scope", m.Scope).
		Str("model", m.Model).
		Float64("audio_s", m.AudioSeconds).
		Float64("payload_kb", m.PayloadKB).
		Bool("cached", m.Cached).
		Int("chunks", m.Chunks).
		Int("output_chars", m.OutputChars).
		Float64("total_ms", m.TotalMs).
		Msg("analysis")
}

// AnalysisText appends the full response text to analysis_log.txt.
func AnalysisText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	analysisFile.WriteString(line)
}

func SessionWipe() {
	if !logReady {
		return
	}
	diagLog.Info().Msg("session_wipe")
}
