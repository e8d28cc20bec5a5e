package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"earshot/audio"
	"earshot/doctor"
	"earshot/engine"
	"earshot/gemini"
	"earshot/log"
	"earshot/meter"
)

var version = "dev"

// Models offered by the 'm' key, in cycle order.
var models = []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"}

var shutdownOnce sync.Once

func gracefulShutdown(restore func()) {
	shutdownOnce.Do(func() {
		if restore != nil {
			restore()
		}
		log.Close()
		os.Exit(0)
	})
}

func main() {
	modeFlag := flag.String("mode", "mic", "Capture source: mic, system, or mixed")
	modelFlag := flag.String("model", engine.DefaultModel, "Inference model")
	windowFlag := flag.Int("window", engine.DefaultWindowSeconds, "Rolling window length in seconds")
	instructionFlag := flag.String("instruction", "", "System instruction for analysis")
	knowledgeFlag := flag.String("knowledge", "", "Path to a context document sent with every analysis")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("earshot %s\n", version)
		os.Exit(0)
	}
	if *doctorFlag {
		os.Exit(doctor.Run())
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	mode, err := engine.ParseMode(*modeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY is not set")
		os.Exit(1)
	}

	var knowledge string
	if *knowledgeFlag != "" {
		data, err := os.ReadFile(*knowledgeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading knowledge file: %v\n", err)
			os.Exit(1)
		}
		knowledge = string(data)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var micDevice *audio.DeviceInfo
	if *setupFlag {
		micDevice, err = audio.SelectDevice(actx, audio.Microphone)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		}
	}

	eng := engine.New(engine.Config{
		Audio:         actx,
		Provider:      gemini.NewHTTP(apiKey),
		MicDevice:     micDevice,
		Model:         *modelFlag,
		WindowSeconds: *windowFlag,
		Instruction:   *instructionFlag,
		Knowledge:     knowledge,
		OnUsage: func(s meter.Stats) {
			statusf("usage: %d analyses, %.0fs audio, ~$%.4f", s.Analyses, s.AudioSeconds, s.EstimatedCost)
		},
		OnCacheStatus: func(active bool) {
			if active {
				statusf("context cache: active")
			} else {
				statusf("context cache: inline fallback")
			}
		},
	})

	if *instructionFlag != "" || knowledge != "" {
		eng.SetContext(context.Background(), *instructionFlag, knowledge)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: terminal raw mode: %v\n", err)
		os.Exit(1)
	}
	restore := func() {
		eng.Stop()
		term.Restore(fd, oldState)
		fmt.Print("\r\n")
	}
	defer restore()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		gracefulShutdown(restore)
	}()

	statusf("earshot %s | model %s | window %ds | mode %s", version, eng.Model(), *windowFlag, mode)
	statusf("keys: r record/stop, a analyze window, f analyze session, w wipe, m model, [ ] window, q quit")

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			if n, err := os.Stdin.Read(buf); err != nil || n == 0 {
				return
			}
			keys <- buf[0]
		}
	}()

	modelIdx := 0
	for i, m := range models {
		if m == *modelFlag {
			modelIdx = i
		}
	}

	for key := range keys {
		switch key {
		case 'r':
			if eng.State() == engine.Idle {
				if err := eng.Start(mode); err != nil {
					statusf("start failed: %v", err)
					continue
				}
				statusf("recording (%s)...", mode)
			} else {
				eng.Stop()
				statusf("stopped, %ds buffered", eng.BufferedSeconds())
			}
		case 'a':
			runAnalysis("window", eng.AnalyzeWindow)
		case 'f':
			runAnalysis("session", eng.AnalyzeFullSession)
		case 'w':
			eng.Wipe()
			statusf("session wiped")
		case 'm':
			modelIdx = (modelIdx + 1) % len(models)
			eng.SetModel(models[modelIdx])
			statusf("model: %s", models[modelIdx])
		case '[':
			adjustWindow(eng, -30)
		case ']':
			adjustWindow(eng, 30)
		case 'q', 3: // q or Ctrl+C
			gracefulShutdown(restore)
		}
	}
}

func runAnalysis(label string, trigger func(context.Context) (<-chan engine.Chunk, error)) {
	ch, err := trigger(context.Background())
	if err != nil {
		statusf("%s analysis: %v", label, err)
		return
	}
	statusf("analyzing %s...", label)
	for chunk := range ch {
		if chunk.Err != nil {
			statusf("analysis failed: %v", chunk.Err)
			return
		}
		printChunk(chunk.Text)
	}
	fmt.Print("\r\n")
}

func adjustWindow(eng *engine.Engine, delta int) {
	w := eng.Window() + delta
	if w < 30 {
		w = 30
	}
	eng.SetWindow(w)
	statusf("window: %ds", w)
}

// statusf prints one status line; raw mode needs explicit carriage returns.
func statusf(format string, args ...any) {
	fmt.Printf(format+"\r\n", args...)
}

// printChunk writes streamed analysis text, normalizing newlines for the
// raw terminal.
func printChunk(text string) {
	for _, r := range text {
		if r == '\n' {
			fmt.Print("\r\n")
		} else {
			fmt.Print(string(r))
		}
	}
}
