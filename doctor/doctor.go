// Package doctor runs environment diagnostics: capture devices, API key,
// and log directory writability.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"earshot/audio"
	"earshot/encoder"
	"earshot/log"
)

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run() int {
	fmt.Println("earshot doctor - system diagnostics")
	fmt.Println("===================================")

	allPass := true
	for _, check := range []func() bool{checkAPIKey, checkAudio, checkLogDir} {
		if !check() {
			allPass = false
		}
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkAPIKey() bool {
	fmt.Println()
	fmt.Println("[1/3] API key")
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Println("  FAIL: GEMINI_API_KEY is not set")
		return false
	}
	fmt.Println("  PASS: GEMINI_API_KEY is set")
	return true
}

func checkAudio() bool {
	fmt.Println()
	fmt.Println("[2/3] Audio capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: audio context: %v\n", err)
		return false
	}
	defer ctx.Close()

	mics, err := ctx.Devices(audio.Microphone)
	if err != nil || len(mics) == 0 {
		fmt.Printf("  FAIL: no microphone devices (%v)\n", err)
		return false
	}
	fmt.Printf("  PASS: %d microphone device(s), first: %s\n", len(mics), mics[0].Name)
	if audio.IsBluetooth(mics[0].Name) {
		fmt.Println("  WARN: bluetooth microphone, expect lower audio quality")
	}

	monitors, err := ctx.Devices(audio.SystemAudio)
	if err != nil || len(monitors) == 0 {
		fmt.Println("  WARN: no system-audio track; mic-only capture works, system and mixed capture will fail")
	} else {
		fmt.Printf("  PASS: %d system-audio track(s)\n", len(monitors))
	}

	cfg := audio.CaptureConfig{SampleRate: encoder.SampleRate, Channels: encoder.Channels}
	dev, err := ctx.NewCapture(audio.Microphone, nil, cfg)
	if err != nil {
		fmt.Printf("  FAIL: opening microphone: %v\n", err)
		return false
	}
	dev.Close()
	fmt.Println("  PASS: microphone opens")
	return true
}

func checkLogDir() bool {
	fmt.Println()
	fmt.Println("[3/3] Log directory")

	dir, err := log.ResolveDir("")
	if err != nil {
		fmt.Printf("  FAIL: resolving log directory: %v\n", err)
		return false
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Printf("  FAIL: creating %s: %v\n", dir, err)
		return false
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		fmt.Printf("  FAIL: %s not writable: %v\n", dir, err)
		return false
	}
	os.Remove(probe)
	fmt.Printf("  PASS: %s is writable\n", dir)
	return true
}
