package render

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Surface replays a script against a controlled browser environment and
// writes numbered frames into framesDir. Implementations own launching and
// tearing down whatever renders the page.
type Surface interface {
	Render(ctx context.Context, script Script, framesDir string) error
}

// ProcessSurface drives an external headless renderer worker. The worker is
// handed the script as a JSON file and the frames directory, and is expected
// to exit 0 once every command has been replayed and captured.
type ProcessSurface struct {
	workerCmd string
}

func NewProcessSurface(workerCmd string) *ProcessSurface {
	return &ProcessSurface{workerCmd: workerCmd}
}

func (p *ProcessSurface) Render(ctx context.Context, script Script, framesDir string) error {
	if strings.TrimSpace(p.workerCmd) == "" {
		return errors.New("renderer worker command not configured")
	}

	scriptPath := filepath.Join(framesDir, "script.json")
	raw, err := json.Marshal(script)
	if err != nil {
		return fmt.Errorf("marshal script: %w", err)
	}
	if err := os.WriteFile(scriptPath, raw, 0o644); err != nil {
		return fmt.Errorf("write script: %w", err)
	}

	parts := strings.Fields(p.workerCmd)
	name, args := parts[0], parts[1:]
	args = append(args, "--script", scriptPath, "--frames-dir", framesDir)
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch renderer: %w", err)
	}

	go stream(script.SessionID, "stdout", stdout)
	go stream(script.SessionID, "stderr", stderr)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("renderer exited: %w", err)
	}
	return nil
}

func stream(sessionID, name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Printf("render[%s] %s: %s", sessionID, name, scanner.Text())
	}
}
