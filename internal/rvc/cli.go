package rvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CLIBackend shells out to the rvc-python command line once per file.
type CLIBackend struct {
	python string
	device string

	modelPath string
	indexPath string
	params    Params
}

func NewCLIBackend(python, device string) *CLIBackend {
	if strings.TrimSpace(python) == "" {
		python = "python3"
	}
	return &CLIBackend{python: python, device: device}
}

func (b *CLIBackend) Load(_ context.Context, modelPath, indexPath string, p Params) error {
	if _, err := os.Stat(modelPath); err != nil {
		return err
	}
	if indexPath != "" {
		if _, err := os.Stat(indexPath); err != nil {
			return err
		}
	}
	if _, err := exec.LookPath(b.python); err != nil {
		return fmt.Errorf("python interpreter %q not found: %w", b.python, err)
	}
	b.modelPath = modelPath
	b.indexPath = indexPath
	b.params = p
	return nil
}

func (b *CLIBackend) args(inputPath, outputPath string) []string {
	p := b.params
	args := []string{
		"-m", "rvc_python", "cli",
		"-i", inputPath,
		"-o", outputPath,
		"-mp", b.modelPath,
		"-pi", strconv.Itoa(p.PitchShift),
		"-ir", strconv.FormatFloat(p.IndexRate, 'f', -1, 64),
		"-fr", strconv.Itoa(p.FilterRadius),
		"-rsr", strconv.Itoa(p.ResampleRate),
		"-rmr", strconv.FormatFloat(p.RMSMixRate, 'f', -1, 64),
		"-pr", strconv.FormatFloat(p.Protect, 'f', -1, 64),
	}
	if p.PitchMethod != "" {
		args = append(args, "-me", p.PitchMethod)
	}
	if b.indexPath != "" {
		args = append(args, "-ip", b.indexPath)
	}
	if b.device != "" {
		args = append(args, "-de", b.device)
	}
	return args
}

func (b *CLIBackend) Convert(ctx context.Context, inputPath, outputPath string) error {
	// Write beside the target and rename so a reader never sees half a file.
	tmp := outputPath + ".part.wav"
	cmd := exec.CommandContext(ctx, b.python, b.args(inputPath, tmp)...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		if errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 4<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(4<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("rvc cli failed: %s", detail)
	}
	return os.Rename(tmp, outputPath)
}

func (b *CLIBackend) Close() error { return nil }
