package rvc

import (
	"context"
	"os"

	"github.com/ent0n29/rvcchat/internal/audio"
)

// PassthroughBackend copies the synthesized file unchanged. Useful on
// machines without a GPU or a voice model.
type PassthroughBackend struct{}

func (PassthroughBackend) Load(context.Context, string, string, Params) error { return nil }

func (PassthroughBackend) Convert(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return audio.WriteFileAtomic(outputPath, data)
}

func (PassthroughBackend) Close() error { return nil }
