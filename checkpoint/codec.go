package checkpoint

import (
	"bytes"
	"context"
	"fmt"

	"github.com/YuminosukeSato/petalnet/backbone"
	"github.com/YuminosukeSato/petalnet/core/model"
	"github.com/YuminosukeSato/petalnet/pkg/errors"
	"github.com/YuminosukeSato/petalnet/pkg/log"
	"github.com/YuminosukeSato/petalnet/storage"
)

// Wire format: magic, version byte, gob-encoded record.
var magic = []byte("PNCK")

const formatVersion byte = 1

// record is the gob payload. gob omits zero values, so a field absent from
// the payload decodes as its zero value and Validate reports it missing.
type record struct {
	Architecture string
	ClassToIndex map[string]int
	InputSize    int
	HiddenSizes  []int
	OutputSize   int
	Weights      map[string]Tensor
	Metadata     map[string]string
}

// Serialize validates ck and encodes it.
func Serialize(ck *Checkpoint) ([]byte, error) {
	if ck == nil {
		return nil, errors.NewSchemaError("checkpoint", "nil checkpoint")
	}
	if err := ck.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(magic)
	buf.WriteByte(formatVersion)
	rec := record{
		Architecture: string(ck.Architecture),
		ClassToIndex: ck.ClassToIndex,
		InputSize:    ck.InputSize,
		HiddenSizes:  ck.HiddenSizes,
		OutputSize:   ck.OutputSize,
		Weights:      ck.Weights,
		Metadata:     ck.Metadata,
	}
	if err := model.EncodeGob(&buf, &rec); err != nil {
		return nil, errors.Wrap(err, "checkpoint")
	}
	return buf.Bytes(), nil
}

// Deserialize decodes and validates a checkpoint. Structural problems are a
// SchemaError; weights inconsistent with the layer sizes are a ShapeMismatchError.
func Deserialize(b []byte) (*Checkpoint, error) {
	header := len(magic) + 1
	if len(b) < header || !bytes.Equal(b[:len(magic)], magic) {
		return nil, errors.NewSchemaError("checkpoint", "not a petalnet checkpoint (bad magic)")
	}
	if v := b[len(magic)]; v != formatVersion {
		return nil, errors.NewSchemaError("checkpoint", fmt.Sprintf("unsupported format version %d", v))
	}

	var rec record
	if err := model.DecodeGob(bytes.NewReader(b[header:]), &rec); err != nil {
		return nil, errors.NewSchemaError("checkpoint", "corrupt payload: "+err.Error())
	}

	ck := &Checkpoint{
		Architecture: backbone.Architecture(rec.Architecture),
		ClassToIndex: rec.ClassToIndex,
		InputSize:    rec.InputSize,
		HiddenSizes:  rec.HiddenSizes,
		OutputSize:   rec.OutputSize,
		Weights:      rec.Weights,
		Metadata:     rec.Metadata,
	}
	if err := ck.Validate(); err != nil {
		return nil, err
	}
	return ck, nil
}

// Save serializes ck and writes it to name in s.
func Save(ctx context.Context, s storage.Storage, name string, ck *Checkpoint) error {
	b, err := Serialize(ck)
	if err != nil {
		return err
	}
	if err := storage.WriteFile(ctx, s, name, bytes.NewReader(b)); err != nil {
		return err
	}
	log.GetLoggerWithName("checkpoint").Info("Checkpoint saved",
		log.PathKey, s.Location(name),
		log.ArchKey, ck.Architecture.String(),
		"bytes", len(b),
	)
	return nil
}

// Load reads and deserializes name from s.
func Load(ctx context.Context, s storage.Storage, name string) (*Checkpoint, error) {
	b, err := storage.ReadFile(ctx, s, name)
	if err != nil {
		return nil, err
	}
	ck, err := Deserialize(b)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", s.Location(name))
	}
	return ck, nil
}
