package storage

import (
	"errors"
	"reflect"
	"testing"

	"bayescortex/internal/model"
)

func sampleSnapshot() model.NetworkSnapshot {
	return model.NetworkSnapshot{
		VersionedRecord: Versioned(),
		ID:              "snap-1",
		RunID:           "run-1",
		Step:            10,
		Nodes: []model.NodeRecord{
			{Name: "leaf0", Chance: 0.25, Attention: 0.5, ChanceStdDev: 0.01, Weights: [8]float64{1}, Axon: []int{1}},
			{
				Name:         "parent",
				Chance:       0.5,
				Attention:    0.55,
				ChanceStdDev: 0.02,
				Accuracy:     0.75,
				Weights:      [8]float64{.05, .10, .02, .19, .17, .23, .20, .04},
				Children:     []int{0, 0, 0},
				Memory: []model.MemoryRecord{
					{Name: "parent+", Chance: 0.5, Attention: 0.5, Weights: [8]float64{.125, .125, .125, .125, .125, .125, .125, .125}},
				},
			},
		},
	}
}

func TestCodecsRoundTripSnapshot(t *testing.T) {
	for _, name := range []string{"json", "cbor"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			if err != nil {
				t.Fatalf("codec: %v", err)
			}
			if codec.Name() != name {
				t.Fatalf("unexpected codec name %q", codec.Name())
			}
			payload, err := EncodeSnapshot(codec, sampleSnapshot())
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := DecodeSnapshot(codec, payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, sampleSnapshot()) {
				t.Fatalf("snapshot changed in round trip: %+v", decoded)
			}
		})
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	codec := CBORCodec()
	a, err := EncodeSnapshot(codec, sampleSnapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := EncodeSnapshot(codec, sampleSnapshot())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("expected identical canonical payloads")
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	codec := JSONCodec()
	run := model.RunRecord{VersionedRecord: model.VersionedRecord{SchemaVersion: 99, CodecVersion: 1}, ID: "run-1"}
	payload, err := EncodeRun(codec, run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(codec, payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	snapshot := sampleSnapshot()
	snapshot.CodecVersion = 0
	payload, err = EncodeSnapshot(codec, snapshot)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeSnapshot(codec, payload); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeRun(CBORCodec(), []byte{0xff, 0x00}); err == nil {
		t.Fatal("expected decode error")
	}
}
