package memmap

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// hex is a uint64 written as 0x-prefixed hex in YAML. It also accepts
// decimal values and size suffixes on input.
type hex uint64

func (h hex) MarshalYAML() (interface{}, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%#x", uint64(h))}, nil
}

func (h *hex) UnmarshalYAML(node *yaml.Node) error {
	v, err := address.ParseSize(node.Value)
	if err != nil {
		return err
	}
	*h = hex(v)
	return nil
}

type fileMapping struct {
	Base     hex  `yaml:"base"`
	Size     hex  `yaml:"size"`
	RealBase *hex `yaml:"real_base,omitempty"`
}

type fileFormat struct {
	Mappings []fileMapping `yaml:"mappings"`
}

// Decode reads a YAML memory map. A mapping without real_base maps onto
// itself.
func Decode(r io.Reader) (*Map, error) {
	var doc fileFormat
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "failed to decode memory map")
	}

	m := New()
	for i, fm := range doc.Mappings {
		realBase := uint64(fm.Base)
		if fm.RealBase != nil {
			realBase = uint64(*fm.RealBase)
		}
		if err := m.Add(uint64(fm.Base), uint64(fm.Size), realBase); err != nil {
			return nil, memerrors.Wrap(err, memerrors.ErrorTypeValidation,
				fmt.Sprintf("invalid mapping at index %d", i))
		}
	}
	return m, nil
}

// Encode writes m as YAML.
func (m *Map) Encode(w io.Writer) error {
	var doc fileFormat
	for _, mp := range m.Mappings() {
		realBase := hex(mp.RealBase)
		doc.Mappings = append(doc.Mappings, fileMapping{
			Base:     hex(mp.Base),
			Size:     hex(mp.Size),
			RealBase: &realBase,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to encode memory map")
	}
	return enc.Close()
}

// LoadFile reads a YAML memory map from path.
func LoadFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to open memory map").
			WithDetail("path", path)
	}
	defer f.Close()

	return Decode(f)
}

// SaveFile writes m to path.
func (m *Map) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to create memory map").
			WithDetail("path", path)
	}
	if err := m.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
