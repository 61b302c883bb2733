package cube

import "fmt"

// Band describes one band of a cube. Type is an I/O hint only; chunk
// buffers are always float64 internally.
type Band struct {
	Name        string
	Type        string
	NoData      float64
	Offset      float64
	Scale       float64
	Unit        string
	Description string
}

// BandCollection is an ordered set of uniquely named bands. The band
// index in a chunk buffer equals the position in the collection.
type BandCollection []Band

func (bc BandCollection) Names() []string {
	names := make([]string, len(bc))
	for i, b := range bc {
		names[i] = b.Name
	}
	return names
}

func (bc BandCollection) Has(name string) bool {
	for _, b := range bc {
		if b.Name == name {
			return true
		}
	}
	return false
}

func (bc BandCollection) GetIndex(name string) (int, error) {
	for i, b := range bc {
		if b.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("band '%s' does not exist", name)
}

func (bc BandCollection) Get(name string) (Band, error) {
	i, err := bc.GetIndex(name)
	if err != nil {
		return Band{}, err
	}
	return bc[i], nil
}

func (bc BandCollection) validateUnique() error {
	seen := make(map[string]bool, len(bc))
	for _, b := range bc {
		if seen[b.Name] {
			return fmt.Errorf("duplicate band name '%s'", b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}
