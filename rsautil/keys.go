package rsautil

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// SaveKey persists a Key as {"k": ..., "n": ...} JSON. big.Int already
// implements MarshalJSON/UnmarshalJSON as a bare decimal number, so
// arbitrary-precision integers round-trip without a custom codec.
func SaveKey(path string, key Key) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "rsautil: create key file %s", path)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(key); err != nil {
		return errors.Wrapf(err, "rsautil: encode key file %s", path)
	}
	return nil
}

// LoadKey reads a Key previously written by SaveKey.
func LoadKey(path string) (Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return Key{}, errors.Wrapf(err, "rsautil: open key file %s", path)
	}
	defer f.Close()

	var key Key
	if err := json.NewDecoder(f).Decode(&key); err != nil {
		return Key{}, errors.Wrapf(err, "rsautil: decode key file %s", path)
	}
	return key, nil
}
