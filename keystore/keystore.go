// Package keystore persists per-controller privacy identities.
package keystore

import (
	"io"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/blehci"
	"github.com/rigado/blehci/linux/hci/privacy"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned by Load when no identity is stored for a controller.
var ErrNotFound = errors.New("identity not found")

// Identity is the privacy material kept for one controller.
type Identity struct {
	IRK           blehci.Key     `json:"irk"`
	StaticAddress blehci.Address `json:"staticAddress"`
}

// Keystore stores identities keyed by controller public address.
type Keystore interface {
	Store(controller blehci.Address, id Identity, replace bool) error
	Load(controller blehci.Address) (Identity, error)
	Clear() error
}

type fileStore struct {
	filename string
	lock     sync.RWMutex
}

// New returns a Keystore backed by a JSON file.
func New(filename string) Keystore {
	return &fileStore{filename: filename}
}

func (s *fileStore) Store(controller blehci.Address, id Identity, replace bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	ids, err := s.loadExisting()
	if err != nil {
		return errors.Wrap(err, "can't load existing identities")
	}

	k := controller.String()
	if _, ok := ids[k]; ok && !replace {
		return errors.Errorf("identity for %s already stored", k)
	}
	ids[k] = id

	return s.storeAll(ids)
}

func (s *fileStore) Load(controller blehci.Address) (Identity, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	ids, err := s.loadExisting()
	if err != nil {
		return Identity{}, errors.Wrap(err, "can't load existing identities")
	}

	id, ok := ids[controller.String()]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

func (s *fileStore) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	err := os.Remove(s.filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *fileStore) loadExisting() (map[string]Identity, error) {
	ids := make(map[string]Identity)

	in, err := os.ReadFile(s.filename)
	if os.IsNotExist(err) {
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return ids, nil
	}

	if err := json.Unmarshal(in, &ids); err != nil {
		return nil, errors.Wrap(err, "can't decode identities")
	}
	return ids, nil
}

func (s *fileStore) storeAll(ids map[string]Identity) error {
	out, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return errors.Wrap(err, "can't encode identities")
	}
	return errors.Wrap(os.WriteFile(s.filename, out, 0600), "can't write identities")
}

// LoadOrCreate returns the identity stored for controller, generating and storing a new
// one from r if none exists. created reports whether a new identity was generated.
func LoadOrCreate(ks Keystore, controller blehci.Address, r io.Reader) (id Identity, created bool, err error) {
	id, err = ks.Load(controller)
	if err == nil {
		return id, false, nil
	}
	if err != ErrNotFound {
		return id, false, err
	}

	if id.IRK, err = privacy.GenerateIRK(r); err != nil {
		return id, false, err
	}
	if id.StaticAddress, err = privacy.GenerateStaticAddress(r); err != nil {
		return id, false, err
	}
	if err = ks.Store(controller, id, false); err != nil {
		return id, false, err
	}
	return id, true, nil
}
