package ens

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticRecords maps name -> TXT key -> value. It is a TextReader for
// offline verification and tests.
//
//	runtime.commandlayer.eth:
//	  cl.sig.pub: ed25519:AAEC...
//	  cl.sig.kid: k1
type StaticRecords map[string]map[string]string

func (s StaticRecords) GetText(_ context.Context, name, key string) ([]string, error) {
	v, ok := s[name][key]
	if !ok {
		return nil, nil
	}
	return []string{v}, nil
}

// LoadStaticRecords reads StaticRecords from a YAML file.
func LoadStaticRecords(path string) (StaticRecords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ENS records %s: %w", path, err)
	}
	var recs StaticRecords
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse ENS records %s: %w", path, err)
	}
	if recs == nil {
		recs = StaticRecords{}
	}
	return recs, nil
}
