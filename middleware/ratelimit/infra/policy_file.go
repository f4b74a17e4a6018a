package infra

import (
	"bytes"
	"fmt"
	"os"

	"admission-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

// LoadPolicyFile lê a tabela de quotas de um YAML. Caminho vazio devolve os defaults.
//
// Formato:
//
//	tiers:
//	  anonymous:     {per_minute: 20, per_hour: 100, per_day: 1000}
//	  authenticated: {per_minute: 60, per_hour: 1000, per_day: 10000}
//	  admin:         {per_minute: 200, per_hour: 5000, per_day: 50000}
//	endpoints:
//	  /ml/sentiment:
//	    anonymous: {per_minute: 5, per_hour: 50}
func LoadPolicyFile(path string) (*domain.PolicyTable, error) {
	if path == "" {
		return domain.DefaultPolicy(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy decodifica e valida uma tabela. Campos desconhecidos são erro.
func ParsePolicy(raw []byte) (*domain.PolicyTable, error) {
	var p domain.PolicyTable
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
