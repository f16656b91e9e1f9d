package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xela07ax/spaceai-governance-gateway/internal/domain"
	"gopkg.in/yaml.v3"
)

// FileRepository читает наборы политик из *.yaml/*.yml файлов каталога.
// Файл содержит один набор или список наборов под ключом policy_sets.
type FileRepository struct {
	Dir string
}

func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{Dir: dir}
}

type policyFile struct {
	domain.PolicySet `yaml:",inline"`
	PolicySets       []domain.PolicySet `yaml:"policy_sets"`
}

func (r *FileRepository) GetAllPolicySets(ctx context.Context) ([]domain.PolicySet, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, fmt.Errorf("policy: read dir %s: %w", r.Dir, err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var sets []domain.PolicySet
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(r.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("policy: read %s: %w", name, err)
		}
		parsed, err := ParsePolicySets(data)
		if err != nil {
			return nil, fmt.Errorf("policy: parse %s: %w", name, err)
		}
		sets = append(sets, parsed...)
	}
	return sets, nil
}

// ParsePolicySets разбирает YAML (JSON тоже валидный YAML).
func ParsePolicySets(data []byte) ([]domain.PolicySet, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.PolicySets) > 0 {
		return f.PolicySets, nil
	}
	if f.Name == "" && len(f.Rules) == 0 {
		return nil, nil
	}
	return []domain.PolicySet{f.PolicySet}, nil
}
