package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shaiso/assetsched/internal/condition"
	"github.com/shaiso/assetsched/internal/domain"
)

// stateFile — хранилище состояний вычисления в JSON-файле.
//
// Позволяет запускать evaluate несколько раз подряд так, чтобы каждый
// следующий запуск видел результаты предыдущего, как тики демона.
// Пустой path отключает хранение.
type stateFile struct {
	path string
}

// stateFileContent — формат файла состояний.
type stateFileContent struct {
	States      []*condition.EvaluationState `json:"states"`
	RunRequests []domain.RunRequest          `json:"run_requests,omitempty"`
}

// LoadStates читает состояния. Отсутствующий файл означает первый тик.
func (s *stateFile) LoadStates(_ context.Context) (map[domain.AssetKey]*condition.EvaluationState, error) {
	states := make(map[domain.AssetKey]*condition.EvaluationState)
	if s.path == "" {
		return states, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return states, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var content stateFileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	for _, st := range content.States {
		states[st.AssetKey] = st
	}
	return states, nil
}

// SaveStates перезаписывает файл состояниями последнего тика.
func (s *stateFile) SaveStates(_ context.Context, states []*condition.EvaluationState, requests []domain.RunRequest) error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(stateFileContent{States: states, RunRequests: requests}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
