package catalogfile

import (
	"encoding/json"
	"fmt"
	"os"

	"tg-holiday-bot/internal/domain"
)

// Source загружает каталог праздников из JSON-файла вида
// {"holidays": {"MM-DD": [...]}}. Файл читается один раз при старте.
type Source struct {
	path string
}

var _ domain.CatalogSource = (*Source)(nil)

// NewSource создаёт источник каталога.
func NewSource(path string) *Source {
	return &Source{path: path}
}

type catalogFile struct {
	Holidays map[string][]domain.Holiday `json:"holidays"`
}

// Load читает и декодирует файл каталога.
func (s *Source) Load() (map[string][]domain.Holiday, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога %s: %w", s.path, err)
	}
	var file catalogFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("декодирование каталога %s: %w", s.path, err)
	}
	if len(file.Holidays) == 0 {
		return nil, fmt.Errorf("каталог %s пуст", s.path)
	}
	return file.Holidays, nil
}
